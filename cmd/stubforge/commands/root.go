package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stubforge/pkg/version"
)

// NewRootCommand creates the stubforge command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stubforge",
		Short: "Type stub generator for Python sources",
		Long: `stubforge infers type stubs for Python modules and checks sources against
existing stubs.

Commands:
  run       Generate or check stubs for a set of source files
  mcp       Serve stub generation over the Model Context Protocol
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewMCPCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stubforge %s\n", version.String())
		},
	}
}

// Execute runs the command tree with args and returns the process exit code.
// A failed run exits 1 without an extra error line, every other error is
// printed to stderr first.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	if !errors.Is(err, ErrRunFailed) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}

	return 1
}
