package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/mcp"
	"github.com/Sumatoshi-tech/stubforge/pkg/observability"
	"github.com/Sumatoshi-tech/stubforge/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		debug      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes stub generation as tools that AI agents can discover
and invoke:
  - stub_generate: Infer a type stub for inline Python source
  - stub_check: Check inline Python source against an existing stub

Run options are read from the config file and STUBFORGE_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath, nil)
			if err != nil {
				return err
			}

			providers, err := initMCPObservability(debug)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			metrics, err := observability.NewRunMetrics(providers.Meter)
			if err != nil {
				return err
			}

			deps := mcp.ServerDeps{Logger: providers.Logger, Metrics: metrics, Tracer: providers.Tracer}

			return mcp.NewServer(cfg, deps).Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default: .stubforge.yaml in CWD or $HOME)")

	return cmd
}

func initMCPObservability(debug bool) (observability.Providers, error) {
	cfg := observability.DefaultConfig().WithEnv()
	cfg.ServiceVersion = version.Version
	cfg.Mode = observability.ModeMCP
	cfg.LogJSON = true

	if debug {
		cfg.LogLevel = slog.LevelDebug
	}

	return observability.Init(cfg)
}
