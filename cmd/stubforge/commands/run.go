// Package commands implements CLI command handlers for stubforge.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/driver"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/observability"
	"github.com/Sumatoshi-tech/stubforge/pkg/schedule"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
	"github.com/Sumatoshi-tech/stubforge/pkg/version"
)

// ErrRunFailed is returned when the run finished with a failed aggregate
// status. The unit diagnostics have already been reported.
var ErrRunFailed = errors.New("run failed")

// RunCommand holds the flags of the run command that are not run options.
type RunCommand struct {
	configPath string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run [flags] input[:output] ...",
		Short: "Generate or check type stubs for Python sources",
		Long: `Generate a type stub for every input, or check inputs against their stubs.

Each argument is an input, or an input:output pair naming the stub file. With a
single input, --output names the stub file instead; "-" or no output writes the
stub to stdout. With several inputs, the smallest are analyzed once more in a
pre-pass so that their stubs exist when larger units import them.`,
		RunE: rc.run,
	}

	rc.registerFlags(cmd)

	return cmd
}

func (rc *RunCommand) registerFlags(cmd *cobra.Command) {
	defaults := config.DefaultSettings()
	flags := cmd.Flags()

	flags.StringVar(&rc.configPath, "config", "", "Config file (default: .stubforge.yaml in CWD or $HOME)")

	flags.BoolP("check", "C", defaults.Check, "Verify sources against their existing stubs instead of generating")
	flags.StringP("output", "o", defaults.Output, "Output stub file for a single input (\"-\" for stdout)")
	flags.StringP("python-version", "V", defaults.PythonVersion, "Python version (major.minor) to emulate")
	flags.IntP("verbosity", "v", defaults.Verbosity, "Log verbosity (-1 silent .. 4 trace)")
	flags.BoolP("quick", "Q", defaults.Quick, "Approximate analysis: do not follow calls")
	flags.BoolP("optimize", "O", defaults.Optimize, "Optimize generated stubs")
	flags.String("scope", defaults.Scope, "Definitions to analyze: all or entry")
	flags.Bool("structural", defaults.Structural, "Use structural matching")
	flags.Bool("solve-unknowns", defaults.SolveUnknowns, "Replace unresolved types with Any")
	flags.Bool("run-builtins", defaults.RunBuiltins, "Preload the builtins stub")
	flags.String("builtins", defaults.Builtins, "Builtins stub to load instead of the embedded one")
	flags.String("output-cfg", defaults.OutputCFG, "Write the control flow graph (Graphviz) to this file")
	flags.String("output-typegraph", defaults.OutputTypegraph, "Write the type graph (HTML) to this file")
	flags.String("output-pseudocode", defaults.OutputPseudocode, "Write a pseudocode listing to this file")
	flags.Bool("reverse-operators", defaults.ReverseOperators, "Apply numeric promotion to binary operators")
	flags.Bool("cache-unknowns", defaults.CacheUnknowns, "Reuse one unknown per name")
	flags.Bool("skip-repeat-calls", defaults.SkipRepeatCalls, "Reuse return types of repeated calls")
	flags.StringP("pythonpath", "P", defaults.PythonPath, "Stub search directories, separated by the path list separator")
	flags.String("pytd-extension", defaults.PytdExtension, "Extension of stub files")
	flags.String("import-drop-prefixes", defaults.ImportDropPrefixes, "Module prefixes to drop before import lookup")
	flags.Bool("no-fail", defaults.NoFail, "Write an error stub instead of failing on engine faults")
	flags.String("output-id", defaults.OutputID, "Tag written as a header line into generated stubs")
	flags.String("imports-info", defaults.ImportsInfo, "Import map description file (text, YAML or JSON)")
	flags.Bool("log-json", defaults.LogJSON, "Log in JSON")
	flags.String("metrics-textfile", defaults.MetricsTextfile, "Write run metrics in Prometheus text format to this file")
	flags.Bool("summary", defaults.Summary, "Print a table of unit outcomes after the run")
	flags.Bool("no-color", defaults.NoColor, "Disable colored diagnostics")
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(rc.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	list, err := units.Resolve(args, cfg.Output)
	if err != nil {
		return err
	}

	if cfg.Mode == config.ModeCheck {
		err = units.RequireOutputs(list)
		if err != nil {
			return err
		}
	}

	if cfg.NoColor {
		color.NoColor = true
	}

	obsCfg := observability.DefaultConfig().WithVerbosity(cfg.Verbosity).WithEnv()
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogJSON = cfg.LogJSON
	obsCfg.LogWriter = cmd.ErrOrStderr()
	obsCfg.MetricsTextfile = cfg.MetricsTextfile

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	return execute(cmd, cfg, list, providers)
}

func execute(cmd *cobra.Command, cfg config.RunConfig, list []units.Unit, providers observability.Providers) (err error) {
	ctx := cmd.Context()
	logger := providers.Logger

	placeholder, err := importmap.AcquirePlaceholder("")
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, placeholder.Release())
	}()

	imports, err := importmap.Build(ctx, cfg.ImportsInfo, list, cfg.SearchPath(), placeholder)
	if err != nil {
		return err
	}

	plan, err := schedule.NewPlan(list, schedule.FileSize, logger)
	if err != nil {
		return err
	}

	metrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return err
	}

	processor := driver.NewProcessor(cfg, imports, driver.ProcessorDeps{
		Stdout:      cmd.OutOrStdout(),
		Diagnostics: cmd.ErrOrStderr(),
		Logger:      logger,
	})

	deps := driver.RunnerDeps{Tracer: providers.Tracer, Metrics: metrics, Logger: logger}
	if cfg.Summary {
		deps.Summary = cmd.ErrOrStderr()
	}

	logStart(ctx, logger, cfg, plan, imports)

	result, err := driver.NewRunner(processor, cfg.OverrideOnFailure, deps).Run(ctx, plan)
	if err != nil {
		return err
	}

	if result.ExitCode() != 0 {
		return fmt.Errorf("%w: %d of %d units failed", ErrRunFailed, failed(result.FinalPass), len(plan.FinalPass))
	}

	return nil
}

func logStart(ctx context.Context, logger *slog.Logger, cfg config.RunConfig, plan schedule.Plan, imports importmap.Map) {
	logger.InfoContext(ctx, "run started",
		"mode", cfg.Mode,
		"python", cfg.Version.String(),
		"units", len(plan.FinalPass),
		"invocations", plan.Invocations(),
		"imports", imports.Len())
}

func failed(results []driver.UnitResult) int {
	count := 0

	for _, res := range results {
		if res.Status == driver.StatusFailed {
			count++
		}
	}

	return count
}
