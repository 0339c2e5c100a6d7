// Package driver runs the inference engine over units: the Processor handles
// one unit in check or generate mode, the Runner drives the two passes and
// aggregates the outcome.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/infer"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
	"github.com/Sumatoshi-tech/stubforge/pkg/textutil"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

// ErrNoExpectedStub is returned when check mode has no stub file to compare
// against.
var ErrNoExpectedStub = fmt.Errorf("%w: check mode needs an output stub to compare against", config.ErrConfiguration)

// Status is the outcome of one unit.
type Status string

const (
	// StatusClean means no diagnostics were recorded.
	StatusClean Status = "clean"
	// StatusFailed means the unit's diagnostic log is not empty.
	StatusFailed Status = "failed"
)

// UnitResult is the outcome of processing one unit.
type UnitResult struct {
	Unit        units.Unit
	Status      Status
	Written     bool
	Fallback    bool
	Diagnostics []diag.Diagnostic
	Duration    time.Duration
}

// ProcessorDeps holds the collaborators of a Processor. Zero-value fields use
// production defaults.
type ProcessorDeps struct {
	// Inferencer generates stubs. Nil uses the built-in engine.
	Inferencer infer.Inferencer

	// Checker verifies stubs. Nil uses the built-in engine.
	Checker infer.Checker

	// Stdout receives artifacts of units without an output file. Nil is os.Stdout.
	Stdout io.Writer

	// Diagnostics receives each unit's diagnostic log. Nil is os.Stderr.
	Diagnostics io.Writer

	// Logger is the structured logger. Nil discards.
	Logger *slog.Logger
}

// Processor checks or generates the stub of one unit at a time.
type Processor struct {
	cfg        config.RunConfig
	opts       infer.Options
	imports    importmap.Map
	inferencer infer.Inferencer
	checker    infer.Checker
	stdout     io.Writer
	diagOut    io.Writer
	logger     *slog.Logger
}

// NewProcessor creates a Processor for cfg resolving imports through imports.
func NewProcessor(cfg config.RunConfig, imports importmap.Map, deps ProcessorDeps) *Processor {
	p := &Processor{
		cfg:        cfg,
		opts:       infer.OptionsFrom(cfg),
		imports:    imports,
		inferencer: deps.Inferencer,
		checker:    deps.Checker,
		stdout:     deps.Stdout,
		diagOut:    deps.Diagnostics,
		logger:     deps.Logger,
	}

	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	if p.inferencer == nil || p.checker == nil {
		engine := infer.NewEngine(p.logger)

		if p.inferencer == nil {
			p.inferencer = engine
		}

		if p.checker == nil {
			p.checker = engine
		}
	}

	if p.stdout == nil {
		p.stdout = os.Stdout
	}

	if p.diagOut == nil {
		p.diagOut = os.Stderr
	}

	return p
}

// Process handles one unit. A non-nil error is a fault: the engine failed on
// the unit and no fallback was configured, or the serialized stub failed its
// self-check (a *pytd.SelfCheckError, never overridden).
func (p *Processor) Process(ctx context.Context, unit units.Unit) (UnitResult, error) {
	start := time.Now()
	result := UnitResult{Unit: unit}
	log := diag.NewLog()

	src, err := os.ReadFile(unit.Input)
	if err != nil {
		return result, fmt.Errorf("read source: %w", err)
	}

	req := infer.Request{
		Source:   src,
		Filename: unit.Input,
		Options:  p.opts,
		Imports:  p.imports,
		Log:      log,
	}

	if p.cfg.Mode == config.ModeCheck {
		err = p.check(ctx, unit, req)
	} else {
		err = p.generate(ctx, unit, req, &result)
	}

	printErr := log.Print(p.diagOut)

	result.Diagnostics = log.Entries()
	result.Duration = time.Since(start)
	result.Status = StatusClean

	if err != nil || log.HasErrors() {
		result.Status = StatusFailed
	}

	if err != nil {
		return result, errors.Join(err, printErr)
	}

	p.logger.DebugContext(ctx, "unit processed",
		"input", unit.Input,
		"status", result.Status,
		"written", result.Written,
		"lines", textutil.CountLines(src),
		"diagnostics", log.Len(),
		"duration", result.Duration)

	return result, printErr
}

func (p *Processor) check(ctx context.Context, unit units.Unit, req infer.Request) error {
	if !unit.HasOutput() {
		return ErrNoExpectedStub
	}

	expected, err := os.ReadFile(unit.Output)
	if err != nil {
		return fmt.Errorf("read expected stub: %w", err)
	}

	return p.checker.Check(ctx, req, string(expected))
}

func (p *Processor) generate(ctx context.Context, unit units.Unit, req infer.Request, result *UnitResult) error {
	var body string

	m, err := p.inferencer.Infer(ctx, req)

	switch {
	case err != nil && p.cfg.OverrideOnFailure && !isSelfCheck(err):
		p.logger.WarnContext(ctx, "engine fault replaced by fallback stub", "input", unit.Input, "error", err)

		body = fallbackStub(err)
		result.Fallback = true
	case err != nil:
		return err
	default:
		body = textutil.EnsureNewline(pytd.Print(infer.Finalize(m, p.cfg.Optimize)))

		err = pytd.CheckRoundTrip(body, p.cfg.Version)
		if err != nil {
			return fmt.Errorf("%s: %w", unit.Input, err)
		}
	}

	err = p.write(unit, body)
	if err != nil {
		return err
	}

	result.Written = true

	return nil
}

func isSelfCheck(err error) bool {
	var selfCheck *pytd.SelfCheckError

	return errors.As(err, &selfCheck)
}

// fallbackStub is the artifact written in place of a stub when the engine
// faulted: the fault and its trace as a comment block.
func fallbackStub(err error) string {
	text := "Caught error in stubforge: " + err.Error()

	var fault *infer.Fault
	if errors.As(err, &fault) && fault.Trace != "" {
		text += "\n" + fault.Trace
	}

	return textutil.CommentBlock(text)
}

// write emits body, preceded by the tag header when one is configured.
func (p *Processor) write(unit units.Unit, body string) error {
	if p.cfg.OutputTag != "" {
		body = fmt.Sprintf("# %s %s\n\n", p.cfg.OutputTag, unit.Input) + body
	}

	if !unit.HasOutput() {
		_, err := io.WriteString(p.stdout, body)
		if err != nil {
			return fmt.Errorf("write stub to stdout: %w", err)
		}

		return nil
	}

	//nolint:gosec // stubs are meant to be world readable
	err := os.WriteFile(unit.Output, []byte(body), 0o644)
	if err != nil {
		return fmt.Errorf("write stub: %w", err)
	}

	return nil
}
