package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/stubforge/pkg/observability"
	"github.com/Sumatoshi-tech/stubforge/pkg/schedule"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

// ErrRunAborted wraps the self-check fault that stopped a run.
var ErrRunAborted = errors.New("run aborted")

const tracerName = "stubforge/driver"

// UnitProcessor handles one unit; *Processor is the production implementation.
type UnitProcessor interface {
	Process(ctx context.Context, unit units.Unit) (UnitResult, error)
}

// RunnerDeps holds injectable dependencies for the Runner. Zero-value fields
// disable the corresponding feature.
type RunnerDeps struct {
	// Tracer creates the run, pass and unit spans. Nil uses a no-op tracer.
	Tracer trace.Tracer

	// Metrics records unit outcomes. Nil disables metrics.
	Metrics *observability.RunMetrics

	// Logger is the structured logger. Nil discards.
	Logger *slog.Logger

	// Summary receives a table of unit outcomes after the final pass. Nil
	// disables the table.
	Summary io.Writer
}

// RunResult is the outcome of a whole run.
type RunResult struct {
	RunID     string
	Status    Status
	PrePass   []UnitResult
	FinalPass []UnitResult
	Faults    int
}

// ExitCode is the process exit status for the result.
func (r RunResult) ExitCode() int {
	if r.Status == StatusFailed {
		return 1
	}

	return 0
}

// Runner drives the pre-pass and the final pass of a plan.
type Runner struct {
	processor UnitProcessor
	override  bool
	tracer    trace.Tracer
	metrics   *observability.RunMetrics
	logger    *slog.Logger
	summary   io.Writer
}

// NewRunner creates a Runner. With override set, every final-pass unit is
// processed and the run is always clean.
func NewRunner(processor UnitProcessor, override bool, deps RunnerDeps) *Runner {
	r := &Runner{
		processor: processor,
		override:  override,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		summary:   deps.Summary,
	}

	if r.tracer == nil {
		r.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}

	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}

	return r
}

// Run processes the plan. Pre-pass faults are logged and dropped. Without
// override the final pass stops at the first failed unit, which decides the
// result. A self-check fault aborts the run in the final pass; in the pre-pass
// it is dropped like any other fault.
func (r *Runner) Run(ctx context.Context, plan schedule.Plan) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString(), Status: StatusClean}
	logger := r.logger.With(observability.AttrRunID, result.RunID)

	ctx, span := r.tracer.Start(ctx, "stubforge.run", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.Int("run.units", len(plan.FinalPass)),
		attribute.Int("run.invocations", plan.Invocations()),
	))
	defer span.End()

	var err error

	result.PrePass, err = r.pass(ctx, logger, schedule.PrePass, plan.PrePass, &result)
	if err != nil {
		return r.abort(span, result, err)
	}

	result.FinalPass, err = r.pass(ctx, logger, schedule.FinalPass, plan.FinalPass, &result)
	if err != nil {
		return r.abort(span, result, err)
	}

	span.SetAttributes(attribute.String("run.status", string(result.Status)))

	logger.InfoContext(ctx, "run finished",
		"status", result.Status,
		"units", len(result.FinalPass),
		"faults", result.Faults)

	if r.summary != nil {
		err = r.writeSummary(result)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func (r *Runner) abort(span trace.Span, result RunResult, err error) (RunResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "self-check failed")

	result.Status = StatusFailed

	return result, fmt.Errorf("%w: %w", ErrRunAborted, err)
}

func (r *Runner) pass(
	ctx context.Context, logger *slog.Logger, pass schedule.Pass, list []units.Unit, run *RunResult,
) ([]UnitResult, error) {
	if len(list) == 0 {
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, "stubforge.pass", trace.WithAttributes(
		attribute.String("unit.pass", string(pass)),
		attribute.Int("pass.units", len(list)),
	))
	defer span.End()

	results := make([]UnitResult, 0, len(list))

	for _, unit := range list {
		res, err := r.unit(ctx, logger, pass, unit)
		results = append(results, res)

		if err != nil {
			if isSelfCheck(err) && pass == schedule.FinalPass {
				return results, err
			}

			run.Faults++

			if pass == schedule.PrePass {
				logger.WarnContext(ctx, "pre-pass fault ignored", "input", unit.Input, "error", err)

				continue
			}

			logger.ErrorContext(ctx, "unit fault", "input", unit.Input, "error", err)
		}

		if pass == schedule.PrePass || res.Status != StatusFailed || r.override {
			continue
		}

		run.Status = StatusFailed

		logger.InfoContext(ctx, "stopping at first failed unit", "input", unit.Input)

		break
	}

	return results, nil
}

func (r *Runner) unit(ctx context.Context, logger *slog.Logger, pass schedule.Pass, unit units.Unit) (UnitResult, error) {
	ctx, span := r.tracer.Start(ctx, "stubforge.unit", trace.WithAttributes(
		attribute.String("unit.input", unit.Input),
		attribute.String("unit.pass", string(pass)),
	))
	defer span.End()

	start := time.Now()

	res, err := r.processor.Process(ctx, unit)
	res.Unit = unit

	if err != nil {
		res.Status = StatusFailed

		span.RecordError(err)
		span.SetStatus(codes.Error, "unit fault")

		if r.metrics != nil {
			r.metrics.RecordFault(ctx, string(pass))
		}
	}

	span.SetAttributes(attribute.String("unit.status", string(res.Status)))

	if r.metrics != nil {
		r.metrics.RecordUnit(ctx, string(pass), string(res.Status), time.Since(start), len(res.Diagnostics))
	}

	logger.DebugContext(ctx, "unit done", "pass", pass, "input", unit.Input, "status", res.Status)

	return res, err
}

func (r *Runner) writeSummary(result RunResult) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Unit", "Pass", "Status", "Written", "Diagnostics", "Duration"})

	rows := func(pass schedule.Pass, list []UnitResult) {
		for _, res := range list {
			tbl.AppendRow(table.Row{
				res.Unit.Input,
				string(pass),
				string(res.Status),
				res.Written,
				len(res.Diagnostics),
				res.Duration.Round(time.Millisecond).String(),
			})
		}
	}

	rows(schedule.PrePass, result.PrePass)
	rows(schedule.FinalPass, result.FinalPass)

	tbl.AppendFooter(table.Row{"Result", "", string(result.Status), "", "", ""})

	_, err := io.WriteString(r.summary, tbl.Render()+"\n")
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}
