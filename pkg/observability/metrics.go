package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricUnits        = "stubforge.units.total"
	metricUnitDuration = "stubforge.unit.duration.seconds"
	metricFaults       = "stubforge.faults.total"
	metricDiagnostics  = "stubforge.diagnostics.total"

	attrPass   = "pass"
	attrStatus = "status"
)

// durationBucketBoundaries covers 1ms to 120s per unit.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// RunMetrics holds the OTel instruments recorded while processing units.
type RunMetrics struct {
	units        metric.Int64Counter
	unitDuration metric.Float64Histogram
	faults       metric.Int64Counter
	diagnostics  metric.Int64Counter
}

// metricBuilder accumulates instrument creation errors so a batch of
// instruments needs a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.setErr(name, err)

	return h
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// NewRunMetrics creates the unit instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	b := &metricBuilder{meter: mt}

	rm := &RunMetrics{
		units:        b.counter(metricUnits, "Units processed", "{unit}"),
		unitDuration: b.histogram(metricUnitDuration, "Unit processing time", "s", durationBucketBoundaries...),
		faults:       b.counter(metricFaults, "Engine faults", "{fault}"),
		diagnostics:  b.counter(metricDiagnostics, "Diagnostics reported", "{diagnostic}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordUnit records one processed unit.
func (rm *RunMetrics) RecordUnit(ctx context.Context, pass, status string, duration time.Duration, diagnostics int) {
	attrs := metric.WithAttributes(
		attribute.String(attrPass, pass),
		attribute.String(attrStatus, status),
	)

	rm.units.Add(ctx, 1, attrs)
	rm.unitDuration.Record(ctx, duration.Seconds(), attrs)

	if diagnostics > 0 {
		rm.diagnostics.Add(ctx, int64(diagnostics), metric.WithAttributes(attribute.String(attrPass, pass)))
	}
}

// RecordFault records an engine fault.
func (rm *RunMetrics) RecordFault(ctx context.Context, pass string) {
	rm.faults.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPass, pass)))
}
