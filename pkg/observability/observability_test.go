package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/stubforge/pkg/observability"
)

func TestLevelForVerbosity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelError, observability.LevelForVerbosity(0))
	assert.Equal(t, slog.LevelWarn, observability.LevelForVerbosity(1))
	assert.Equal(t, slog.LevelInfo, observability.LevelForVerbosity(2))
	assert.Equal(t, slog.LevelDebug, observability.LevelForVerbosity(3))
	assert.Less(t, observability.LevelForVerbosity(4), slog.LevelDebug)
	assert.Equal(t, observability.LevelForVerbosity(4), observability.LevelForVerbosity(9))
}

func TestWithVerbosity_Disabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig().WithVerbosity(observability.VerbosityDisabled)
	cfg.LogWriter = &buf

	logger := observability.NewLogger(cfg)
	logger.Error("dropped")

	assert.Empty(t, buf.String())
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig().WithVerbosity(2)
	cfg.LogJSON = true
	cfg.LogWriter = &buf

	observability.NewLogger(cfg).Info("unit done", "file", "a.py")
	observability.NewLogger(cfg).Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "unit done", record["msg"])
	assert.Equal(t, "stubforge", record["service"])
	assert.Equal(t, "cli", record["mode"])
	assert.Equal(t, "a.py", record["file"])
}

func TestTracingHandler_InjectsSpanContext(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, "stubforge", observability.ModeMCP))

	ctx, span := tp.Tracer("test").Start(context.Background(), "stubforge.unit")
	logger.InfoContext(ctx, "processing")
	span.End()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, spans[0].SpanContext.TraceID().String(), record["trace_id"])
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), record["span_id"])
	assert.Equal(t, "mcp", record["mode"])
}

func TestTracingHandler_NoSpan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "stubforge", observability.ModeCLI)).
		WithGroup("unit").With("pass", "final")

	logger.Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.NotContains(t, record, "trace_id")
	assert.Equal(t, "stubforge", record["service"])
	assert.Contains(t, record, "unit")
}

func TestRunMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	rm, err := observability.NewRunMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	rm.RecordUnit(ctx, "final", "clean", 20*time.Millisecond, 0)
	rm.RecordUnit(ctx, "final", "diagnostics", 30*time.Millisecond, 2)
	rm.RecordFault(ctx, "pre")

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &data))

	units := findSum(t, data, "stubforge.units.total")
	assert.Equal(t, int64(2), units)

	assert.Equal(t, int64(1), findSum(t, data, "stubforge.faults.total"))
	assert.Equal(t, int64(2), findSum(t, data, "stubforge.diagnostics.total"))
}

func findSum(t *testing.T, data metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)

			var total int64
			for _, point := range sum.DataPoints {
				total += point.Value
			}

			return total
		}
	}

	require.Failf(t, "metric not found", "%s", name)

	return 0
}

func TestInit_NoopWithoutExporters(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	_, span := providers.Tracer.Start(context.Background(), "noop")
	span.End()

	assert.NotNil(t, providers.Logger)
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_MetricsTextfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stubforge.prom")

	cfg := observability.DefaultConfig()
	cfg.MetricsTextfile = path

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	rm, err := observability.NewRunMetrics(providers.Meter)
	require.NoError(t, err)

	rm.RecordUnit(context.Background(), "final", "clean", time.Millisecond, 0)

	require.NoError(t, providers.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stubforge_units")
	assert.Contains(t, string(data), `pass="final"`)
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"authorization": "Bearer x", "tenant": "a"},
		observability.ParseOTLPHeaders(" authorization = Bearer x ,tenant=a"))
}

func TestWithEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "k=v")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg := observability.DefaultConfig().WithEnv()

	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, map[string]string{"k": "v"}, cfg.OTLPHeaders)
	assert.True(t, cfg.OTLPInsecure)

	explicit := observability.DefaultConfig()
	explicit.OTLPEndpoint = "other:4317"

	assert.Equal(t, "other:4317", explicit.WithEnv().OTLPEndpoint)
}
