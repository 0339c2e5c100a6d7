// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for stubforge runs and the MCP server.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is the CLI command execution mode.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server mode.
	ModeMCP AppMode = "mcp"
)

const (
	defaultServiceName = "stubforge"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5

	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	envOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

// Verbosity bounds. Disabled discards all log output.
const (
	VerbosityDisabled = -1
	VerbosityMax      = 4
)

// levelTrace sits below debug for the most verbose setting.
const levelTrace = slog.Level(-8)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio. Zero samples everything.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogDisabled discards every log record.
	LogDisabled bool

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// LogWriter receives log output. Nil means stderr.
	LogWriter io.Writer

	// MetricsTextfile, when set, receives the run's metrics in Prometheus
	// text format on shutdown.
	MetricsTextfile string

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelWarn,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// WithVerbosity sets the log level for a verbosity setting: -1 silences
// logging, 0 logs errors only and every step up adds a lower severity, down
// to trace at 4.
func (c Config) WithVerbosity(verbosity int) Config {
	c.LogDisabled = verbosity <= VerbosityDisabled
	c.LogLevel = LevelForVerbosity(verbosity)

	return c
}

// LevelForVerbosity maps a verbosity setting to a slog level. Values above
// the maximum are clamped.
func LevelForVerbosity(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelError
	case verbosity == 1:
		return slog.LevelWarn
	case verbosity == 2:
		return slog.LevelInfo
	case verbosity == 3:
		return slog.LevelDebug
	default:
		return levelTrace
	}
}

// WithEnv fills the OTLP settings from the standard OTEL_EXPORTER_OTLP_*
// environment variables, leaving explicitly set fields alone.
func (c Config) WithEnv() Config {
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = os.Getenv(envOTLPEndpoint)
	}

	if c.OTLPHeaders == nil {
		c.OTLPHeaders = ParseOTLPHeaders(os.Getenv(envOTLPHeaders))
	}

	if raw := os.Getenv(envOTLPInsecure); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err == nil {
			c.OTLPInsecure = insecure
		}
	}

	return c
}

// ParseOTLPHeaders parses an OTLP headers string in "key=value,key=value"
// format. Returns nil for empty or invalid input.
func ParseOTLPHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	result := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
