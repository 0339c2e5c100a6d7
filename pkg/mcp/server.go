// Package mcp implements a Model Context Protocol server exposing stub
// generation and stub checking as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/observability"
	"github.com/Sumatoshi-tech/stubforge/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "stubforge"

	// toolCount is the expected number of registered tools.
	toolCount = 2

	// metricsPass labels tool invocations in the unit metrics.
	metricsPass = "mcp"
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil discards.
	Logger *slog.Logger

	// Metrics is an optional unit metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.RunMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with the stub tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	cfg     config.RunConfig
	logger  *slog.Logger
	mu      sync.RWMutex
	tools   []string
	metrics *observability.RunMetrics
	tracer  trace.Tracer
}

// NewServer creates a new MCP server. Every tool call processes its unit with
// cfg; the mode and the dump outputs are set per tool.
func NewServer(cfg config.RunConfig, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{
		inner:   inner,
		cfg:     cfg,
		logger:  logger,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameGenerate,
		Description: generateToolDescription,
	}, withMetrics(s.metrics, withTracing(s.tracer, ToolNameGenerate, s.handleGenerate)))

	s.trackTool(ToolNameGenerate)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameCheck,
		Description: checkToolDescription,
	}, withMetrics(s.metrics, withTracing(s.tracer, ToolNameCheck, s.handleCheck)))

	s.trackTool(ToolNameCheck)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record each invocation as a unit.
func withMetrics[Input any](
	metrics *observability.RunMetrics,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		result, output, err := handler(ctx, req, input)

		status := "clean"
		if err != nil || (result != nil && result.IsError) {
			status = "failed"

			metrics.RecordFault(ctx, metricsPass)
		}

		diagnostics := 0
		if report, ok := output.Data.(Report); ok {
			diagnostics = len(report.Diagnostics)

			if !report.Clean {
				status = "failed"
			}
		}

		metrics.RecordUnit(ctx, metricsPass, status, time.Since(start), diagnostics)

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	generateToolDescription = "Infer a type stub for inline Python source. " +
		"Returns the stub text and any diagnostics found while analyzing the source."

	checkToolDescription = "Check inline Python source against an existing type stub. " +
		"Returns the diagnostics of every declaration that does not match."
)
