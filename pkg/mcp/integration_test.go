package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/mcp"
)

func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func callReport(t *testing.T, session *mcpsdk.ClientSession, tool string, args map[string]any) (mcp.Report, *mcpsdk.CallToolResult) {
	t.Helper()

	result, err := session.CallTool(t.Context(), &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	var report mcp.Report

	if result.IsError {
		return report, result
	}

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text.Text), &report))

	return report, result
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	toolsResult, err := session.ListTools(t.Context(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{mcp.ToolNameGenerate, mcp.ToolNameCheck}, toolNames)
}

func TestMCPServer_ListToolNames(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(config.Default(), mcp.ServerDeps{})

	assert.Equal(t, []string{mcp.ToolNameCheck, mcp.ToolNameGenerate}, srv.ListToolNames())
}

func TestMCPServer_Generate(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	report, result := callReport(t, session, mcp.ToolNameGenerate, map[string]any{
		"source": "x = 1\n",
	})
	require.False(t, result.IsError)

	assert.True(t, report.Clean)
	assert.Equal(t, "x: int\n", report.Stub)
	assert.Empty(t, report.Diagnostics)
}

func TestMCPServer_GenerateFaultIsToolError(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	_, result := callReport(t, session, mcp.ToolNameGenerate, map[string]any{
		"source":   "def f(:\n",
		"filename": "broken.py",
	})
	require.True(t, result.IsError)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "broken.py")
	assert.NotContains(t, text.Text, "stubforge-mcp-")
}

func TestMCPServer_GenerateWithOverride(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.OverrideOnFailure = true

	session := connect(t, mcp.NewServer(cfg, mcp.ServerDeps{}))

	report, result := callReport(t, session, mcp.ToolNameGenerate, map[string]any{
		"source": "def f(:\n",
	})
	require.False(t, result.IsError)

	assert.True(t, report.Clean)
	assert.True(t, report.Fallback)
	assert.Contains(t, report.Stub, "# Caught error in stubforge: ")
}

func TestMCPServer_CheckMismatch(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	report, result := callReport(t, session, mcp.ToolNameCheck, map[string]any{
		"source": "x = 1\n",
		"stub":   "x: str\n",
	})
	require.False(t, result.IsError)

	assert.False(t, report.Clean)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "annotation-mismatch", report.Diagnostics[0].Kind)
	assert.Equal(t, 1, report.Diagnostics[0].Line)
}

func TestMCPServer_CheckClean(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	report, result := callReport(t, session, mcp.ToolNameCheck, map[string]any{
		"source": "x = 1\n",
		"stub":   "x: int\n",
	})
	require.False(t, result.IsError)

	assert.True(t, report.Clean)
	assert.Empty(t, report.Diagnostics)
}

func TestMCPServer_InputErrors(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{}))

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"empty source", mcp.ToolNameGenerate, map[string]any{"source": ""}, "source parameter is required"},
		{"empty stub", mcp.ToolNameCheck, map[string]any{"source": "x = 1\n", "stub": ""}, "stub parameter is required"},
		{"nested filename", mcp.ToolNameGenerate, map[string]any{"source": "x = 1\n", "filename": "../a.py"}, "plain file name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := callReport(t, session, tt.tool, tt.args)
			require.True(t, result.IsError)

			text, ok := result.Content[0].(*mcpsdk.TextContent)
			require.True(t, ok)
			assert.Contains(t, text.Text, tt.want)
		})
	}
}

func TestMCPServer_TracingAddsTraceID(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	session := connect(t, mcp.NewServer(config.Default(), mcp.ServerDeps{Tracer: tp.Tracer("test")}))

	_, result := callReport(t, session, mcp.ToolNameGenerate, map[string]any{"source": "x = 1\n"})
	require.False(t, result.IsError)
	require.Len(t, result.Content, 2)

	text, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "trace_id=")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.stub_generate", spans[0].Name)
}
