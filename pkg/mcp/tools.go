package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/driver"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

// Tool name constants.
const (
	ToolNameGenerate = "stub_generate"
	ToolNameCheck    = "stub_check"
)

// Input size limits.
const (
	// MaxSourceInputBytes is the maximum allowed size for inline source or stub input (1 MB).
	MaxSourceInputBytes = 1 << 20
)

const (
	defaultFilename = "module.py"
	workDirPattern  = "stubforge-mcp-*"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptySource indicates the source parameter is empty.
	ErrEmptySource = errors.New("source parameter is required and must not be empty")
	// ErrEmptyStub indicates the stub parameter is empty.
	ErrEmptyStub = errors.New("stub parameter is required and must not be empty")
	// ErrInputTooLarge indicates an inline input exceeds the size limit.
	ErrInputTooLarge = errors.New("input exceeds maximum size")
	// ErrInvalidFilename indicates the filename is not a plain base name.
	ErrInvalidFilename = errors.New("filename must be a plain file name without directories")
)

// Input types (auto-generate JSON schemas via struct tags).

// GenerateInput is the input schema for the stub_generate tool.
type GenerateInput struct {
	Filename string `json:"filename,omitempty" jsonschema:"optional file name of the source (default: module.py)"`
	Source   string `json:"source"             jsonschema:"python source to infer a stub for"`
}

// CheckInput is the input schema for the stub_check tool.
type CheckInput struct {
	Filename string `json:"filename,omitempty" jsonschema:"optional file name of the source (default: module.py)"`
	Source   string `json:"source"             jsonschema:"python source to check"`
	Stub     string `json:"stub"               jsonschema:"expected stub text"`
}

// Output types.

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Finding is one diagnostic in a tool report.
type Finding struct {
	Line    int    `json:"line,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Report is the result of one tool call.
type Report struct {
	Stub        string    `json:"stub,omitempty"`
	Clean       bool      `json:"clean"`
	Fallback    bool      `json:"fallback,omitempty"`
	Diagnostics []Finding `json:"diagnostics"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func validateInput(name, value string, empty error) error {
	if value == "" {
		return empty
	}

	if len(value) > MaxSourceInputBytes {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrInputTooLarge, name, len(value), MaxSourceInputBytes)
	}

	return nil
}

func sourceFilename(name string) (string, error) {
	if name == "" {
		return defaultFilename, nil
	}

	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}

	return name, nil
}

func (s *Server) handleGenerate(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input GenerateInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateInput("source", input.Source, ErrEmptySource)
	if err != nil {
		return errorResult(err)
	}

	report, err := s.process(ctx, config.ModeGenerate, input.Filename, input.Source, "")
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(report)
}

func (s *Server) handleCheck(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input CheckInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateInput("source", input.Source, ErrEmptySource)
	if err != nil {
		return errorResult(err)
	}

	err = validateInput("stub", input.Stub, ErrEmptyStub)
	if err != nil {
		return errorResult(err)
	}

	report, err := s.process(ctx, config.ModeCheck, input.Filename, input.Source, input.Stub)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(report)
}

// process materializes the inline unit in a scratch directory and runs it
// through the same Processor the CLI uses.
func (s *Server) process(ctx context.Context, mode config.Mode, filename, source, stub string) (report Report, err error) {
	name, err := sourceFilename(filename)
	if err != nil {
		return Report{}, err
	}

	dir, err := os.MkdirTemp("", workDirPattern)
	if err != nil {
		return Report{}, fmt.Errorf("create work dir: %w", err)
	}

	defer func() {
		err = errors.Join(err, os.RemoveAll(dir))
	}()

	cfg := s.cfg
	cfg.Mode = mode
	cfg.OutputTag = ""
	cfg.OutputCFG = ""
	cfg.OutputTypegraph = ""
	cfg.OutputPseudocode = ""

	unit := units.Unit{
		Input:  filepath.Join(dir, name),
		Output: filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+cfg.ImportExt),
	}

	err = os.WriteFile(unit.Input, []byte(source), 0o600)
	if err != nil {
		return Report{}, fmt.Errorf("write source: %w", err)
	}

	if mode == config.ModeCheck {
		err = os.WriteFile(unit.Output, []byte(stub), 0o600)
		if err != nil {
			return Report{}, fmt.Errorf("write stub: %w", err)
		}
	}

	processor := driver.NewProcessor(cfg, importmap.New(nil), driver.ProcessorDeps{
		Stdout:      io.Discard,
		Diagnostics: io.Discard,
		Logger:      s.logger,
	})

	res, err := processor.Process(ctx, unit)
	if err != nil {
		return Report{}, scrubPath(err, dir)
	}

	report = Report{
		Clean:       res.Status == driver.StatusClean,
		Fallback:    res.Fallback,
		Diagnostics: findings(res.Diagnostics),
	}

	if mode == config.ModeGenerate && res.Written {
		data, readErr := os.ReadFile(unit.Output)
		if readErr != nil {
			return Report{}, fmt.Errorf("read stub: %w", readErr)
		}

		report.Stub = strings.ReplaceAll(string(data), dir+string(filepath.Separator), "")
	}

	return report, nil
}

func findings(list []diag.Diagnostic) []Finding {
	out := make([]Finding, 0, len(list))

	for _, d := range list {
		out = append(out, Finding{Line: d.Line, Kind: d.Kind, Message: d.Message, Detail: d.Detail})
	}

	return out
}

// scrubPath drops the scratch directory from error text returned to clients.
func scrubPath(err error, dir string) error {
	return errors.New(strings.ReplaceAll(err.Error(), dir+string(filepath.Separator), ""))
}
