package infer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
	"github.com/Sumatoshi-tech/stubforge/pkg/textutil"
)

// Fault causes.
var (
	ErrSyntax    = errors.New("invalid syntax")
	ErrNotPython = errors.New("not a Python source")
	ErrInternal  = errors.New("internal error")
)

const languagePython = "Python"

// Engine is the built-in inference engine. It implements [Inferencer] and
// [Checker]; one Engine may serve concurrent requests.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine logging through logger. A nil logger discards.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{logger: logger}
}

// Infer derives the stub of req.Source. Diagnostics go to req.Log. The module
// is returned as analyzed; callers apply [Finalize] before printing.
func (e *Engine) Infer(ctx context.Context, req Request) (m *pytd.Module, err error) {
	defer e.recoverFault(req.Filename, &err)

	req = withLog(req)

	a, tree, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	defer tree.Close()

	m, err = a.run()
	if err != nil {
		return nil, err
	}

	err = a.writeDumps(m)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "inferred stub",
		"file", req.Filename,
		"module", a.module,
		"functions", len(m.Functions),
		"classes", len(m.Classes),
		"constants", len(m.Constants),
		"diagnostics", req.Log.Len())

	return m, nil
}

// Check analyzes req.Source and compares the result with expected, the stub
// text the unit is supposed to match. Mismatches go to req.Log.
func (e *Engine) Check(ctx context.Context, req Request, expected string) (err error) {
	defer e.recoverFault(req.Filename, &err)

	req = withLog(req)

	a, tree, err := e.prepare(ctx, req)
	if err != nil {
		return err
	}

	defer tree.Close()

	m, err := a.run()
	if err != nil {
		return err
	}

	a.compare(Finalize(m, req.Options.Optimize), expected)

	return nil
}

func withLog(req Request) Request {
	if req.Log == nil {
		req.Log = diag.NewLog()
	}

	return req
}

// prepare gates the input and builds an analyzer over its syntax tree. The
// caller closes the returned tree.
func (e *Engine) prepare(ctx context.Context, req Request) (*analyzer, *pysyntax.Tree, error) {
	if lang := enry.GetLanguage(filepath.Base(req.Filename), nil); lang != "" && lang != languagePython {
		return nil, nil, &Fault{Filename: req.Filename, Msg: fmt.Sprintf("detected %s source", lang), Err: ErrNotPython}
	}

	if textutil.IsBinary(req.Source) {
		return nil, nil, &Fault{Filename: req.Filename, Msg: "binary content", Err: ErrNotPython}
	}

	tree, err := pysyntax.Parse(ctx, req.Source)
	if err != nil {
		return nil, nil, &Fault{Filename: req.Filename, Msg: err.Error(), Err: err}
	}

	if bad, ok := pysyntax.FirstError(tree.Root()); ok {
		line := pysyntax.Line(bad)
		column := int(bad.StartPoint().Column) //nolint:gosec // tree-sitter coordinates fit in int

		tree.Close()

		return nil, nil, &Fault{
			Filename: req.Filename,
			Line:     line,
			Msg:      ErrSyntax.Error(),
			Trace:    caretTrace(req.Source, line, column),
			Err:      ErrSyntax,
		}
	}

	builtins, err := loadBuiltins(req.Options)
	if err != nil {
		tree.Close()

		return nil, nil, &Fault{Filename: req.Filename, Msg: err.Error(), Err: err}
	}

	a, err := newAnalyzer(ctx, req, tree, builtins, e.logger)
	if err != nil {
		tree.Close()

		return nil, nil, err
	}

	return a, tree, nil
}

// caretTrace renders the offending source line with a caret under column.
func caretTrace(src []byte, line, column int) string {
	lines := strings.Split(string(src), "\n")
	if line < 1 || line > len(lines) {
		return ""
	}

	text := strings.TrimRight(lines[line-1], "\r")
	column = min(max(column, 0), len(text))

	return fmt.Sprintf("  %s\n  %s^\n", text, strings.Repeat(" ", column))
}

// recoverFault turns a panic inside the engine into a Fault carrying the
// stack.
func (e *Engine) recoverFault(filename string, err *error) {
	r := recover()
	if r == nil {
		return
	}

	e.logger.Error("engine panic", "file", filename, "panic", r)

	*err = &Fault{
		Filename: filename,
		Msg:      fmt.Sprintf("%v", r),
		Trace:    string(debug.Stack()),
		Err:      ErrInternal,
	}
}
