// Package infer is the type inference engine: it derives a stub from a Python
// source unit, or checks a source unit against an existing stub.
package infer

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

// Inferencer derives the stub of one source unit.
type Inferencer interface {
	Infer(ctx context.Context, req Request) (*pytd.Module, error)
}

// Checker verifies one source unit against its expected stub text. Findings
// go to req.Log; the returned error is reserved for faults.
type Checker interface {
	Check(ctx context.Context, req Request, expected string) error
}

// Options are the analysis settings derived from the run configuration.
type Options struct {
	Version          config.Version
	Deep             bool
	SolveUnknowns    bool
	MaximumDepth     int
	RunBuiltins      bool
	BuiltinsPath     string
	ReverseOperators bool
	CacheUnknowns    bool
	SkipRepeatCalls  bool
	SearchPath       []string
	ImportExt        string
	DropPrefixes     []string
	Optimize         bool
	OutputCFG        string
	OutputTypegraph  string
	OutputPseudocode string
}

// OptionsFrom extracts the engine options from a run configuration.
func OptionsFrom(cfg config.RunConfig) Options {
	return Options{
		Version:          cfg.Version,
		Deep:             cfg.Deep(),
		SolveUnknowns:    cfg.SolveUnknowns,
		MaximumDepth:     cfg.MaximumDepth(),
		RunBuiltins:      cfg.RunBuiltins,
		BuiltinsPath:     cfg.BuiltinsPath,
		ReverseOperators: cfg.ReverseOperators,
		CacheUnknowns:    cfg.CacheUnknowns,
		SkipRepeatCalls:  cfg.SkipRepeatCalls,
		SearchPath:       cfg.SearchPath(),
		ImportExt:        cfg.ImportExt,
		DropPrefixes:     cfg.DropPrefixes(),
		Optimize:         cfg.Optimize,
		OutputCFG:        cfg.OutputCFG,
		OutputTypegraph:  cfg.OutputTypegraph,
		OutputPseudocode: cfg.OutputPseudocode,
	}
}

// Request is one engine invocation.
type Request struct {
	Source   []byte
	Filename string
	Options  Options
	Imports  importmap.Map
	Log      *diag.Log
}

// Fault is an engine failure on one unit: unparseable or non-Python input, or
// an internal error. Trace holds whatever context was captured.
type Fault struct {
	Filename string
	Line     int
	Msg      string
	Trace    string
	Err      error
}

func (f *Fault) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", f.Filename, f.Line, f.Msg)
	}

	return fmt.Sprintf("%s: %s", f.Filename, f.Msg)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Finalize prepares an inferred module for output: optimized when optimize is
// set, then put in canonical order. Generated and checked stubs go through the
// same steps.
func Finalize(m *pytd.Module, optimize bool) *pytd.Module {
	if optimize {
		m = pytd.Optimize(m, pytd.DefaultOptions())
	}

	return pytd.Canonicalize(m)
}
