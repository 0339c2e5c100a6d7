package infer_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/importmap"
	"github.com/Sumatoshi-tech/stubforge/pkg/infer"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

func baseOptions() infer.Options {
	return infer.Options{
		Version:     config.Version{Major: 3, Minor: 11},
		RunBuiltins: true,
		ImportExt:   ".pyi",
	}
}

func request(src string, opts infer.Options) infer.Request {
	return infer.Request{
		Source:   []byte(src),
		Filename: "sample.py",
		Options:  opts,
		Imports:  importmap.New(nil),
		Log:      diag.NewLog(),
	}
}

func inferModule(t *testing.T, src string, opts infer.Options) (*pytd.Module, *diag.Log) {
	t.Helper()

	req := request(src, opts)

	m, err := infer.NewEngine(nil).Infer(t.Context(), req)
	require.NoError(t, err)

	return infer.Finalize(m, opts.Optimize), req.Log
}

func kinds(log *diag.Log) []string {
	entries := log.Entries()
	out := make([]string, len(entries))

	for i, d := range entries {
		out[i] = d.Kind
	}

	return out
}

func TestInfer_Constants(t *testing.T) {
	t.Parallel()

	m, log := inferModule(t, "x = 1\ny = \"s\"\nz = [1, 2]\n", baseOptions())

	assert.False(t, log.HasErrors())
	assert.Equal(t, "x: int\n", pytd.PrintConstant(*m.Lookup("x").(*pytd.Constant)))
	assert.Equal(t, "y: str\n", pytd.PrintConstant(*m.Lookup("y").(*pytd.Constant)))
	assert.Equal(t, "z: list[int]\n", pytd.PrintConstant(*m.Lookup("z").(*pytd.Constant)))
}

func TestInfer_CallSiteSignature(t *testing.T) {
	t.Parallel()

	src := "def add(a, b):\n    return a + b\n\nadd(1, 2)\n"

	m, _ := inferModule(t, src, baseOptions())

	fn, ok := m.Lookup("add").(*pytd.Function)
	require.True(t, ok)
	assert.Equal(t, "def add(a: int, b: int) -> int: ...\n", pytd.PrintFunction(*fn))
}

func TestInfer_EntryScopeSkipsUnreferenced(t *testing.T) {
	t.Parallel()

	src := "def used():\n    return 1\n\ndef unused():\n    return 2\n\nused()\n"

	m, _ := inferModule(t, src, baseOptions())
	assert.NotNil(t, m.Lookup("used"))
	assert.Nil(t, m.Lookup("unused"))

	deep := baseOptions()
	deep.Deep = true

	m, _ = inferModule(t, src, deep)
	assert.NotNil(t, m.Lookup("used"))
	assert.NotNil(t, m.Lookup("unused"))
}

func TestInfer_SolveUnknowns(t *testing.T) {
	t.Parallel()

	src := "def ident(x):\n    return x\n"

	opts := baseOptions()
	opts.Deep = true

	m, _ := inferModule(t, src, opts)
	assert.Contains(t, pytd.Print(m), "Unknown")

	opts.SolveUnknowns = true

	m, _ = inferModule(t, src, opts)
	assert.NotContains(t, pytd.Print(m), "Unknown")
	assert.Contains(t, pytd.Print(m), "def ident(x: Any) -> Any: ...")
}

func TestInfer_MaximumDepth(t *testing.T) {
	t.Parallel()

	src := "def inner():\n    return 1\n\ndef outer():\n    return inner()\n\nouter()\n"

	m, _ := inferModule(t, src, baseOptions())
	assert.Equal(t, "def outer() -> int: ...\n", pytd.PrintFunction(*m.Lookup("outer").(*pytd.Function)))

	shallow := baseOptions()
	shallow.MaximumDepth = 1

	m, _ = inferModule(t, src, shallow)
	assert.Equal(t, "def outer() -> Any: ...\n", pytd.PrintFunction(*m.Lookup("outer").(*pytd.Function)))
}

func TestInfer_ImportError(t *testing.T) {
	t.Parallel()

	_, log := inferModule(t, "import no_such_module_anywhere\n", baseOptions())

	require.Equal(t, []string{diag.KindImportError}, kinds(log))
	assert.Equal(t, 1, log.Entries()[0].Line)
}

func TestInfer_ImportFromMappedStub(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stub := filepath.Join(dir, "helpers.pyi")
	require.NoError(t, os.WriteFile(stub, []byte("def size() -> int: ...\n"), 0o600))

	req := request("from helpers import size\nn = size()\n", baseOptions())
	req.Imports = importmap.New(map[string]string{"helpers": stub})

	m, err := infer.NewEngine(nil).Infer(t.Context(), req)
	require.NoError(t, err)

	assert.False(t, req.Log.HasErrors())
	assert.Equal(t, "n: int\n", pytd.PrintConstant(*m.Lookup("n").(*pytd.Constant)))
	assert.Nil(t, m.Lookup("size"))
}

func TestInfer_UnsupportedOperands(t *testing.T) {
	t.Parallel()

	m, log := inferModule(t, "x = \"a\" + 1\n", baseOptions())

	assert.Equal(t, []string{diag.KindUnsupportedOperand}, kinds(log))
	assert.Equal(t, "x: Any\n", pytd.PrintConstant(*m.Lookup("x").(*pytd.Constant)))
}

func TestInfer_NameError(t *testing.T) {
	t.Parallel()

	_, log := inferModule(t, "print(undefined_name)\n", baseOptions())

	require.Equal(t, []string{diag.KindNameError}, kinds(log))
	assert.Contains(t, log.Entries()[0].Message, "undefined_name")
}

func TestInfer_LaterBindingIsNotNameError(t *testing.T) {
	t.Parallel()

	_, log := inferModule(t, "def f():\n    return g()\n\ndef g():\n    return 1\n\nf()\n", baseOptions())

	assert.False(t, log.HasErrors())
}

func TestInfer_SyntaxErrorIsFault(t *testing.T) {
	t.Parallel()

	_, err := infer.NewEngine(nil).Infer(t.Context(), request("x = 1\ndef f(:\n", baseOptions()))
	require.ErrorIs(t, err, infer.ErrSyntax)

	var fault *infer.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 2, fault.Line)
	assert.Contains(t, fault.Trace, "def f(:")
	assert.Contains(t, fault.Trace, "^")
	assert.True(t, strings.HasPrefix(fault.Error(), "sample.py:2:"))
}

func TestInfer_NonPythonIsFault(t *testing.T) {
	t.Parallel()

	req := request("package main\n\nfunc main() {}\n", baseOptions())
	req.Filename = "main.go"

	_, err := infer.NewEngine(nil).Infer(t.Context(), req)
	require.ErrorIs(t, err, infer.ErrNotPython)

	_, err = infer.NewEngine(nil).Infer(t.Context(), request("x = 1\x00\n", baseOptions()))
	require.ErrorIs(t, err, infer.ErrNotPython)
}

func TestInfer_Deterministic(t *testing.T) {
	t.Parallel()

	src := "class Point:\n    def __init__(self, x):\n        self.x = x\n\n" +
		"def make():\n    return Point(1)\n\np = make()\nlimit = 3.5\n"

	first, _ := inferModule(t, src, baseOptions())
	second, _ := inferModule(t, src, baseOptions())

	assert.Equal(t, pytd.Print(first), pytd.Print(second))
	assert.Contains(t, pytd.Print(first), "class Point:")
}

func TestCheck_GeneratedStubIsClean(t *testing.T) {
	t.Parallel()

	src := "import os\n\nNAME = \"demo\"\n\ndef scale(v, k=2):\n    return v * k\n\nresult = scale(3)\n"
	opts := baseOptions()
	opts.Optimize = true

	m, log := inferModule(t, src, opts)
	require.False(t, log.HasErrors())

	req := request(src, opts)
	require.NoError(t, infer.NewEngine(nil).Check(t.Context(), req, pytd.Print(m)))
	assert.False(t, req.Log.HasErrors(), "%v", req.Log.Entries())
}

func TestCheck_Mismatch(t *testing.T) {
	t.Parallel()

	req := request("x = 1\n", baseOptions())
	require.NoError(t, infer.NewEngine(nil).Check(t.Context(), req, "x: str\n"))

	entries := req.Log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, diag.KindAnnotationMismatch, entries[0].Kind)
	assert.Equal(t, 1, entries[0].Line)
	assert.Contains(t, entries[0].Detail, "- x: str")
	assert.Contains(t, entries[0].Detail, "+ x: int")
}

func TestCheck_MissingAndExtra(t *testing.T) {
	t.Parallel()

	req := request("x = 1\ny = 2\n", baseOptions())
	expected := "x: int\n\ndef gone() -> int: ...\n"

	require.NoError(t, infer.NewEngine(nil).Check(t.Context(), req, expected))

	assert.ElementsMatch(t, []string{diag.KindMissingDefinition, diag.KindExtraDefinition}, kinds(req.Log))
}

func TestCheck_UnparseableStub(t *testing.T) {
	t.Parallel()

	req := request("x = 1\n", baseOptions())
	require.NoError(t, infer.NewEngine(nil).Check(t.Context(), req, "def (\n"))

	assert.Equal(t, []string{diag.KindPyiError}, kinds(req.Log))
}

func TestInfer_Dumps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := baseOptions()
	opts.OutputCFG = filepath.Join(dir, "flow.dot")
	opts.OutputTypegraph = filepath.Join(dir, "types.html")
	opts.OutputPseudocode = filepath.Join(dir, "code.txt.lz4")

	src := "def f(n):\n    if n:\n        return 1\n    return 2\n\nfor i in range(3):\n    f(i)\n"

	_, log := inferModule(t, src, opts)
	require.False(t, log.HasErrors(), "%v", log.Entries())

	cfg, err := os.ReadFile(opts.OutputCFG)
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "digraph")
	assert.Contains(t, string(cfg), "for i in range(3):")

	graph, err := os.ReadFile(opts.OutputTypegraph)
	require.NoError(t, err)
	assert.Contains(t, string(graph), "echarts")

	f, err := os.Open(opts.OutputPseudocode)
	require.NoError(t, err)

	defer f.Close()

	code, err := io.ReadAll(lz4.NewReader(f))
	require.NoError(t, err)
	assert.Contains(t, string(code), "def f(n):")
	assert.Contains(t, string(code), "return 2")
}

func TestFault_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.py:3: boom", (&infer.Fault{Filename: "a.py", Line: 3, Msg: "boom"}).Error())
	assert.Equal(t, "a.py: boom", (&infer.Fault{Filename: "a.py", Msg: "boom"}).Error())
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ImportExt = ".pyi"

	opts := infer.OptionsFrom(cfg)

	assert.Equal(t, cfg.Version, opts.Version)
	assert.Equal(t, ".pyi", opts.ImportExt)
	assert.Equal(t, cfg.Deep(), opts.Deep)
}
