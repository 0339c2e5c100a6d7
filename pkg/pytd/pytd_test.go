package pytd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

var py311 = config.Version{Major: 3, Minor: 11}

func intT() pytd.Type { return pytd.NamedType("int") }
func strT() pytd.Type { return pytd.NamedType("str") }

func sampleModule() *pytd.Module {
	return &pytd.Module{
		Name: "sample",
		Constants: []pytd.Constant{
			{Name: "VERSION", Type: strT()},
			{Name: "registry", Type: pytd.GenericType("dict", strT(), pytd.NamedType("collections.OrderedDict"))},
		},
		Classes: []pytd.Class{
			{Name: "Empty"},
			{
				Name:      "Point",
				Bases:     []pytd.Type{pytd.NamedType("object")},
				Constants: []pytd.Constant{{Name: "x", Type: intT()}},
				Methods: []pytd.Function{
					{Name: "__init__", Signatures: []pytd.Signature{{
						Params: []pytd.Param{{Name: "self"}, {Name: "x", Type: intT(), Optional: true}},
						Return: pytd.NoneType,
					}}},
					{Name: "origin", Kind: pytd.KindStaticMethod, Signatures: []pytd.Signature{{Return: pytd.NamedType("Point")}}},
				},
			},
		},
		Functions: []pytd.Function{
			{Name: "f", Signatures: []pytd.Signature{
				{Params: []pytd.Param{{Name: "a", Type: intT()}}, Return: intT()},
				{Params: []pytd.Param{{Name: "a", Type: strT()}}, Return: strT()},
			}},
			{Name: "g", Signatures: []pytd.Signature{{
				Params: []pytd.Param{
					{Name: "args", Kind: pytd.ParamVarargs},
					{Name: "kwargs", Type: pytd.UnknownType, Kind: pytd.ParamKwargs},
				},
				Return: pytd.Union{Types: []pytd.Type{intT(), pytd.NoneType}},
			}}},
		},
	}
}

func TestPrint_Layout(t *testing.T) {
	t.Parallel()

	want := `from typing import Any as Unknown, Union, overload
import collections

VERSION: str
registry: dict[str, collections.OrderedDict]

class Empty: ...

class Point(object):
    x: int
    def __init__(self, x: int = ...) -> None: ...
    @staticmethod
    def origin() -> Point: ...

@overload
def f(a: int) -> int: ...
@overload
def f(a: str) -> str: ...
def g(*args, **kwargs: Unknown) -> Union[int, None]: ...
`

	assert.Equal(t, want, pytd.Print(sampleModule()))
}

func TestPrint_EmptyModuleIsNewline(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "\n", pytd.Print(&pytd.Module{}))
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	text := pytd.Print(sampleModule())

	parsed, err := pytd.Parse(text, py311)
	require.NoError(t, err)
	assert.Equal(t, text, pytd.Print(parsed))
	require.NoError(t, pytd.CheckRoundTrip(text, py311))

	f, ok := parsed.Lookup("f").(*pytd.Function)
	require.True(t, ok)
	assert.Len(t, f.Signatures, 2)
}

func TestParse_RoundTripOpenTuples(t *testing.T) {
	t.Parallel()

	ellipsis := pytd.NamedType("...")
	anyTuple := pytd.GenericType("tuple", pytd.AnyType, ellipsis)

	tests := []struct {
		name   string
		module *pytd.Module
	}{
		{"constant", &pytd.Module{Constants: []pytd.Constant{{Name: "x", Type: anyTuple}}}},
		{"return", &pytd.Module{Functions: []pytd.Function{{Name: "f", Signatures: []pytd.Signature{{Return: anyTuple}}}}}},
		{"varargs passthrough", &pytd.Module{Functions: []pytd.Function{{Name: "g", Signatures: []pytd.Signature{{
			Params: []pytd.Param{{Name: "a", Kind: pytd.ParamVarargs}},
			Return: pytd.GenericType("tuple", intT(), ellipsis),
		}}}}}},
		{"qualified element", &pytd.Module{Constants: []pytd.Constant{{
			Name: "paths", Type: pytd.GenericType("tuple", pytd.NamedType("os.PathLike"), ellipsis),
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			text := pytd.Print(tt.module)

			assert.NotContains(t, text, "import ..")
			require.NoError(t, pytd.CheckRoundTrip(text, py311), text)

			parsed, err := pytd.Parse(text, py311)
			require.NoError(t, err)
			assert.Equal(t, text, pytd.Print(parsed))
		})
	}
}

func TestParse_HandwrittenStub(t *testing.T) {
	t.Parallel()

	src := `"""Module docstring."""
from typing import Optional
import os

# comment
PATH: os.PathLike

class A(Base):
    """Docstring."""
    def m(self, x: Optional[int] = None, *, y: list[str]) -> 'A': ...

def h(a: int | str) -> tuple[int, ...]: ...
`

	m, err := pytd.Parse(src, py311)
	require.NoError(t, err)

	require.Len(t, m.Constants, 1)
	assert.Equal(t, "os.PathLike", m.Constants[0].Type.String())

	require.Len(t, m.Classes, 1)
	method, ok := m.Classes[0].Method("m")
	require.True(t, ok)

	sig := method.Signatures[0]
	require.Len(t, sig.Params, 3)
	assert.Equal(t, "Union[int, None]", sig.Params[1].Type.String())
	assert.True(t, sig.Params[1].Optional)
	assert.Equal(t, "list[str]", sig.Params[2].Type.String())
	assert.Equal(t, "A", sig.Return.String())

	h, ok := m.Lookup("h").(*pytd.Function)
	require.True(t, ok)
	assert.Equal(t, "Union[int, str]", h.Signatures[0].Params[0].Type.String())
	assert.Equal(t, "tuple[int, ...]", h.Signatures[0].Return.String())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		line int
	}{
		{name: "syntax error", src: "x: int\ndef f(:\n", line: 2},
		{name: "statement", src: "x: int\nfor a in b:\n    pass\n", line: 2},
		{name: "unannotated constant", src: "x = 1\n", line: 1},
		{name: "constant value", src: "x: int = 3\n", line: 1},
		{name: "unknown decorator", src: "@cache\ndef f() -> int: ...\n", line: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := pytd.Parse(tt.src, py311)

			var parseErr *pytd.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.line, parseErr.Line)
		})
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	_, err := pytd.Parse("x: int\n", config.Version{Major: 2, Minor: 7})
	require.ErrorIs(t, err, pytd.ErrUnsupportedVersion)
}

func TestCheckRoundTrip_Failure(t *testing.T) {
	t.Parallel()

	err := pytd.CheckRoundTrip("def f(:\n", py311)

	var selfErr *pytd.SelfCheckError
	require.ErrorAs(t, err, &selfErr)

	var parseErr *pytd.ParseError
	require.ErrorAs(t, err, &parseErr)

	err = pytd.CheckRoundTrip("x:    int\n", py311)
	require.ErrorAs(t, err, &selfErr)
	require.ErrorIs(t, err, pytd.ErrUnstableOutput)
}

func TestCanonicalize_SortsAndIsDeterministic(t *testing.T) {
	t.Parallel()

	m := &pytd.Module{
		Constants: []pytd.Constant{{Name: "b", Type: intT()}, {Name: "a", Type: strT()}},
		Classes:   []pytd.Class{{Name: "Z"}, {Name: "Y"}},
		Functions: []pytd.Function{
			{Name: "g", Signatures: []pytd.Signature{{Return: intT()}}},
			{Name: "f", Signatures: []pytd.Signature{
				{Params: []pytd.Param{{Name: "x", Type: strT()}}, Return: strT()},
				{Params: []pytd.Param{{Name: "x", Type: intT()}}, Return: intT()},
			}},
			{Name: "g", Signatures: []pytd.Signature{{Params: []pytd.Param{{Name: "a"}}, Return: intT()}}},
		},
	}

	canon := pytd.Canonicalize(m)

	assert.Equal(t, "a", canon.Constants[0].Name)
	assert.Equal(t, "Y", canon.Classes[0].Name)
	require.Len(t, canon.Functions, 2)
	assert.Equal(t, "f", canon.Functions[0].Name)
	assert.Equal(t, "(x: int) -> int", pytd.PrintSignature(canon.Functions[0].Signatures[0]))
	assert.Len(t, canon.Functions[1].Signatures, 2)

	assert.Equal(t, pytd.Print(canon), pytd.Print(pytd.Canonicalize(canon)))
	assert.Equal(t, "b", m.Constants[0].Name, "input must not be reordered")
}

func TestOptimize(t *testing.T) {
	t.Parallel()

	floatT := pytd.NamedType("float")
	union := func(types ...pytd.Type) pytd.Type { return pytd.Union{Types: types} }
	fn := func(sigs ...pytd.Signature) *pytd.Module {
		return &pytd.Module{Functions: []pytd.Function{{Name: "f", Signatures: sigs}}}
	}
	ret := func(m *pytd.Module) []string {
		var out []string
		for _, sig := range m.Functions[0].Signatures {
			out = append(out, pytd.PrintSignature(sig))
		}

		return out
	}
	p := []pytd.Param{{Name: "a", Type: intT()}}

	tests := []struct {
		name string
		in   *pytd.Module
		opts pytd.Options
		want []string
	}{
		{
			name: "duplicate signatures",
			in:   fn(pytd.Signature{Params: p, Return: intT()}, pytd.Signature{Params: p, Return: intT()}),
			opts: pytd.DefaultOptions(),
			want: []string{"(a: int) -> int"},
		},
		{
			name: "identical parameters combine returns",
			in:   fn(pytd.Signature{Params: p, Return: intT()}, pytd.Signature{Params: p, Return: strT()}),
			opts: pytd.DefaultOptions(),
			want: []string{"(a: int) -> Union[int, str]"},
		},
		{
			name: "nested unions flatten and dedupe",
			in:   fn(pytd.Signature{Return: union(intT(), union(strT(), intT()))}),
			opts: pytd.DefaultOptions(),
			want: []string{"() -> Union[int, str]"},
		},
		{
			name: "any absorbs",
			in:   fn(pytd.Signature{Return: union(intT(), pytd.AnyType)}),
			opts: pytd.DefaultOptions(),
			want: []string{"() -> Any"},
		},
		{
			name: "wide union collapses",
			in:   fn(pytd.Signature{Return: union(intT(), strT(), floatT)}),
			opts: pytd.Options{MaxUnionWidth: 2},
			want: []string{"() -> Any"},
		},
		{
			name: "numeric tower only with abcs",
			in:   fn(pytd.Signature{Return: union(intT(), floatT)}),
			opts: pytd.Options{UseABCs: true, MaxUnionWidth: 7},
			want: []string{"() -> float"},
		},
		{
			name: "lossy merges containers",
			in: fn(pytd.Signature{Return: union(
				pytd.GenericType("list", intT()), pytd.GenericType("list", strT()))}),
			opts: pytd.Options{Lossy: true, MaxUnionWidth: 7},
			want: []string{"() -> list[Union[int, str]]"},
		},
		{
			name: "non-lossy keeps containers",
			in: fn(pytd.Signature{Return: union(
				pytd.GenericType("list", intT()), pytd.GenericType("list", strT()))}),
			opts: pytd.DefaultOptions(),
			want: []string{"() -> Union[list[int], list[str]]"},
		},
		{
			name: "remove mutable",
			in: fn(pytd.Signature{
				Params: []pytd.Param{{Name: "xs", Type: pytd.GenericType("list", intT())}},
				Return: pytd.GenericType("list", intT()),
			}),
			opts: pytd.Options{RemoveMutable: true},
			want: []string{"(xs: Sequence[int]) -> list[int]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ret(pytd.Optimize(tt.in, tt.opts)))
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	assert.Nil(t, pytd.Join())
	assert.Equal(t, intT(), pytd.Join(intT(), intT()))
	assert.Equal(t, "Union[int, str]", pytd.Join(intT(), pytd.Union{Types: []pytd.Type{strT(), intT()}}).String())
	assert.True(t, pytd.IsUnknown(pytd.GenericType("list", pytd.UnknownType)))
	assert.False(t, pytd.IsUnknown(intT()))
}
