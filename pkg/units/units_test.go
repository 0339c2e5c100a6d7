package units_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

func pair(in, out string) string {
	return in + units.Separator + out
}

func TestResolve_SingleBareInput(t *testing.T) {
	t.Parallel()

	got, err := units.Resolve([]string{"x.py"}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "x.py", got[0].Input)
	assert.Empty(t, got[0].Output)
	assert.False(t, got[0].HasOutput())
}

func TestResolve_SingleBareInputWithSharedOutput(t *testing.T) {
	t.Parallel()

	got, err := units.Resolve([]string{"x.py"}, "x.pytd")
	require.NoError(t, err)

	assert.Equal(t, []units.Unit{{Input: "x.py", Output: "x.pytd"}}, got)
	assert.True(t, got[0].HasOutput())
}

func TestResolve_PairsPreserveOrder(t *testing.T) {
	t.Parallel()

	got, err := units.Resolve([]string{pair("b.py", "b.pytd"), pair("a.py", "a.pytd")}, "")
	require.NoError(t, err)

	assert.Equal(t, []units.Unit{
		{Input: "b.py", Output: "b.pytd"},
		{Input: "a.py", Output: "a.pytd"},
	}, got)
	assert.Equal(t, []string{"b.py", "a.py"}, units.Inputs(got))
}

func TestResolve_StdoutSentinelIsNotAFile(t *testing.T) {
	t.Parallel()

	got, err := units.Resolve([]string{pair("a.py", config.StdoutSentinel)}, "")
	require.NoError(t, err)
	assert.False(t, got[0].HasOutput())
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		output string
		want   error
	}{
		{name: "no arguments", args: nil, want: units.ErrNoInputs},
		{name: "shared output with several inputs", args: []string{pair("a.py", "a.pytd"), pair("b.py", "b.pytd")}, output: "out.pytd", want: units.ErrSharedOutput},
		{name: "bare input among several", args: []string{pair("a.py", "a.pytd"), "b.py"}, want: units.ErrAmbiguousPair},
		{name: "three tokens", args: []string{"a.py" + units.Separator + "b" + units.Separator + "c"}, want: units.ErrMalformedPair},
		{name: "empty output token", args: []string{pair("a.py", "")}, want: units.ErrMalformedPair},
		{name: "empty argument", args: []string{""}, want: units.ErrMalformedPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := units.Resolve(tt.args, tt.output)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, config.ErrConfiguration)
			assert.Nil(t, got)
		})
	}
}

func TestRequireOutputs(t *testing.T) {
	t.Parallel()

	require.NoError(t, units.RequireOutputs([]units.Unit{{Input: "a.py", Output: "a.pytd"}}))

	for _, out := range []string{"", config.StdoutSentinel} {
		err := units.RequireOutputs([]units.Unit{{Input: "a.py", Output: "a.pytd"}, {Input: "b.py", Output: out}})
		require.ErrorIs(t, err, units.ErrMissingStub, out)
		require.ErrorIs(t, err, config.ErrConfiguration)
		assert.Contains(t, err.Error(), `"b.py"`)
	}
}

func TestUnit_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.py", units.Unit{Input: "a.py"}.String())
	assert.Equal(t, pair("a.py", "a.pytd"), units.Unit{Input: "a.py", Output: "a.pytd"}.String())
}
