package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/cmd/stubforge/commands"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()

	var out, errOut bytes.Buffer

	code = commands.Execute(t.Context(), args, &out, &errOut)

	return code, out.String(), errOut.String()
}

func TestRunCommand_Flags(t *testing.T) {
	t.Parallel()

	cmd := commands.NewRunCommand()

	for name, def := range map[string]string{
		"check":            "false",
		"python-version":   "3.11",
		"verbosity":        "1",
		"optimize":         "true",
		"scope":            "all",
		"solve-unknowns":   "true",
		"run-builtins":     "true",
		"pytd-extension":   ".pytd",
		"no-fail":          "false",
		"summary":          "false",
		"metrics-textfile": "",
	} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}

	for short, name := range map[string]string{"C": "check", "o": "output", "V": "python-version", "v": "verbosity", "Q": "quick", "O": "optimize", "P": "pythonpath"} {
		flag := cmd.Flags().ShorthandLookup(short)
		require.NotNil(t, flag, short)
		assert.Equal(t, name, flag.Name)
	}
}

func TestRun_SingleInputToStdout(t *testing.T) {
	t.Parallel()

	src := writeFile(t, t.TempDir(), "a.py", "x = 1\n")

	code, stdout, stderr := execute(t, "run", "--verbosity=-1", src)

	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "x: int\n", stdout)
}

func TestRun_PairsWriteStubs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.py", "def f(n):\n    return n + 1\n\nvalue = f(2)\n"+strings.Repeat("# padding\n", 50))
	b := writeFile(t, dir, "b.py", "NAME = \"b\"\n")

	code, stdout, stderr := execute(t, "run", "--verbosity=-1",
		a+":"+filepath.Join(dir, "a.pytd"),
		b+":"+filepath.Join(dir, "b.pytd"))
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(filepath.Join(dir, "b.pytd"))
	require.NoError(t, err)
	assert.Equal(t, "NAME: str\n", string(data))

	assert.FileExists(t, filepath.Join(dir, "a.pytd"))
}

func TestRun_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.py", "x = 1\n")
	b := writeFile(t, dir, "b.py", "y = 2\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no inputs", []string{"run"}, "at least one input"},
		{"shared output", []string{"run", "-o", filepath.Join(dir, "out.pytd"), a, b}, "output"},
		{"bad version", []string{"run", "-V", "three", a}, "version"},
		{"bad scope", []string{"run", "--scope", "some", a}, "scope"},
		{"check without stub", []string{"run", "--check", a}, "check mode needs an output stub"},
		{"check with stdout stub", []string{"run", "-C", "-o", "-", a}, "check mode needs an output stub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, stdout, stderr := execute(t, tt.args...)

			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)
			assert.Contains(t, strings.ToLower(stderr), tt.want)
		})
	}
}

func TestRun_CheckModeMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeFile(t, dir, "a.py", "x = 1\n")
	stub := writeFile(t, dir, "a.pytd", "x: str\n")

	code, _, stderr := execute(t, "run", "--verbosity=-1", "--check", src+":"+stub)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "annotation-mismatch")
	assert.NotContains(t, stderr, "Error: ")
}

func TestRun_CheckModeClean(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeFile(t, dir, "a.py", "x = 1\n")
	stub := writeFile(t, dir, "a.pytd", "x: int\n")

	code, _, stderr := execute(t, "run", "--verbosity=-1", "-C", src+":"+stub)

	assert.Equal(t, 0, code, stderr)
}

func TestRun_FaultFailsWithoutOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeFile(t, dir, "a.py", "def f(:\n")
	out := filepath.Join(dir, "a.pytd")

	code, _, _ := execute(t, "run", "--verbosity=-1", src+":"+out)

	assert.Equal(t, 1, code)
	assert.NoFileExists(t, out)
}

func TestRun_OverrideWritesFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeFile(t, dir, "a.py", "def f(:\n")
	out := filepath.Join(dir, "a.pytd")

	code, _, stderr := execute(t, "run", "--verbosity=-1", "--no-fail", "--output-id", "gen", src+":"+out)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# gen "+src+"\n\n# Caught error in stubforge: "))
}

func TestRun_SummaryAndMetrics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeFile(t, dir, "a.py", "x = 1\n")
	metrics := filepath.Join(dir, "run.prom")

	code, _, stderr := execute(t, "run", "--verbosity=-1", "--summary", "--metrics-textfile", metrics,
		src+":"+filepath.Join(dir, "a.pytd"))
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stderr, "a.py")
	assert.Contains(t, stderr, "final")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stubforge_units")
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	code, stdout, _ := execute(t, "version")

	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout, "stubforge "))
	assert.Contains(t, stdout, "commit: ")
}

func TestMCPCommand_Exists(t *testing.T) {
	t.Parallel()

	cmd := commands.NewMCPCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mcp", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	flag := cmd.Flags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 3)
	for _, sub := range commands.NewRootCommand().Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{"run", "mcp", "version"})
}
