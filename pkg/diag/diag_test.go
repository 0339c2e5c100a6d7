package diag_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
)

func init() {
	color.NoColor = true
}

func TestLog_ZeroValue(t *testing.T) {
	t.Parallel()

	var log diag.Log

	assert.False(t, log.HasErrors())
	assert.Zero(t, log.Len())
	assert.Empty(t, log.Entries())
}

func TestLog_AddKeepsOrder(t *testing.T) {
	t.Parallel()

	log := diag.NewLog()
	log.Addf("m.py", 3, diag.KindImportError, "Can't find module %q.", "foo")
	log.Add(diag.Diagnostic{Filename: "m.py", Kind: diag.KindMissingDefinition, Message: "missing f"})

	require.True(t, log.HasErrors())
	require.Equal(t, 2, log.Len())

	entries := log.Entries()
	assert.Equal(t, diag.KindImportError, entries[0].Kind)
	assert.Equal(t, `Can't find module "foo".`, entries[0].Message)
	assert.Equal(t, diag.KindMissingDefinition, entries[1].Kind)

	entries[0].Kind = "mutated"
	assert.Equal(t, diag.KindImportError, log.Entries()[0].Kind)
}

func TestLog_Print(t *testing.T) {
	t.Parallel()

	log := diag.NewLog()
	log.Add(diag.Diagnostic{
		Filename: "m.py",
		Line:     7,
		Kind:     diag.KindAnnotationMismatch,
		Message:  "return type of f differs",
		Detail:   "-int\n+str\n",
	})
	log.Addf("m.py", 0, diag.KindExtraDefinition, "g")

	var buf bytes.Buffer
	require.NoError(t, log.Print(&buf))

	want := "File \"m.py\", line 7: return type of f differs [annotation-mismatch]\n" +
		"  -int\n" +
		"  +str\n" +
		"File \"m.py\": g [extra-definition]\n"
	assert.Equal(t, want, buf.String())
}

func TestDiagnostic_String(t *testing.T) {
	t.Parallel()

	d := diag.Diagnostic{Filename: "a.py", Line: 2, Kind: diag.KindNameError, Message: "Name 'x' is not defined"}
	assert.Equal(t, `File "a.py", line 2: Name 'x' is not defined [name-error]`, d.String())

	d.Line = 0
	d.Detail = "hint"
	assert.Equal(t, "File \"a.py\": Name 'x' is not defined [name-error]\n  hint", d.String())
}
