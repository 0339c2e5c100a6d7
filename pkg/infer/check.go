package infer

import (
	"errors"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/stubforge/pkg/diag"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

// compare reports every top-level declaration where actual and the expected
// stub text disagree.
func (a *analyzer) compare(actual *pytd.Module, expected string) {
	want, err := pytd.Parse(expected, a.opts.Version)
	if err != nil {
		line := 0

		var perr *pytd.ParseError
		if errors.As(err, &perr) {
			line = perr.Line
		}

		a.log.Add(diag.Diagnostic{
			Filename: a.filename,
			Line:     line,
			Kind:     diag.KindPyiError,
			Message:  "Expected stub does not parse: " + err.Error(),
		})

		return
	}

	have := declarations(actual)
	expect := declarations(pytd.Canonicalize(want))

	for _, name := range sortedKeys(expect) {
		got, ok := have[name]

		switch {
		case !ok:
			a.log.Addf(a.filename, 0, diag.KindMissingDefinition,
				"Definition %s is in the stub but missing from the source", name)
		case got != expect[name]:
			a.log.Add(diag.Diagnostic{
				Filename: a.filename,
				Line:     a.lines[name],
				Kind:     diag.KindAnnotationMismatch,
				Message:  "Inferred type of " + name + " does not match the stub",
				Detail:   lineDiff(expect[name], got),
			})
		}
	}

	for _, name := range sortedKeys(have) {
		if _, ok := expect[name]; !ok {
			a.log.Addf(a.filename, a.lines[name], diag.KindExtraDefinition,
				"Definition %s is in the source but not in the stub", name)
		}
	}
}

// declarations renders each top-level declaration of m by name.
func declarations(m *pytd.Module) map[string]string {
	out := make(map[string]string, len(m.Constants)+len(m.Classes)+len(m.Functions))

	for _, c := range m.Constants {
		out[c.Name] = pytd.PrintConstant(c)
	}

	for _, c := range m.Classes {
		out[c.Name] = pytd.PrintClass(c)
	}

	for _, fn := range m.Functions {
		out[fn.Name] = pytd.PrintFunction(fn)
	}

	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// lineDiff renders a line diff from want to got, prefixing removed lines with
// "- " and added lines with "+ ".
func lineDiff(want, got string) string {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(src, dst, false), lines)

	var sb strings.Builder

	for _, d := range diffs {
		prefix := "  "

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.SplitSeq(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}
