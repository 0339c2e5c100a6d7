// Package diag records the problems found while analyzing one unit.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Diagnostic kinds reported by the engine.
const (
	KindImportError        = "import-error"
	KindAnnotationMismatch = "annotation-mismatch"
	KindMissingDefinition  = "missing-definition"
	KindExtraDefinition    = "extra-definition"
	KindNameError          = "name-error"
	KindWrongArgCount      = "wrong-arg-count"
	KindUnsupportedOperand = "unsupported-operands"
	KindPyiError           = "pyi-error"
)

// Diagnostic is one structured finding. Line is 1-based; zero means the
// finding is not tied to a line.
type Diagnostic struct {
	Filename string
	Line     int
	Kind     string
	Message  string
	Detail   string
}

func (d Diagnostic) String() string {
	var sb strings.Builder

	if d.Line > 0 {
		fmt.Fprintf(&sb, "File %q, line %d: %s [%s]", d.Filename, d.Line, d.Message, d.Kind)
	} else {
		fmt.Fprintf(&sb, "File %q: %s [%s]", d.Filename, d.Message, d.Kind)
	}

	if d.Detail != "" {
		for line := range strings.SplitSeq(strings.TrimRight(d.Detail, "\n"), "\n") {
			sb.WriteString("\n  ")
			sb.WriteString(line)
		}
	}

	return sb.String()
}

// Log is the append-only diagnostic list of one unit. The zero value is ready
// to use.
type Log struct {
	entries []Diagnostic
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Add appends a diagnostic.
func (l *Log) Add(d Diagnostic) {
	l.entries = append(l.entries, d)
}

// Addf appends a diagnostic built from a format string.
func (l *Log) Addf(filename string, line int, kind, format string, args ...any) {
	l.Add(Diagnostic{
		Filename: filename,
		Line:     line,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether anything was recorded.
func (l *Log) HasErrors() bool {
	return len(l.entries) > 0
}

// Len returns the number of recorded diagnostics.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the recorded diagnostics in insertion order.
func (l *Log) Entries() []Diagnostic {
	out := make([]Diagnostic, len(l.entries))
	copy(out, l.entries)

	return out
}

var (
	locationColor = color.New(color.FgCyan)
	kindColor     = color.New(color.FgRed, color.Bold)
)

// Print writes every diagnostic to w, one per line. Colors follow
// color.NoColor.
func (l *Log) Print(w io.Writer) error {
	for _, d := range l.entries {
		location := fmt.Sprintf("File %q", d.Filename)
		if d.Line > 0 {
			location += fmt.Sprintf(", line %d", d.Line)
		}

		_, err := fmt.Fprintf(w, "%s: %s %s\n",
			locationColor.Sprint(location),
			d.Message,
			kindColor.Sprintf("[%s]", d.Kind))
		if err != nil {
			return fmt.Errorf("print diagnostics: %w", err)
		}

		if d.Detail == "" {
			continue
		}

		for line := range strings.SplitSeq(strings.TrimRight(d.Detail, "\n"), "\n") {
			_, err = fmt.Fprintf(w, "  %s\n", line)
			if err != nil {
				return fmt.Errorf("print diagnostics: %w", err)
			}
		}
	}

	return nil
}
