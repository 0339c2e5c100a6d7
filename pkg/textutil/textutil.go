// Package textutil provides text utilities shared by the engine and the
// driver: binary detection, line counting, and stub text shaping.
package textutil

import (
	"bytes"
	"strings"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines returns the number of newline-delimited lines in data.
// A non-empty buffer without a trailing newline counts the last partial line.
// Returns 0 for empty data.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// EnsureNewline returns text terminated by exactly one newline. Empty text
// stays empty.
func EnsureNewline(text string) string {
	if text == "" {
		return ""
	}

	return strings.TrimRight(text, "\n") + "\n"
}

// CommentBlock prefixes every line of text with "# ". Blank lines become a
// bare "#". The result ends with a newline unless text is empty.
func CommentBlock(text string) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}

	var sb strings.Builder

	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			sb.WriteString("#\n")

			continue
		}

		sb.WriteString("# ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return sb.String()
}
