package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShorten(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0123456789ab", shorten("0123456789abcdef"))
	assert.Equal(t, "abc", shorten("abc"))
}

func TestString_IncludesAllFields(t *testing.T) {
	t.Parallel()

	got := String()

	assert.Contains(t, got, Version)
	assert.Contains(t, got, "commit: ")
	assert.Contains(t, got, "built: ")
}
