package pytd

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported python version")
	ErrUnstableOutput     = errors.New("serialized stub does not round-trip")
)

// ParseError reports stub text that is not valid stub syntax. Line is 1-based
// and zero when unknown.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "pytd: " + e.Msg
	}

	return fmt.Sprintf("pytd: line %d: %s", e.Line, e.Msg)
}

// SelfCheckError means a just-serialized stub failed to parse back into the
// same stub. It is an internal defect, never a user error.
type SelfCheckError struct {
	Err error
}

func (e *SelfCheckError) Error() string {
	return "stub self-check failed: " + e.Err.Error()
}

func (e *SelfCheckError) Unwrap() error {
	return e.Err
}
