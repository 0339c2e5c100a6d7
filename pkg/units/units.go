// Package units resolves positional command arguments into the ordered list of
// (input, output) pairs a run processes.
package units

import (
	"fmt"
	"os"
	"strings"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
)

// Resolver errors. All of them are configuration errors.
var (
	ErrNoInputs      = fmt.Errorf("%w: need at least one input", config.ErrConfiguration)
	ErrSharedOutput  = fmt.Errorf("%w: can't use --output with more than one input", config.ErrConfiguration)
	ErrAmbiguousPair = fmt.Errorf("%w: ambiguous input/output pairing", config.ErrConfiguration)
	ErrMalformedPair = fmt.Errorf("%w: malformed input/output pair", config.ErrConfiguration)
	ErrMissingStub   = fmt.Errorf("%w: check mode needs an output stub for every input", config.ErrConfiguration)
)

// Separator splits an input from its output inside one positional argument.
const Separator = string(os.PathListSeparator)

const pairTokens = 2

// Unit is one source file and the destination of its stub. An empty Output
// means standard output.
type Unit struct {
	Input  string
	Output string
}

// HasOutput reports whether the unit writes to a file.
func (u Unit) HasOutput() bool {
	return u.Output != "" && u.Output != config.StdoutSentinel
}

func (u Unit) String() string {
	if u.Output == "" {
		return u.Input
	}

	return u.Input + Separator + u.Output
}

// Resolve turns positional arguments into units, preserving argument order.
// sharedOutput is the --output destination and may only accompany a single
// input.
func Resolve(args []string, sharedOutput string) ([]Unit, error) {
	if len(args) == 0 {
		return nil, ErrNoInputs
	}

	if sharedOutput != "" && len(args) > 1 {
		return nil, ErrSharedOutput
	}

	resolved := make([]Unit, 0, len(args))

	for _, arg := range args {
		tokens := strings.Split(arg, Separator)

		switch {
		case len(tokens) == pairTokens && tokens[0] != "" && tokens[1] != "":
			resolved = append(resolved, Unit{Input: tokens[0], Output: tokens[1]})
		case len(tokens) == 1 && tokens[0] != "" && len(args) == 1:
			resolved = append(resolved, Unit{Input: tokens[0], Output: sharedOutput})
		case len(tokens) == 1 && tokens[0] != "":
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousPair, arg)
		default:
			return nil, fmt.Errorf("%w: %q", ErrMalformedPair, arg)
		}
	}

	return resolved, nil
}

// RequireOutputs fails on the first unit that names no stub file. Check mode
// compares against existing stubs, so every unit needs one.
func RequireOutputs(list []Unit) error {
	for _, u := range list {
		if !u.HasOutput() {
			return fmt.Errorf("%w: %q", ErrMissingStub, u.Input)
		}
	}

	return nil
}

// Inputs returns the input paths of the given units.
func Inputs(list []Unit) []string {
	out := make([]string, len(list))
	for i, u := range list {
		out[i] = u.Input
	}

	return out
}
