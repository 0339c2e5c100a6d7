// Package schedule orders units for the two processing passes.
//
// Units may import each other's stubs, but the import graph is never built.
// Instead the largest input is assumed to be the entry point: it is processed
// last, after an opportunistic pre-pass over every other unit has had a chance
// to write the stubs it might import.
package schedule

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

// ErrEmptyPlan is returned when there are no units to schedule.
var ErrEmptyPlan = errors.New("schedule: no units")

// SizeFunc reports the byte size of an input file.
type SizeFunc func(path string) (int64, error)

// FileSize is the SizeFunc backed by the filesystem.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.Size(), nil
}

// Pass names a processing pass.
type Pass string

const (
	// PrePass is the opportunistic pass whose outcomes are discarded.
	PrePass Pass = "pre"
	// FinalPass is the authoritative pass that decides the exit status.
	FinalPass Pass = "final"
)

// Plan is the processing order of one run.
type Plan struct {
	// PrePass holds every unit but the largest, in final-pass order.
	PrePass []units.Unit
	// FinalPass holds every unit sorted by descending input size.
	FinalPass []units.Unit
}

// NewPlan sorts units by descending input size, keeping argument order on
// ties. With a single unit there is no pre-pass and its size is never read.
func NewPlan(list []units.Unit, size SizeFunc, logger *slog.Logger) (Plan, error) {
	if len(list) == 0 {
		return Plan{}, ErrEmptyPlan
	}

	if len(list) == 1 {
		return Plan{FinalPass: slices.Clone(list)}, nil
	}

	type sized struct {
		unit units.Unit
		size int64
	}

	entries := make([]sized, len(list))

	for i, u := range list {
		n, err := size(u.Input)
		if err != nil {
			return Plan{}, err
		}

		entries[i] = sized{unit: u, size: n}
	}

	slices.SortStableFunc(entries, func(a, b sized) int {
		return cmp.Compare(b.size, a.size)
	})

	ordered := make([]units.Unit, len(entries))
	for i, e := range entries {
		ordered[i] = e.unit

		logger.Debug("scheduled unit",
			"position", i,
			"input", e.unit.Input,
			"size", humanize.Bytes(uint64(max(e.size, 0))))
	}

	logger.Info("processing order decided",
		"entry", ordered[0].Input,
		"units", len(ordered))

	return Plan{
		PrePass:   slices.Clone(ordered[1:]),
		FinalPass: ordered,
	}, nil
}

// Invocations is the number of unit processing steps the plan performs.
func (p Plan) Invocations() int {
	return len(p.PrePass) + len(p.FinalPass)
}

// Units returns the units of the given pass.
func (p Plan) Units(pass Pass) []units.Unit {
	if pass == PrePass {
		return p.PrePass
	}

	return p.FinalPass
}
