package schedule_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/schedule"
	"github.com/Sumatoshi-tech/stubforge/pkg/units"
)

var errNoSuchFile = errors.New("no such file")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sizes(table map[string]int64) schedule.SizeFunc {
	return func(path string) (int64, error) {
		n, ok := table[path]
		if !ok {
			return 0, errNoSuchFile
		}

		return n, nil
	}
}

func TestNewPlan_LargestLastScenario(t *testing.T) {
	t.Parallel()

	a := units.Unit{Input: "a.py", Output: "a.stub"}
	b := units.Unit{Input: "b.py", Output: "b.stub"}

	plan, err := schedule.NewPlan([]units.Unit{a, b}, sizes(map[string]int64{"a.py": 2000, "b.py": 500}), discard())
	require.NoError(t, err)

	assert.Equal(t, []units.Unit{b}, plan.PrePass)
	assert.Equal(t, []units.Unit{a, b}, plan.FinalPass)
	assert.Equal(t, 3, plan.Invocations())
}

func TestNewPlan_SortsDescendingAndStable(t *testing.T) {
	t.Parallel()

	list := []units.Unit{
		{Input: "small.py"},
		{Input: "tie1.py"},
		{Input: "big.py"},
		{Input: "tie2.py"},
	}

	plan, err := schedule.NewPlan(list, sizes(map[string]int64{
		"small.py": 10, "tie1.py": 100, "big.py": 1000, "tie2.py": 100,
	}), discard())
	require.NoError(t, err)

	assert.Equal(t, []string{"big.py", "tie1.py", "tie2.py", "small.py"}, units.Inputs(plan.FinalPass))
	assert.Equal(t, []string{"tie1.py", "tie2.py", "small.py"}, units.Inputs(plan.PrePass))
	assert.Equal(t, plan.FinalPass[1:], plan.Units(schedule.PrePass))
	assert.Equal(t, 2*len(list)-1, plan.Invocations())
}

func TestNewPlan_SingleUnitSkipsPrePass(t *testing.T) {
	t.Parallel()

	called := false
	size := func(string) (int64, error) {
		called = true

		return 0, nil
	}

	plan, err := schedule.NewPlan([]units.Unit{{Input: "x.py"}}, size, discard())
	require.NoError(t, err)

	assert.Empty(t, plan.PrePass)
	assert.Len(t, plan.Units(schedule.FinalPass), 1)
	assert.Equal(t, 1, plan.Invocations())
	assert.False(t, called)
}

func TestNewPlan_SizeError(t *testing.T) {
	t.Parallel()

	_, err := schedule.NewPlan([]units.Unit{{Input: "a.py"}, {Input: "missing.py"}},
		sizes(map[string]int64{"a.py": 1}), discard())
	require.ErrorIs(t, err, errNoSuchFile)
}

func TestNewPlan_Empty(t *testing.T) {
	t.Parallel()

	_, err := schedule.NewPlan(nil, schedule.FileSize, discard())
	require.ErrorIs(t, err, schedule.ErrEmptyPlan)
}

func TestFileSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, make([]byte, 42), 0o600))

	n, err := schedule.FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = schedule.FileSize(filepath.Join(dir, "absent.py"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
