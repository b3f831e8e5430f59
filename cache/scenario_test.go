package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vramcache/budget"
)

func TestScenario_SweepAcrossRegistries(t *testing.T) {
	f := newFixture(100)
	r1 := f.registry(t, "r1", newSizedLoader(map[string]int{"a": 40, "b": 40}))
	r2 := f.registry(t, "r2", newSizedLoader(map[string]int{"c": 30}))
	ctx := t.Context()

	_, err := r1.Get(ctx, "a")
	require.NoError(t, err)
	_, err = r1.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(80), r1.Occupancy())

	_, err = r2.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, int64(0), r1.Occupancy())
	assert.Equal(t, 0, r1.Len())
	assert.Equal(t, int64(30), r2.Occupancy())
	assert.Equal(t, int64(2), r1.Stats().Evictions)
}

func TestScenario_SweepSparesPinned(t *testing.T) {
	f := newFixture(100)
	r1 := f.registry(t, "r1", newSizedLoader(map[string]int{"a": 40, "b": 40}))
	r2 := f.registry(t, "r2", newSizedLoader(map[string]int{"c": 30}))
	ctx := t.Context()

	pinned, err := r1.Get(ctx, "a")
	require.NoError(t, err)
	_, err = r1.Get(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, r1.Lock("a"))

	_, err = r2.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, int64(40), r1.Occupancy())
	assert.Equal(t, int64(30), r2.Occupancy())
	assert.True(t, pinned.Valid())
	assert.False(t, r1.Contains("b"))

	h, err := r1.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, pinned, h)

	total, _ := f.coord.Usage()
	assert.Equal(t, int64(70), total)
}

func TestScenario_RequestLargerThanBudget(t *testing.T) {
	f := newFixture(50)
	r1 := f.registry(t, "r1", newSizedLoader(map[string]int{"huge": 60}))
	r2 := f.registry(t, "r2", nil)

	_, err := r1.Get(t.Context(), "huge")
	require.ErrorIs(t, err, budget.ErrOutOfBudget)

	var oob *budget.OutOfBudgetError
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, int64(60), oob.Requested)
	assert.Equal(t, int64(50), oob.Max)

	assert.Equal(t, 0, r1.Len())
	assert.Equal(t, 0, r2.Len())
	assert.Equal(t, 0, f.backend.LiveHandles())
	assert.Equal(t, int64(1), r1.Stats().Rejections)
}

func TestScenario_RemovePinnedThenReload(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 25}))
	ctx := t.Context()

	_, err := r.Acquire(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, r.Lock("a"))

	require.NoError(t, r.Remove("a"))
	assert.Equal(t, int64(0), r.Occupancy())

	_, err = r.Get(ctx, "a")
	require.NoError(t, err)

	infos := r.Entries()
	require.Len(t, infos, 1)
	assert.Equal(t, 0, infos[0].Pins)
	assert.Equal(t, StateResident, infos[0].State)
	assert.Equal(t, int64(25), r.Occupancy())
}

func TestScenario_FailedAdmissionChangesNothing(t *testing.T) {
	f := newFixture(100)
	r1 := f.registry(t, "r1", newSizedLoader(map[string]int{"a": 50, "b": 30}))
	r2 := f.registry(t, "r2", newSizedLoader(map[string]int{"c": 60}))
	ctx := t.Context()

	_, err := r1.Acquire(ctx, "a")
	require.NoError(t, err)
	_, err = r1.Get(ctx, "b")
	require.NoError(t, err)

	// 80 + 60 > 100 + 30
	_, err = r2.Get(ctx, "c")
	require.ErrorIs(t, err, budget.ErrOutOfBudget)

	assert.True(t, r1.Contains("b"))
	assert.Equal(t, int64(80), r1.Occupancy())
	assert.Equal(t, int64(0), r2.Occupancy())
}
