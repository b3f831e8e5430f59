package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/device"
)

func TestNew_Validation(t *testing.T) {
	coord := budget.New(budget.Config{})

	_, err := New("r", nil, device.NewHostBackend(0), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New("r", coord, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r, err := New("r", coord, device.NewHostBackend(0), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, coord.Tenants())
	require.NoError(t, r.Close())
	assert.Empty(t, coord.Tenants())
}

func TestRegistry_GetIsIdempotent(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(map[string]int{"a": 10})
	r := f.registry(t, "r", loader)
	ctx := t.Context()

	h1, err := r.Get(ctx, "a")
	require.NoError(t, err)
	occ := r.Occupancy()

	h2, err := r.Get(ctx, "a")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, occ, r.Occupancy())
	assert.Equal(t, int64(10), occ)
	assert.Equal(t, 1, loader.Calls("a"))

	s := r.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Loads)
	assert.InDelta(t, 0.5, s.HitRate(), 1e-9)
}

func TestRegistry_RecencyFollowsAccess(t *testing.T) {
	f := newFixture(0)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 1, "b": 1, "c": 1}))
	ctx := t.Context()

	for _, k := range []string{"a", "b", "c"} {
		_, err := r.Get(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys(r.Entries()))

	_, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, keys(r.Entries()))

	require.NoError(t, r.Touch("b"))
	assert.Equal(t, []string{"c", "a", "b"}, keys(r.Entries()))

	// Lock does not count as an access.
	require.NoError(t, r.Lock("c"))
	assert.Equal(t, []string{"c", "a", "b"}, keys(r.Entries()))

	assert.ErrorIs(t, r.Touch("missing"), ErrNotFound)
}

func TestRegistry_LoadErrorLeavesNoEntry(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(nil)
	loader.fail["broken"] = errors.New("corrupt header")
	r := f.registry(t, "r", loader)

	_, err := r.Get(t.Context(), "broken")
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "broken", le.Key)
	assert.Contains(t, err.Error(), "corrupt header")

	assert.False(t, r.Contains("broken"))
	assert.Equal(t, int64(0), r.Occupancy())
	assert.Equal(t, int64(1), r.Stats().LoadErrors)
}

func TestRegistry_NoLoader(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", nil)

	_, err := r.Get(t.Context(), "a")
	assert.ErrorIs(t, err, ErrNoLoader)
}

func TestRegistry_CanceledContext(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(map[string]int{"a": 1})
	r := f.registry(t, "r", loader)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := r.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, loader.Calls("a"))
}

func TestRegistry_BackendFailure(t *testing.T) {
	coord := budget.New(budget.Config{MaxBytes: 100})
	backend := device.NewHostBackend(5)
	r, err := New("r", coord, backend, newSizedLoader(map[string]int{"a": 10}))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Get(t.Context(), "a")
	assert.ErrorIs(t, err, device.ErrDeviceFull)
	assert.False(t, r.Contains("a"))
}

func TestRegistry_LockUnlock(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 10}))

	assert.ErrorIs(t, r.Lock("a"), ErrNotFound)
	assert.ErrorIs(t, r.Unlock("a"), ErrNotFound)

	_, err := r.Get(t.Context(), "a")
	require.NoError(t, err)

	require.NoError(t, r.Lock("a"))
	require.NoError(t, r.Lock("a"))
	assert.Equal(t, int64(0), r.Reclaimable())
	assert.Equal(t, StatePinned, r.Entries()[0].State)
	assert.Equal(t, 2, r.Entries()[0].Pins)

	require.NoError(t, r.Unlock("a"))
	assert.Equal(t, int64(0), r.Reclaimable())
	require.NoError(t, r.Unlock("a"))
	assert.Equal(t, int64(10), r.Reclaimable())
	assert.Equal(t, StateResident, r.Entries()[0].State)

	err = r.Unlock("a")
	var ie *InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "a", ie.Key)
	assert.Equal(t, 0, r.Entries()[0].Pins)
}

func TestRegistry_Acquire(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(map[string]int{"a": 10})
	r := f.registry(t, "r", loader)

	h, err := r.Acquire(t.Context(), "a")
	require.NoError(t, err)
	assert.True(t, h.Valid())
	assert.Equal(t, 1, r.Entries()[0].Pins)

	// Second acquire on a hit adds another pin.
	_, err = r.Acquire(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Entries()[0].Pins)
	assert.Equal(t, 1, loader.Calls("a"))
}

func TestRegistry_UnloadKeepsEntry(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(map[string]int{"a": 10})
	var events []Event
	r := f.registry(t, "r", loader, WithEventHandler(func(e Event) { events = append(events, e) }))
	ctx := t.Context()

	h1, err := r.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, r.Unload("a"))
	assert.False(t, h1.Valid())
	assert.True(t, r.Contains("a"))
	assert.Equal(t, int64(0), r.Occupancy())
	assert.Equal(t, StateUnloaded, r.Entries()[0].State)
	assert.Equal(t, int64(10), r.Entries()[0].Size)

	// Unloading twice is a no-op.
	require.NoError(t, r.Unload("a"))

	assert.ErrorIs(t, r.Lock("a"), ErrNotResident)

	h2, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, int64(10), r.Occupancy())
	assert.Equal(t, 2, loader.Calls("a"))

	require.Len(t, events, 3)
	assert.Equal(t, EventLoaded, events[0].Kind)
	assert.Equal(t, EventUnloaded, events[1].Kind)
	assert.Equal(t, EventLoaded, events[2].Kind)
}

func TestRegistry_InvalidatedHandleReloads(t *testing.T) {
	f := newFixture(100)
	loader := newSizedLoader(map[string]int{"a": 40})
	r := f.registry(t, "r", loader)
	ctx := t.Context()

	h1, err := r.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, h1.Release())

	h2, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.True(t, h2.Valid())
	assert.Equal(t, 2, loader.Calls("a"))
	assert.Equal(t, int64(40), r.Occupancy())
	assert.Equal(t, int64(40), f.backend.LiveBytes())

	t.Run("pins survive", func(t *testing.T) {
		h, err := r.Acquire(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, h.Release())

		assert.ErrorIs(t, r.Lock("a"), ErrNotResident)
		assert.Equal(t, int64(0), r.Occupancy())
		assert.Equal(t, StateUnloaded, r.Entries()[0].State)

		h, err = r.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, h.Valid())
		assert.Equal(t, StatePinned, r.Entries()[0].State)
		require.NoError(t, r.Unlock("a"))
		assert.Equal(t, int64(40), f.backend.LiveBytes())
	})
}

func TestRegistry_UnloadPinned(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 10}))

	_, err := r.Acquire(t.Context(), "a")
	require.NoError(t, err)

	assert.ErrorIs(t, r.Unload("a"), ErrPinned)
	assert.Equal(t, int64(10), r.Occupancy())
	assert.ErrorIs(t, r.Unload("missing"), ErrNotFound)
}

func TestRegistry_RemoveOverridesPins(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 10, "b": 5}))
	ctx := t.Context()

	h, err := r.Acquire(ctx, "a")
	require.NoError(t, err)
	_, err = r.Get(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, r.Remove("a"))
	assert.False(t, h.Valid())
	assert.False(t, r.Contains("a"))
	assert.Equal(t, int64(5), r.Occupancy())
	assert.ErrorIs(t, r.Remove("a"), ErrNotFound)

	// Removing an unloaded entry drops the bookkeeping too.
	require.NoError(t, r.Unload("b"))
	require.NoError(t, r.Remove("b"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, f.backend.LiveHandles())
}

func TestRegistry_WriteRoundTrip(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", nil)
	ctx := t.Context()

	h1, err := r.Write(ctx, "out", testImage(20, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(20), r.Occupancy())

	h2, err := r.Write(ctx, "out", testImage(35, 2))
	require.NoError(t, err)
	assert.False(t, h1.Valid())
	assert.Equal(t, int64(35), r.Occupancy())

	h3, err := r.Get(ctx, "out")
	require.NoError(t, err)
	assert.Same(t, h2, h3)
	assert.Equal(t, int64(35), h3.Size())
	assert.Equal(t, int64(35), r.Entries()[0].Size)

	// Shrinking needs no admission and frees the difference.
	_, err = r.Write(ctx, "out", testImage(5, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Occupancy())
	assert.Equal(t, int64(5), f.backend.LiveBytes())

	img, err := f.backend.Download(r.mustHandle(t, "out"))
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3, 3, 3, 3}, img.Pix)
}

func TestRegistry_WriteIdenticalContent(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", nil)
	ctx := t.Context()

	h1, err := r.Write(ctx, "out", testImage(10, 7))
	require.NoError(t, err)
	h2, err := r.Write(ctx, "out", testImage(10, 7))
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	uploads, _ := f.backend.Counters()
	assert.Equal(t, int64(1), uploads)

	// Same pixels with a new sampler state is a real change.
	img := testImage(10, 7)
	img.Format.MagFilter = device.FilterLinear
	h3, err := r.Write(ctx, "out", img)
	require.NoError(t, err)
	assert.NotSame(t, h1, h3)
}

func TestRegistry_WriteGrowthSparesTarget(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 30}))
	ctx := t.Context()

	_, err := r.Get(ctx, "a")
	require.NoError(t, err)
	_, err = r.Write(ctx, "out", testImage(60, 1))
	require.NoError(t, err)

	// 90 + 20 > 100: the sweep may drop "a" but never "out" itself.
	h, err := r.Write(ctx, "out", testImage(80, 2))
	require.NoError(t, err)
	assert.True(t, h.Valid())
	assert.False(t, r.Contains("a"))
	assert.Equal(t, int64(80), r.Occupancy())
	assert.Equal(t, 0, r.Entries()[0].Pins)
}

func TestRegistry_WriteOutOfBudgetKeepsPrevious(t *testing.T) {
	f := newFixture(50)
	r := f.registry(t, "r", nil)
	ctx := t.Context()

	h1, err := r.Write(ctx, "out", testImage(40, 1))
	require.NoError(t, err)

	_, err = r.Write(ctx, "out", testImage(70, 2))
	require.ErrorIs(t, err, budget.ErrOutOfBudget)

	assert.True(t, h1.Valid())
	assert.Equal(t, int64(40), r.Occupancy())
	assert.Equal(t, 0, r.Entries()[0].Pins)
	assert.Equal(t, int64(1), r.Stats().Rejections)
}

func TestRegistry_WritePersists(t *testing.T) {
	f := newFixture(100)

	var mu sync.Mutex
	persisted := map[string]int{}
	p := PersisterFunc(func(_ context.Context, key string, img *device.Image) error {
		mu.Lock()
		defer mu.Unlock()
		persisted[key] = len(img.Pix)
		if key == "readonly" {
			return errors.New("permission denied")
		}
		return nil
	})
	r := f.registry(t, "r", nil, WithPersister(p))

	_, err := r.Write(t.Context(), "out", testImage(10, 1))
	require.NoError(t, err)
	assert.Equal(t, 10, persisted["out"])

	h, err := r.Write(t.Context(), "readonly", testImage(4, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	// The cached copy survives a persist failure.
	assert.NotNil(t, h)
	assert.True(t, r.Contains("readonly"))
}

func TestRegistry_Put(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", nil)
	ctx := t.Context()

	h, err := f.backend.Upload(testImage(25, 9))
	require.NoError(t, err)

	require.NoError(t, r.Put(ctx, "gpu", h))
	assert.Equal(t, int64(25), r.Occupancy())

	got, err := r.Get(ctx, "gpu")
	require.NoError(t, err)
	assert.Same(t, h, got)

	// Adopting the same handle twice is a touch.
	require.NoError(t, r.Put(ctx, "gpu", h))
	assert.Equal(t, int64(25), r.Occupancy())

	// One handle cannot be owned by two keys.
	err = r.Put(ctx, "alias", h)
	assert.ErrorIs(t, err, device.ErrInvalidHandle)
	assert.False(t, r.Contains("alias"))
	assert.Equal(t, int64(25), r.Occupancy())
	assert.Equal(t, f.backend.LiveBytes(), r.Occupancy())

	require.NoError(t, h.Release())
	assert.ErrorIs(t, r.Put(ctx, "other", h), device.ErrInvalidHandle)
	assert.ErrorIs(t, r.Put(ctx, "other", nil), device.ErrInvalidHandle)
}

func TestRegistry_SetSampling(t *testing.T) {
	f := newFixture(100)
	r := f.registry(t, "r", newSizedLoader(map[string]int{"a": 4}))

	assert.ErrorIs(t, r.SetSampling("a", device.DefaultSampling), ErrNotFound)

	h, err := r.Get(t.Context(), "a")
	require.NoError(t, err)

	s := device.Sampling{
		MinFilter: device.FilterLinearMipmapLinear,
		MagFilter: device.FilterLinear,
		WrapS:     device.WrapRepeat,
		WrapT:     device.WrapMirroredRepeat,
	}
	require.NoError(t, r.SetSampling("a", s))
	assert.Equal(t, s, h.Format().Sampling)
	assert.Equal(t, int64(4), r.Occupancy())

	require.NoError(t, r.Unload("a"))
	assert.ErrorIs(t, r.SetSampling("a", s), ErrNotResident)
}

func TestRegistry_Close(t *testing.T) {
	f := newFixture(100)
	r, err := New("r", f.coord, f.backend, newSizedLoader(map[string]int{"a": 10, "b": 10}))
	require.NoError(t, err)
	ctx := t.Context()

	_, err = r.Get(ctx, "a")
	require.NoError(t, err)
	_, err = r.Acquire(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, 0, f.backend.LiveHandles())
	assert.Equal(t, int64(0), r.Occupancy())
	assert.Empty(t, f.coord.Tenants())

	_, err = r.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Lock("a"), ErrClosed)
	_, err = r.Write(ctx, "a", testImage(1, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_ConcurrentGetLoadsOnce(t *testing.T) {
	f := newFixture(1000)
	loader := newSizedLoader(map[string]int{"a": 10})
	r := f.registry(t, "r", loader)

	var wg sync.WaitGroup
	handles := make([]device.Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Get(t.Context(), "a")
			if err == nil {
				handles[i] = h
			}
		}()
	}
	wg.Wait()

	// Decodes may race, but only one upload may stay resident.
	for _, h := range handles {
		require.NotNil(t, h)
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, int64(10), r.Occupancy())
	assert.Equal(t, 1, f.backend.LiveHandles())
}

func (r *Registry) mustHandle(t *testing.T, key string) device.Handle {
	t.Helper()
	var h device.Handle
	r.view(func() {
		if e, ok := r.entries[key]; ok {
			h = e.handle
		}
	})
	require.NotNil(t, h)
	return h
}
