package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/internal/recency"
)

type entry struct {
	key    string
	handle device.Handle // nil while unloaded
	format device.Format
	size   int64
	pins   int
	digest uint64 // 0 when unknown
	slot   recency.Slot
}

func (e *entry) resident() bool { return e.handle != nil }

func (e *entry) state() State {
	switch {
	case e.handle == nil:
		return StateUnloaded
	case e.pins > 0:
		return StatePinned
	default:
		return StateResident
	}
}

func (e *entry) info() EntryInfo {
	return EntryInfo{
		Key:    e.key,
		State:  e.state(),
		Size:   e.size,
		Pins:   e.pins,
		Width:  e.format.Width,
		Height: e.format.Height,
		Digest: e.digest,
	}
}

// Registry is a keyed cache of device handles sharing a budget.Coordinator.
//
// All methods are safe for concurrent use.
type Registry struct {
	name    string
	coord   *budget.Coordinator
	backend device.Backend
	loader  Loader
	opts    options
	logger  *slog.Logger
	loads   *semaphore.Weighted
	tenant  *tenant

	// Guarded by the coordinator lock.
	entries   map[string]*entry
	lru       *recency.List[*entry]
	occupancy int64
	closed    bool

	hits       atomic.Int64
	misses     atomic.Int64
	loaded     atomic.Int64
	loadErrors atomic.Int64
	rejections atomic.Int64
	evictions  atomic.Int64
	unloads    atomic.Int64
	removals   atomic.Int64
	writes     atomic.Int64
}

// New creates a registry and registers it with coord.
// loader may be nil for registries that are only filled through Write and Put.
func New(name string, coord *budget.Coordinator, backend device.Backend, loader Loader, opts ...Option) (*Registry, error) {
	if coord == nil {
		return nil, fmt.Errorf("%w: nil coordinator", ErrInvalidConfig)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfig)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		name:    name,
		coord:   coord,
		backend: backend,
		loader:  loader,
		opts:    o,
		logger:  o.logger.With("registry", name),
		loads:   semaphore.NewWeighted(int64(o.maxConcurrentLoads)),
		entries: make(map[string]*entry, o.sizeHint),
		lru:     recency.New[*entry](o.sizeHint),
	}
	r.tenant = &tenant{r: r}

	if err := coord.Register(r.tenant); err != nil {
		return nil, err
	}
	return r, nil
}

// Name returns the registry name.
func (r *Registry) Name() string { return r.name }

// Get returns the handle for key, loading it on a miss.
//
// A hit marks the entry most recently used. A miss decodes through the
// Loader, asks the coordinator for room and uploads the image. When the
// budget cannot fit the image, Get returns a *budget.OutOfBudgetError and
// the registry is left unchanged.
func (r *Registry) Get(ctx context.Context, key string) (device.Handle, error) {
	return r.get(ctx, key, false)
}

// Acquire is Get followed by Lock, performed atomically.
func (r *Registry) Acquire(ctx context.Context, key string) (device.Handle, error) {
	return r.get(ctx, key, true)
}

func (r *Registry) get(ctx context.Context, key string, pin bool) (device.Handle, error) {
	var h device.Handle
	err := r.exclusive(func(*budget.Txn) error {
		h = r.hitLocked(key, pin)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.opts.metrics.OnLookup(h != nil)
	if h != nil {
		r.hits.Add(1)
		return h, nil
	}
	r.misses.Add(1)

	start := time.Now()
	img, err := r.decode(ctx, key)
	if err != nil {
		r.opts.metrics.OnLoad(time.Since(start), 0, err)
		return nil, err
	}
	return r.insertLoaded(key, img, pin, start)
}

func (r *Registry) hitLocked(key string, pin bool) device.Handle {
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	r.detachInvalidLocked(e)
	if !e.resident() {
		return nil
	}
	r.lru.MoveToBack(e.slot)
	if pin {
		e.pins++
	}
	return e.handle
}

func (r *Registry) decode(ctx context.Context, key string) (*device.Image, error) {
	if r.loader == nil {
		return nil, &LoadError{Key: key, Err: ErrNoLoader}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.loads.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.loads.Release(1)

	img, err := r.loader.Load(ctx, key)
	if err == nil {
		err = img.Validate()
	}
	if err != nil {
		r.loadErrors.Add(1)
		r.logger.Warn("load failed", "key", key, "error", err)
		return nil, &LoadError{Key: key, Err: err}
	}
	return img, nil
}

func (r *Registry) insertLoaded(key string, img *device.Image, pin bool, start time.Time) (device.Handle, error) {
	size := img.Size()
	digest := xxhash.Sum64(img.Pix)

	var h device.Handle
	err := r.exclusive(func(tx *budget.Txn) error {
		// Another caller may have loaded key while this one was decoding.
		if h = r.hitLocked(key, pin); h != nil {
			return nil
		}

		if err := tx.Admit(size); err != nil {
			return err
		}
		nh, err := r.backend.Upload(img)
		if err != nil {
			return &LoadError{Key: key, Err: err}
		}

		e := r.entries[key]
		if e == nil {
			e = r.insertLocked(key)
		} else {
			r.lru.MoveToBack(e.slot)
		}
		e.handle, e.format, e.size, e.digest = nh, nh.Format(), size, digest
		if pin {
			e.pins++
		}
		r.account(key, size)
		r.emit(EventLoaded, key, size)
		h = nh
		return nil
	})

	r.opts.metrics.OnLoad(time.Since(start), size, err)
	switch {
	case err == nil:
		r.loaded.Add(1)
		r.logger.Debug("loaded", "key", key, "size", size, "duration", time.Since(start))
	case errors.Is(err, budget.ErrOutOfBudget):
		r.rejections.Add(1)
		r.logger.Warn("out of budget", "key", key, "size", size, "error", err)
	default:
		r.loadErrors.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Write stores img under key, replacing any previous content.
//
// The size difference against the previous resident content goes through
// the coordinator; the entry being written is never swept by its own
// admission. Writing content identical to what is resident only marks the
// entry most recently used. With a Persister configured, the image is
// persisted after it is cached.
func (r *Registry) Write(ctx context.Context, key string, img *device.Image) (device.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}

	digest := xxhash.Sum64(img.Pix)
	same := func(e *entry) bool {
		return e.digest == digest && e.format == img.Format
	}
	upload := func() (device.Handle, error) {
		return r.backend.Upload(img)
	}

	h, err := r.replace(key, img.Size(), digest, same, nil, upload)
	if err != nil {
		return nil, err
	}
	r.writes.Add(1)

	if r.opts.persister != nil {
		if err := r.opts.persister.Persist(ctx, key, img); err != nil {
			return h, fmt.Errorf("persist %q: %w", key, err)
		}
	}
	return h, nil
}

// Put adopts a handle produced elsewhere under key.
//
// On success the registry owns h and releases it on eviction. On failure
// the caller keeps ownership. A handle already cached under another key
// of this registry is rejected with device.ErrInvalidHandle.
func (r *Registry) Put(ctx context.Context, key string, h device.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil || !h.Valid() {
		return device.ErrInvalidHandle
	}

	same := func(e *entry) bool { return e.handle == h }
	claim := func() error {
		if owner, ok := r.ownerLocked(h); ok {
			return fmt.Errorf("%w: already cached as %q", device.ErrInvalidHandle, owner)
		}
		return nil
	}
	adopt := func() (device.Handle, error) { return h, nil }

	_, err := r.replace(key, h.Size(), 0, same, claim, adopt)
	if err == nil {
		r.writes.Add(1)
	}
	return err
}

// replace runs claim, when set, before admission so that a rejected claim
// leaves every registry untouched.
func (r *Registry) replace(key string, size int64, digest uint64, same func(*entry) bool, claim func() error, upload func() (device.Handle, error)) (device.Handle, error) {
	var h device.Handle
	err := r.exclusive(func(tx *budget.Txn) error {
		e := r.entries[key]
		if e != nil {
			r.detachInvalidLocked(e)
		}
		if e != nil && e.resident() && same(e) {
			r.lru.MoveToBack(e.slot)
			h = e.handle
			return nil
		}
		if claim != nil {
			if err := claim(); err != nil {
				return err
			}
		}

		var old int64
		if e != nil {
			if e.resident() {
				old = e.size
			}
			target := e
			target.pins++
			defer func() { target.pins-- }()
		}

		if delta := size - old; delta > 0 {
			if err := tx.Admit(delta); err != nil {
				return err
			}
		}

		nh, err := upload()
		if err != nil {
			return &LoadError{Key: key, Err: err}
		}

		if e == nil {
			e = r.insertLocked(key)
		} else {
			r.lru.MoveToBack(e.slot)
			if e.resident() {
				r.releaseLocked(e)
			}
		}
		e.handle, e.format, e.size, e.digest = nh, nh.Format(), size, digest
		r.account(key, size)
		r.emit(EventWritten, key, size)
		h = nh
		return nil
	})
	if errors.Is(err, budget.ErrOutOfBudget) {
		r.rejections.Add(1)
		r.logger.Warn("out of budget", "key", key, "size", size, "error", err)
	}
	return h, err
}

// Lock pins a resident entry so that no eviction picks it.
// Locks nest; each needs a matching Unlock.
func (r *Registry) Lock(key string) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		r.detachInvalidLocked(e)
		if !e.resident() {
			return fmt.Errorf("%w: %q", ErrNotResident, key)
		}
		e.pins++
		return nil
	})
}

// Unlock releases one pin. Unlocking an entry without pins returns an
// *InconsistencyError and changes nothing.
func (r *Registry) Unlock(key string) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		if e.pins == 0 {
			return &InconsistencyError{Registry: r.name, Key: key, Detail: "unlock without matching lock"}
		}
		e.pins--
		return nil
	})
}

// Remove drops key, releasing its handle even if it is pinned.
func (r *Registry) Remove(key string) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		if e.pins > 0 {
			r.logger.Debug("removing pinned entry", "key", key, "pins", e.pins)
		}
		r.dropLocked(e, EventRemoved)
		r.removals.Add(1)
		return nil
	})
}

// Unload releases the device memory of key but keeps the entry, so that
// the next Get reloads it. Unloading an unloaded entry is a no-op.
func (r *Registry) Unload(key string) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		if e.pins > 0 {
			return fmt.Errorf("%w: %q", ErrPinned, key)
		}
		r.detachInvalidLocked(e)
		if !e.resident() {
			return nil
		}
		r.releaseLocked(e)
		r.unloads.Add(1)
		r.emit(EventUnloaded, key, e.size)
		return nil
	})
}

// Touch marks key most recently used.
func (r *Registry) Touch(key string) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		r.lru.MoveToBack(e.slot)
		return nil
	})
}

// SetSampling changes the sampler state of a resident entry in place.
func (r *Registry) SetSampling(key string, s device.Sampling) error {
	return r.exclusive(func(*budget.Txn) error {
		e, ok := r.entries[key]
		if !ok {
			return notFound(key)
		}
		if !e.resident() {
			return fmt.Errorf("%w: %q", ErrNotResident, key)
		}
		ss, ok := e.handle.(device.SamplingSetter)
		if !ok {
			return ErrSamplingUnsupported
		}
		if err := ss.SetSampling(s); err != nil {
			return err
		}
		e.format.Sampling = s
		return nil
	})
}

// Contains reports whether key has an entry, resident or not.
func (r *Registry) Contains(key string) bool {
	var ok bool
	r.view(func() { _, ok = r.entries[key] })
	return ok
}

// Len returns the number of entries, resident or not.
func (r *Registry) Len() int {
	var n int
	r.view(func() { n = len(r.entries) })
	return n
}

// Occupancy returns the bytes held by resident entries.
func (r *Registry) Occupancy() int64 {
	var n int64
	r.view(func() { n = r.occupancy })
	return n
}

// Reclaimable returns the bytes held by resident entries without pins.
func (r *Registry) Reclaimable() int64 {
	var n int64
	r.view(func() { n = r.reclaimableLocked() })
	return n
}

// Entries returns a snapshot of all entries, least recently used first.
func (r *Registry) Entries() []EntryInfo {
	var out []EntryInfo
	r.view(func() {
		out = make([]EntryInfo, 0, r.lru.Len())
		r.lru.Ascend(func(_ recency.Slot, e *entry) bool {
			out = append(out, e.info())
			return true
		})
	})
	return out
}

// Stats returns a snapshot of the registry.
func (r *Registry) Stats() Stats {
	s := Stats{Name: r.name}
	r.view(func() {
		s.Entries = len(r.entries)
		s.Occupancy = r.occupancy
		for _, e := range r.entries {
			switch e.state() {
			case StateResident:
				s.Resident++
				s.Reclaimable += e.size
			case StatePinned:
				s.Resident++
				s.Pinned++
			}
		}
	})

	s.Hits = r.hits.Load()
	s.Misses = r.misses.Load()
	s.Loads = r.loaded.Load()
	s.LoadErrors = r.loadErrors.Load()
	s.Rejections = r.rejections.Load()
	s.Evictions = r.evictions.Load()
	s.Unloads = r.unloads.Load()
	s.Removals = r.removals.Load()
	s.Writes = r.writes.Load()
	return s
}

// Close releases every handle and unregisters from the coordinator.
// Further calls return ErrClosed; Close itself is idempotent.
func (r *Registry) Close() error {
	return r.coord.Exclusive(func(tx *budget.Txn) error {
		if r.closed {
			return nil
		}
		var released int
		r.lru.Ascend(func(_ recency.Slot, e *entry) bool {
			if e.resident() {
				r.releaseLocked(e)
				released++
			}
			return true
		})
		r.entries = make(map[string]*entry)
		r.lru = recency.New[*entry](0)
		r.closed = true
		tx.Unregister(r.tenant)

		r.logger.Debug("registry closed", "released", released)
		return nil
	})
}

func (r *Registry) exclusive(fn func(tx *budget.Txn) error) error {
	return r.coord.Exclusive(func(tx *budget.Txn) error {
		if r.closed {
			return ErrClosed
		}
		return fn(tx)
	})
}

func (r *Registry) view(fn func()) {
	_ = r.coord.Exclusive(func(*budget.Txn) error {
		fn()
		return nil
	})
}

func (r *Registry) insertLocked(key string) *entry {
	e := &entry{key: key}
	e.slot = r.lru.PushBack(e)
	r.entries[key] = e
	return e
}

func (r *Registry) releaseLocked(e *entry) {
	if err := e.handle.Release(); err != nil {
		r.logger.Warn("release failed", "key", e.key, "error", err)
	}
	e.handle = nil
	r.account(e.key, -e.size)
}

// detachInvalidLocked marks an entry unloaded when its handle was released
// or lost outside the registry. The bytes leave the budget and pins stay,
// so the next Get reloads the source.
func (r *Registry) detachInvalidLocked(e *entry) {
	if e.handle == nil || e.handle.Valid() {
		return
	}
	r.logger.Warn("handle invalidated", "key", e.key, "size", e.size)
	e.handle = nil
	r.account(e.key, -e.size)
	r.emit(EventUnloaded, e.key, e.size)
}

func (r *Registry) ownerLocked(h device.Handle) (string, bool) {
	for key, e := range r.entries {
		if e.handle == h {
			return key, true
		}
	}
	return "", false
}

func (r *Registry) dropLocked(e *entry, kind EventKind) {
	if e.resident() {
		r.releaseLocked(e)
	}
	r.lru.Remove(e.slot)
	delete(r.entries, e.key)
	r.emit(kind, e.key, e.size)
}

func (r *Registry) account(key string, delta int64) {
	r.occupancy += delta
	if r.occupancy < 0 {
		panic(&InconsistencyError{
			Registry: r.name,
			Key:      key,
			Detail:   fmt.Sprintf("occupancy dropped to %d", r.occupancy),
		})
	}
}

func (r *Registry) reclaimableLocked() int64 {
	var n int64
	for _, e := range r.entries {
		if e.resident() && e.pins == 0 {
			n += e.size
		}
	}
	return n
}

func (r *Registry) emit(kind EventKind, key string, size int64) {
	if r.opts.onEvent == nil {
		return
	}
	r.opts.onEvent(Event{Registry: r.name, Kind: kind, Key: key, Size: size})
}
