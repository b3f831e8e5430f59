package device

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// HostBackend is a Backend that keeps texture storage in process memory.
//
// It tracks live handles and bytes so callers can verify that nothing
// leaks and that a budget above it is honored. A non-zero capacity makes
// uploads fail with ErrDeviceFull the way a real device runs out of memory.
type HostBackend struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	live     map[uint64]*hostTexture
	nextID   atomic.Uint64

	uploads  atomic.Int64
	releases atomic.Int64
}

// NewHostBackend creates a host backend. capacity <= 0 means unbounded.
func NewHostBackend(capacity int64) *HostBackend {
	return &HostBackend{
		capacity: capacity,
		live:     make(map[uint64]*hostTexture),
	}
}

// Upload implements Backend.
func (b *HostBackend) Upload(img *Image) (Handle, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	size := img.Format.Size()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && b.used+size > b.capacity {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrDeviceFull, size, b.used, b.capacity)
	}

	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)

	t := &hostTexture{
		id:      b.nextID.Add(1),
		format:  img.Format,
		pix:     pix,
		backend: b,
	}
	b.live[t.id] = t
	b.used += size
	b.uploads.Add(1)

	return t, nil
}

// Download implements Backend.
func (b *HostBackend) Download(h Handle) (*Image, error) {
	t, ok := h.(*hostTexture)
	if !ok || t.backend != b {
		return nil, ErrForeignHandle
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.released {
		return nil, ErrInvalidHandle
	}
	pix := make([]byte, len(t.pix))
	copy(pix, t.pix)
	return &Image{Format: t.format, Pix: pix}, nil
}

// LiveBytes returns the bytes currently allocated.
func (b *HostBackend) LiveBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// LiveHandles returns the number of handles not yet released.
func (b *HostBackend) LiveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Counters returns the total number of uploads and releases.
func (b *HostBackend) Counters() (uploads, releases int64) {
	return b.uploads.Load(), b.releases.Load()
}

func (b *HostBackend) free(t *hostTexture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[t.id]; !ok {
		return
	}
	delete(b.live, t.id)
	b.used -= t.format.Size()
	b.releases.Add(1)
}

type hostTexture struct {
	mu       sync.RWMutex
	id       uint64
	format   Format
	pix      []byte
	released bool
	backend  *HostBackend
}

func (t *hostTexture) ID() uint64 { return t.id }

func (t *hostTexture) Format() Format {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.format
}

func (t *hostTexture) Size() int64 {
	return t.Format().Size()
}

func (t *hostTexture) Valid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.released
}

func (t *hostTexture) Release() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ErrInvalidHandle
	}
	t.released = true
	t.pix = nil
	t.mu.Unlock()

	t.backend.free(t)
	return nil
}

func (t *hostTexture) SetSampling(s Sampling) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return ErrInvalidHandle
	}
	t.format.Sampling = s
	return nil
}
