package mmap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
)

// DefaultMinMapSize is the smallest file Open maps instead of reading.
const DefaultMinMapSize = 64 << 10

var (
	ErrClosed = errors.New("mmap: view is closed")
	ErrRange  = errors.New("mmap: range out of bounds")
	ErrTooBig = errors.New("mmap: file too large to map")
)

// Hint tells the kernel how the pages of a mapped view will be read.
type Hint uint8

const (
	HintNormal Hint = iota
	HintSequential
	HintRandom
	HintWillNeed
)

type options struct {
	hint       Hint
	minMapSize int64
}

// Option configures Open.
type Option func(*options)

// WithHint applies h to the whole mapping right after it is created.
// Heap-backed views ignore hints.
func WithHint(h Hint) Option {
	return func(o *options) { o.hint = h }
}

// WithMinMapSize sets the size below which files are read instead of
// mapped. Zero maps every non-empty file.
func WithMinMapSize(n int64) Option {
	return func(o *options) { o.minMapSize = max(n, 0) }
}

// View is a read-only view of a whole file.
type View struct {
	data   []byte
	mapped bool
	closed atomic.Bool
}

// Open returns a view of the file at path.
func Open(path string, opts ...Option) (*View, error) {
	o := options{minMapSize: DefaultMinMapSize}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	switch {
	case size == 0:
		return &View{}, nil
	case size > math.MaxInt:
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooBig, path, size)
	case size < o.minMapSize:
		data := make([]byte, size)
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return &View{data: data}, nil
	}

	data, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	v := &View{data: data, mapped: true}
	if o.hint != HintNormal {
		// Hints are advisory; a refused one leaves the mapping usable.
		_ = advise(data, o.hint)
	}
	return v, nil
}

// Mapped reports whether the view is backed by a file mapping.
func (v *View) Mapped() bool { return v.mapped }

// Len returns the file size in bytes.
func (v *View) Len() int64 { return int64(len(v.data)) }

// Bytes returns the whole file, or nil after Close.
func (v *View) Bytes() []byte {
	if v.closed.Load() {
		return nil
	}
	return v.data
}

// Region returns n bytes starting at off without copying.
func (v *View) Region(off, n int64) ([]byte, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off > v.Len()-n {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrRange, off, off+n, v.Len())
	}
	return v.data[off : off+n : off+n], nil
}

// WillNeed asks the kernel to start reading the pages that hold
// [off, off+n) ahead of access. It is a no-op for heap-backed views.
func (v *View) WillNeed(off, n int64) error {
	if v.closed.Load() {
		return ErrClosed
	}
	if !v.mapped || n <= 0 || off >= v.Len() {
		return nil
	}
	off = max(off, 0)
	end := min(off+n, v.Len())

	// madvise wants a page-aligned start; the mapping itself is aligned.
	start := off &^ int64(pageSize-1)
	return advise(v.data[start:end], HintWillNeed)
}

// ReadAt implements io.ReaderAt.
func (v *View) ReadAt(p []byte, off int64) (int, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrRange, off)
	}
	if off >= v.Len() {
		return 0, io.EOF
	}
	n := copy(p, v.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases the view. Calling it again is a no-op.
func (v *View) Close() error {
	if v.closed.Swap(true) {
		return nil
	}
	if v.mapped {
		return unmapFile(v.data)
	}
	return nil
}
