package device

import "errors"

var (
	// ErrInvalidHandle is returned when operating on a released handle.
	ErrInvalidHandle = errors.New("invalid device handle")
	// ErrForeignHandle is returned when a handle is passed to a backend that did not create it.
	ErrForeignHandle = errors.New("handle belongs to another backend")
	// ErrDeviceFull is returned when the backend has no room for an upload.
	ErrDeviceFull = errors.New("device memory exhausted")
)

// Handle is an opaque device object.
//
// A handle is exclusively owned by whoever uploaded it; in this module
// that is a cache entry. Release frees the device memory and makes the
// handle invalid. Size and Format stay readable after release.
type Handle interface {
	// ID is unique per backend for the lifetime of the process.
	ID() uint64
	Format() Format
	// Size is the device footprint in bytes.
	Size() int64
	Valid() bool
	Release() error
}

// SamplingSetter is implemented by handles whose sampler state can be
// changed in place without a re-upload.
type SamplingSetter interface {
	SetSampling(s Sampling) error
}

// Backend allocates device objects.
type Backend interface {
	// Upload copies img to the device and returns the new handle.
	Upload(img *Image) (Handle, error)
	// Download reads a handle back into host memory.
	Download(h Handle) (*Image, error)
}
