package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for keys the registry does not know.
	ErrNotFound = errors.New("key not found")
	// ErrNotResident is returned when an operation needs a resident entry.
	ErrNotResident = errors.New("entry not resident")
	// ErrPinned is returned when unloading a pinned entry.
	ErrPinned = errors.New("entry is pinned")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry closed")
	// ErrNoLoader is returned by a miss on a registry without a Loader.
	ErrNoLoader = errors.New("no loader configured")
	// ErrSamplingUnsupported is returned when a handle cannot change its sampler state in place.
	ErrSamplingUnsupported = errors.New("handle does not support sampling changes")
)

// LoadError wraps a failure to produce or upload a resource.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InconsistencyError reports broken bookkeeping, such as unlocking an
// entry that holds no pin or occupancy dropping below zero.
type InconsistencyError struct {
	Registry string
	Key      string
	Detail   string
}

func (e *InconsistencyError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("registry %s: inconsistent state: %s", e.Registry, e.Detail)
	}
	return fmt.Sprintf("registry %s: inconsistent state for %q: %s", e.Registry, e.Key, e.Detail)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, key)
}

// ErrInvalidConfig is returned by New for missing collaborators.
var ErrInvalidConfig = errors.New("invalid registry configuration")
