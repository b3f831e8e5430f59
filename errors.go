package vramcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/cache"
)

var (
	// ErrNotFound is returned for unknown keys.
	ErrNotFound = errors.New("not found")
	// ErrUnknownRegistry is returned for registry names the system does not know.
	ErrUnknownRegistry = errors.New("unknown registry")
	// ErrNotResident is returned when an operation needs a resident entry.
	ErrNotResident = errors.New("not resident")
	// ErrPinned is returned when an operation conflicts with a pin.
	ErrPinned = errors.New("pinned")
	// ErrOutOfBudget is returned when a resource cannot fit the device budget.
	ErrOutOfBudget = errors.New("out of device budget")
	// ErrInconsistent is returned when bookkeeping is found broken.
	ErrInconsistent = errors.New("internal inconsistency")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("closed")
	// ErrInvalidConfig is returned for unusable options.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// LoadError indicates that a resource could not be decoded or uploaded.
//
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	Registry string
	Key      string
	cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load %q in %s: %v", e.Key, e.Registry, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

func translateError(registry string, err error) error {
	if err == nil {
		return nil
	}

	// Budget rejections keep the typed error reachable through errors.As.
	if errors.Is(err, budget.ErrOutOfBudget) {
		return fmt.Errorf("%w: %w", ErrOutOfBudget, err)
	}

	var le *cache.LoadError
	if errors.As(err, &le) {
		return &LoadError{Registry: registry, Key: le.Key, cause: err}
	}
	var ie *cache.InconsistencyError
	if errors.As(err, &ie) {
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}

	switch {
	case errors.Is(err, cache.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, cache.ErrNotResident):
		return fmt.Errorf("%w: %w", ErrNotResident, err)
	case errors.Is(err, cache.ErrPinned):
		return fmt.Errorf("%w: %w", ErrPinned, err)
	case errors.Is(err, cache.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, cache.ErrInvalidConfig), errors.Is(err, budget.ErrAlreadyRegistered):
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return err
}
