package vramcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/cache"
	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/settings"
)

// System owns the shared budget and the registries drawing from it.
type System struct {
	coord        *budget.Coordinator
	backend      device.Backend
	settings     settings.Store
	ownsSettings bool
	saveBudget   atomic.Bool
	opts         options

	mu         sync.Mutex
	registries map[string]*cache.Registry
	closed     bool
}

// Open creates a System. The budget comes from WithMaxBytes, else from the
// settings store, else settings.DefaultBudget. A WithMaxBytes value holds for
// this System only and is not saved unless SetMaxBytes is called.
func Open(ctx context.Context, optFns ...Option) (*System, error) {
	o := applyOptions(optFns)

	s := &System{
		backend:    o.backend,
		settings:   o.settings,
		opts:       o,
		registries: make(map[string]*cache.Registry),
	}

	if s.settings == nil {
		if o.settingsURI != "" {
			st, err := settings.Open(ctx, o.settingsURI)
			if err != nil {
				return nil, err
			}
			s.settings = st
		} else {
			s.settings = settings.NewMemoryStore()
		}
		s.ownsSettings = true
	}

	maxBytes := o.maxBytes
	if !o.maxBytesSet {
		n, err := settings.LoadBudget(ctx, s.settings)
		if err != nil {
			s.closeSettings()
			return nil, err
		}
		maxBytes = n
		s.saveBudget.Store(true)
	}
	if maxBytes < 0 {
		s.closeSettings()
		return nil, fmt.Errorf("%w: negative budget %d", ErrInvalidConfig, maxBytes)
	}

	if s.backend == nil {
		s.backend = device.NewHostBackend(0)
	}

	s.coord = budget.New(budget.Config{MaxBytes: maxBytes},
		budget.WithLogger(o.logger.Logger),
		budget.WithObserver(&budgetObserver{mc: o.metricsCollector, logger: o.logger}),
	)

	o.logger.InfoContext(ctx, "device cache opened", "budget", maxBytes)
	return s, nil
}

// NewRegistry creates a registry on the shared budget.
// Registry names are unique within a System.
func (s *System) NewRegistry(name string, loader cache.Loader, opts ...cache.Option) (*cache.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.registries[name]; ok {
		return nil, fmt.Errorf("%w: registry %q exists", ErrInvalidConfig, name)
	}

	base := []cache.Option{
		cache.WithLogger(s.opts.logger.Logger),
		cache.WithMetricsObserver(&registryObserver{name: name, mc: s.opts.metricsCollector}),
	}
	r, err := cache.New(name, s.coord, s.backend, loader, append(base, opts...)...)
	if err != nil {
		return nil, translateError(name, err)
	}
	s.registries[name] = r
	return r, nil
}

// Registry returns a registry created by NewRegistry.
func (s *System) Registry(name string) (*cache.Registry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registries[name]
	return r, ok
}

// Registries returns the registry names in sorted order.
func (s *System) Registries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.registries))
	for n := range s.registries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *System) registry(name string) (*cache.Registry, error) {
	r, ok := s.Registry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegistry, name)
	}
	return r, nil
}

// Get returns the handle for key in the named registry, loading it on a miss.
func (s *System) Get(ctx context.Context, registry, key string) (device.Handle, error) {
	r, err := s.registry(registry)
	if err != nil {
		return nil, err
	}
	h, err := r.Get(ctx, key)
	if errors.Is(err, budget.ErrOutOfBudget) {
		s.opts.logger.LogOutOfBudget(ctx, registry, key, err)
	}
	return h, translateError(registry, err)
}

// Acquire is Get followed by a pin. Release with Unlock.
func (s *System) Acquire(ctx context.Context, registry, key string) (device.Handle, error) {
	r, err := s.registry(registry)
	if err != nil {
		return nil, err
	}
	h, err := r.Acquire(ctx, key)
	if errors.Is(err, budget.ErrOutOfBudget) {
		s.opts.logger.LogOutOfBudget(ctx, registry, key, err)
	}
	return h, translateError(registry, err)
}

// Unlock releases one pin taken by Acquire or Lock.
func (s *System) Unlock(registry, key string) error {
	r, err := s.registry(registry)
	if err != nil {
		return err
	}
	return translateError(registry, r.Unlock(key))
}

// Write stores img under key in the named registry.
func (s *System) Write(ctx context.Context, registry, key string, img *device.Image) (device.Handle, error) {
	r, err := s.registry(registry)
	if err != nil {
		return nil, err
	}
	h, err := r.Write(ctx, key, img)
	return h, translateError(registry, err)
}

// Coordinator returns the shared budget.
func (s *System) Coordinator() *budget.Coordinator { return s.coord }

// Backend returns the device backend.
func (s *System) Backend() device.Backend { return s.backend }

// Stats returns the shared budget status.
func (s *System) Stats() budget.Stats { return s.coord.Stats() }

// MaxBytes returns the current budget.
func (s *System) MaxBytes() int64 { return s.coord.MaxBytes() }

// SetMaxBytes changes the budget. The value is saved on Close.
func (s *System) SetMaxBytes(ctx context.Context, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative budget %d", ErrInvalidConfig, n)
	}
	old := s.coord.MaxBytes()
	s.coord.SetMaxBytes(n)
	s.saveBudget.Store(true)
	s.opts.logger.LogBudget(ctx, old, n)
	return nil
}

// Close closes every registry, saves the budget unless it came from
// WithMaxBytes and was never changed, and releases the settings store if the
// system opened it.
func (s *System) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	regs := make([]*cache.Registry, 0, len(s.registries))
	for _, r := range s.registries {
		regs = append(regs, r)
	}
	s.mu.Unlock()

	var errs []error
	for _, r := range regs {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.saveBudget.Load() {
		if err := settings.SaveBudget(context.Background(), s.settings, s.coord.MaxBytes()); err != nil {
			errs = append(errs, fmt.Errorf("save budget: %w", err))
		}
	}
	if err := s.closeSettings(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *System) closeSettings() error {
	if !s.ownsSettings {
		return nil
	}
	return s.settings.Close()
}
