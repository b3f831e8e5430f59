package budget

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

var (
	// ErrOutOfBudget matches every *OutOfBudgetError via errors.Is.
	ErrOutOfBudget = errors.New("device memory budget exceeded")
	// ErrAlreadyRegistered is returned when a tenant registers twice.
	ErrAlreadyRegistered = errors.New("tenant already registered")
	// ErrInvalidRequest is returned for negative admission requests.
	ErrInvalidRequest = errors.New("invalid admission request")
)

// DefaultMaxBytes is the budget used when nothing else is configured (768 MiB).
const DefaultMaxBytes int64 = 768 << 20

// OutOfBudgetError reports a request that cannot fit even after a full sweep.
type OutOfBudgetError struct {
	Requested   int64
	Used        int64
	Reclaimable int64
	Max         int64
}

func (e *OutOfBudgetError) Error() string {
	return fmt.Sprintf("could not admit %s (used %s, reclaimable %s, max %s)",
		humanize.IBytes(uint64(e.Requested)),
		humanize.IBytes(uint64(e.Used)),
		humanize.IBytes(uint64(e.Reclaimable)),
		humanize.IBytes(uint64(e.Max)),
	)
}

func (e *OutOfBudgetError) Is(target error) bool { return target == ErrOutOfBudget }

// Tenant is a cache sharing the budget.
//
// All methods are called with the coordinator lock held.
type Tenant interface {
	Name() string
	// Usage returns resident bytes and the unpinned part of them.
	Usage() (occupied, reclaimable int64)
	// EvictUnpinned frees every unpinned resident entry and returns the bytes freed.
	EvictUnpinned() int64
}

// Config holds the coordinator limits.
type Config struct {
	// MaxBytes is the shared ceiling. If 0, usage is only tracked.
	MaxBytes int64
}

// Coordinator enforces Config.MaxBytes over all registered tenants.
type Coordinator struct {
	mu       sync.Mutex
	tenants  []Tenant
	maxBytes atomic.Int64

	logger   *slog.Logger
	observer Observer

	admissions atomic.Int64
	rejections atomic.Int64
	sweeps     atomic.Int64
	swept      atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the admission observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a coordinator.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: NoopObserver{},
	}
	c.maxBytes.Store(max(cfg.MaxBytes, 0))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register attaches a tenant for its lifetime.
func (c *Coordinator) Register(t Tenant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.tenants, t) {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t.Name())
	}
	c.tenants = append(c.tenants, t)
	c.logger.Debug("tenant registered", "tenant", t.Name(), "tenants", len(c.tenants))
	return nil
}

// Unregister detaches a tenant. Unknown tenants are ignored.
func (c *Coordinator) Unregister(t Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unregisterLocked(t)
}

// Exclusive runs fn with the coordinator lock held.
// The Txn must not be used after fn returns.
func (c *Coordinator) Exclusive(fn func(tx *Txn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Txn{c: c})
}

// Admit asks for requested bytes outside of any tenant transaction.
func (c *Coordinator) Admit(requested int64) error {
	return c.Exclusive(func(tx *Txn) error {
		return tx.Admit(requested)
	})
}

// Usage returns the summed occupancy and reclaimable bytes of all tenants.
func (c *Coordinator) Usage() (total, reclaimable int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usageLocked()
}

// MaxBytes returns the configured ceiling (0 if unlimited).
func (c *Coordinator) MaxBytes() int64 {
	return c.maxBytes.Load()
}

// SetMaxBytes changes the ceiling. Lowering it below current usage evicts
// nothing; the next admission that needs room sweeps as usual.
func (c *Coordinator) SetMaxBytes(n int64) {
	old := c.maxBytes.Swap(max(n, 0))
	c.logger.Info("budget changed", "old", old, "new", max(n, 0))
}

// Tenants returns the names of registered tenants in registration order.
func (c *Coordinator) Tenants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.tenants))
	for i, t := range c.tenants {
		names[i] = t.Name()
	}
	return names
}

func (c *Coordinator) usageLocked() (total, reclaimable int64) {
	for _, t := range c.tenants {
		occ, rec := t.Usage()
		total += occ
		reclaimable += rec
	}
	return total, reclaimable
}

func (c *Coordinator) unregisterLocked(t Tenant) {
	i := slices.Index(c.tenants, t)
	if i < 0 {
		return
	}
	c.tenants = slices.Delete(c.tenants, i, i+1)
	c.logger.Debug("tenant unregistered", "tenant", t.Name(), "tenants", len(c.tenants))
}

func (c *Coordinator) admitLocked(requested int64) error {
	if requested < 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidRequest, requested)
	}

	limit := c.maxBytes.Load()
	if limit == 0 || requested == 0 {
		c.admissions.Add(1)
		c.observer.OnAdmit(requested, false, nil)
		return nil
	}

	total, reclaimable := c.usageLocked()

	if total+requested <= limit {
		c.admissions.Add(1)
		c.observer.OnAdmit(requested, false, nil)
		return nil
	}

	if total+requested > limit+reclaimable {
		err := &OutOfBudgetError{Requested: requested, Used: total, Reclaimable: reclaimable, Max: limit}
		c.rejections.Add(1)
		c.observer.OnAdmit(requested, false, err)
		c.logger.Warn("admission rejected",
			"requested", requested,
			"used", total,
			"reclaimable", reclaimable,
			"max", limit,
		)
		return err
	}

	freed := c.sweepLocked()

	// Tenants must have released everything they reported as reclaimable.
	after, _ := c.usageLocked()
	if after+requested > limit {
		err := &OutOfBudgetError{Requested: requested, Used: after, Max: limit}
		c.rejections.Add(1)
		c.observer.OnAdmit(requested, true, err)
		c.logger.Error("sweep freed less than reported",
			"requested", requested,
			"reclaimable", reclaimable,
			"freed", freed,
			"used", after,
		)
		return err
	}

	c.admissions.Add(1)
	c.observer.OnAdmit(requested, true, nil)
	return nil
}

func (c *Coordinator) sweepLocked() int64 {
	var freed int64
	for _, t := range c.tenants {
		freed += t.EvictUnpinned()
	}

	c.sweeps.Add(1)
	c.swept.Add(freed)
	c.observer.OnSweep(freed, len(c.tenants))
	c.logger.Info("eviction sweep", "freed", freed, "tenants", len(c.tenants))
	return freed
}

// Txn is the lock-held view of a Coordinator passed to Exclusive.
type Txn struct {
	c *Coordinator
}

// Admit applies the admission policy for requested bytes.
func (tx *Txn) Admit(requested int64) error {
	return tx.c.admitLocked(requested)
}

// Usage returns summed occupancy and reclaimable bytes.
func (tx *Txn) Usage() (total, reclaimable int64) {
	return tx.c.usageLocked()
}

// MaxBytes returns the ceiling.
func (tx *Txn) MaxBytes() int64 {
	return tx.c.maxBytes.Load()
}

// Unregister detaches t without re-acquiring the lock.
func (tx *Txn) Unregister(t Tenant) {
	tx.c.unregisterLocked(t)
}
