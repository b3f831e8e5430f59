package source

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ThrottleConfig holds limits for source IO.
type ThrottleConfig struct {
	// MaxConcurrentReads bounds the number of blobs read at once.
	// If 0, defaults to 4.
	MaxConcurrentReads int64

	// IOLimitBytesPerSec is the maximum read throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// HostMemoryLimitBytes bounds the encoded bytes staged by in-flight decodes.
	// If 0, no limit is enforced (only tracking).
	HostMemoryLimitBytes int64
}

// Throttle limits source reads. A nil *Throttle imposes no limits.
type Throttle struct {
	cfg ThrottleConfig

	readSem *semaphore.Weighted

	hostSem  *semaphore.Weighted // nil if unlimited
	hostUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewThrottle creates a Throttle.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MaxConcurrentReads <= 0 {
		cfg.MaxConcurrentReads = 4
	}

	t := &Throttle{
		cfg:     cfg,
		readSem: semaphore.NewWeighted(cfg.MaxConcurrentReads),
	}

	if cfg.HostMemoryLimitBytes > 0 {
		t.hostSem = semaphore.NewWeighted(cfg.HostMemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		t.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return t
}

// AcquireRead reserves a read slot, blocking while all slots are busy.
func (t *Throttle) AcquireRead(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.readSem.Acquire(ctx, 1)
}

// TryAcquireRead reserves a read slot without blocking.
func (t *Throttle) TryAcquireRead() bool {
	if t == nil {
		return true
	}
	return t.readSem.TryAcquire(1)
}

// ReleaseRead releases a read slot.
func (t *Throttle) ReleaseRead() {
	if t == nil {
		return
	}
	t.readSem.Release(1)
}

// hostWeight clamps a reservation so a single blob larger than the limit
// takes the whole allowance instead of waiting forever.
func (t *Throttle) hostWeight(bytes int64) int64 {
	if t.cfg.HostMemoryLimitBytes > 0 {
		return min(bytes, t.cfg.HostMemoryLimitBytes)
	}
	return bytes
}

// AcquireHost reserves host memory for staging encoded bytes.
// If a limit is configured and usage would exceed it, this blocks until
// memory is released or ctx is canceled.
func (t *Throttle) AcquireHost(ctx context.Context, bytes int64) error {
	if t == nil || bytes <= 0 {
		return nil
	}
	w := t.hostWeight(bytes)
	if t.hostSem != nil {
		if err := t.hostSem.Acquire(ctx, w); err != nil {
			return err
		}
	}
	t.hostUsed.Add(w)
	return nil
}

// TryAcquireHost reserves host memory without blocking.
func (t *Throttle) TryAcquireHost(bytes int64) bool {
	if t == nil || bytes <= 0 {
		return true
	}
	w := t.hostWeight(bytes)
	if t.hostSem != nil && !t.hostSem.TryAcquire(w) {
		return false
	}
	t.hostUsed.Add(w)
	return true
}

// ReleaseHost releases memory reserved with AcquireHost.
func (t *Throttle) ReleaseHost(bytes int64) {
	if t == nil || bytes <= 0 {
		return
	}
	w := t.hostWeight(bytes)
	if t.hostSem != nil {
		t.hostSem.Release(w)
	}
	t.hostUsed.Add(-w)
}

// HostUsage returns the host memory currently reserved.
func (t *Throttle) HostUsage() int64 {
	if t == nil {
		return 0
	}
	return t.hostUsed.Load()
}

// Limited reports whether reads are rate limited.
func (t *Throttle) Limited() bool {
	return t != nil && t.ioLimiter != nil
}

// AcquireIO waits until the IO limit allows n bytes.
// n larger than the burst is waited for in burst-sized steps.
func (t *Throttle) AcquireIO(ctx context.Context, n int) error {
	if t == nil || t.ioLimiter == nil {
		return nil
	}
	burst := t.ioLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := t.ioLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
