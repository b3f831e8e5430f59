package budget

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Observer receives admission events. Calls happen with the coordinator lock held.
type Observer interface {
	// OnAdmit is called for every admission decision.
	// swept reports whether an eviction sweep ran; err is nil on success.
	OnAdmit(requested int64, swept bool, err error)

	// OnSweep is called after a sweep with the bytes freed across tenants.
	OnSweep(freed int64, tenants int)
}

// NoopObserver is a no-op implementation of Observer.
type NoopObserver struct{}

func (NoopObserver) OnAdmit(int64, bool, error) {}
func (NoopObserver) OnSweep(int64, int)         {}

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	Tenants     int
	Used        int64
	Reclaimable int64
	Max         int64
	Admissions  int64
	Rejections  int64
	Sweeps      int64
	SweptBytes  int64
	Timestamp   time.Time
}

// Available returns the bytes still admissible without a sweep.
func (s Stats) Available() int64 {
	if s.Max == 0 {
		return -1
	}
	return max(s.Max-s.Used, 0)
}

// String renders the status line shown to users ("X used / Y budget").
func (s Stats) String() string {
	limit := "unlimited"
	if s.Max > 0 {
		limit = humanize.IBytes(uint64(s.Max))
	}
	return fmt.Sprintf("%s used / %s budget (%s reclaimable, %d registries)",
		humanize.IBytes(uint64(s.Used)),
		limit,
		humanize.IBytes(uint64(s.Reclaimable)),
		s.Tenants,
	)
}

// Stats returns a snapshot of usage and counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	used, reclaimable := c.usageLocked()
	tenants := len(c.tenants)
	c.mu.Unlock()

	return Stats{
		Tenants:     tenants,
		Used:        used,
		Reclaimable: reclaimable,
		Max:         c.maxBytes.Load(),
		Admissions:  c.admissions.Load(),
		Rejections:  c.rejections.Load(),
		Sweeps:      c.sweeps.Load(),
		SweptBytes:  c.swept.Load(),
		Timestamp:   time.Now(),
	}
}
