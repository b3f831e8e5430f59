package cache

import (
	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/internal/recency"
)

// tenant is the view of a Registry handed to the coordinator.
// Its methods run with the coordinator lock already held.
type tenant struct {
	r *Registry
}

func (t *tenant) Name() string { return t.r.name }

func (t *tenant) Usage() (occupied, reclaimable int64) {
	return t.r.occupancy, t.r.reclaimableLocked()
}

func (t *tenant) EvictUnpinned() int64 {
	return t.r.evictUnpinnedLocked()
}

// EvictLRU frees at least bytes by dropping unpinned resident entries,
// least recently used first. It stops early when candidates run out and
// returns the bytes actually freed.
func (r *Registry) EvictLRU(bytes int64) int64 {
	var freed int64
	_ = r.exclusive(func(*budget.Txn) error {
		freed = r.evictLRULocked(bytes)
		return nil
	})
	return freed
}

// EvictUnpinned drops every unpinned resident entry and returns the bytes freed.
func (r *Registry) EvictUnpinned() int64 {
	var freed int64
	_ = r.exclusive(func(*budget.Txn) error {
		freed = r.evictUnpinnedLocked()
		return nil
	})
	return freed
}

func (r *Registry) evictLRULocked(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}

	var (
		victims []*entry
		planned int64
	)
	r.lru.Ascend(func(_ recency.Slot, e *entry) bool {
		if e.resident() && e.pins == 0 {
			victims = append(victims, e)
			planned += e.size
		}
		return planned < bytes
	})
	return r.evictLocked(victims)
}

func (r *Registry) evictUnpinnedLocked() int64 {
	var victims []*entry
	r.lru.Ascend(func(_ recency.Slot, e *entry) bool {
		if e.resident() && e.pins == 0 {
			victims = append(victims, e)
		}
		return true
	})
	return r.evictLocked(victims)
}

// evictLocked drops victims after the walk so the list is never mutated mid-iteration.
func (r *Registry) evictLocked(victims []*entry) int64 {
	if len(victims) == 0 {
		return 0
	}

	var freed int64
	for _, e := range victims {
		freed += e.size
		r.dropLocked(e, EventEvicted)
	}

	r.evictions.Add(int64(len(victims)))
	r.opts.metrics.OnEviction(len(victims), freed)
	r.logger.Debug("evicted", "entries", len(victims), "bytes", freed)
	return freed
}
