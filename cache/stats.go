package cache

import "time"

// State is the lifecycle state of an entry.
type State uint8

const (
	// StateUnloaded entries are known but hold no device memory.
	StateUnloaded State = iota
	StateResident
	StatePinned
	// StateEvicted is terminal; the entry is gone from the registry.
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateResident:
		return "resident"
	case StatePinned:
		return "pinned"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// EntryInfo is a snapshot of one entry.
type EntryInfo struct {
	Key    string
	State  State
	Size   int64
	Pins   int
	Width  int
	Height int
	Digest uint64
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Name        string
	Entries     int
	Resident    int
	Pinned      int
	Occupancy   int64
	Reclaimable int64

	Hits       int64
	Misses     int64
	Loads      int64
	LoadErrors int64
	Rejections int64
	Evictions  int64
	Unloads    int64
	Removals   int64
	Writes     int64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// EventKind identifies a lifecycle transition.
type EventKind uint8

const (
	EventLoaded EventKind = iota + 1
	EventWritten
	EventUnloaded
	EventEvicted
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventWritten:
		return "written"
	case EventUnloaded:
		return "unloaded"
	case EventEvicted:
		return "evicted"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to the handler set with WithEventHandler.
type Event struct {
	Registry string
	Kind     EventKind
	Key      string
	Size     int64
}

// MetricsObserver receives registry events.
type MetricsObserver interface {
	// OnLookup is called for every Get; hit reports whether the entry was resident.
	OnLookup(hit bool)

	// OnLoad is called after a miss was resolved, successfully or not.
	OnLoad(duration time.Duration, bytes int64, err error)

	// OnEviction reports entries dropped by a sweep or EvictLRU.
	OnEviction(entries int, bytes int64)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnLookup(hit bool)                                     {}
func (o *NoopMetricsObserver) OnLoad(duration time.Duration, bytes int64, err error) {}
func (o *NoopMetricsObserver) OnEviction(entries int, bytes int64)                   {}
