package vramcache

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/cache"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Admission and sweep callbacks run with the budget lock held and must not
// call back into the system.
type MetricsCollector interface {
	// RecordHit is called for a Get served from a resident entry.
	RecordHit(registry string)

	// RecordMiss is called for a Get that had to load.
	RecordMiss(registry string)

	// RecordLoad is called after each load attempt.
	// bytes is the device footprint of the loaded resource.
	RecordLoad(registry string, duration time.Duration, bytes int64, err error)

	// RecordAdmission is called for every budget decision.
	RecordAdmission(requested int64, swept bool, err error)

	// RecordSweep is called after a sweep over all registries.
	RecordSweep(freed int64, registries int)

	// RecordEviction is called when a registry drops entries to make room.
	RecordEviction(registry string, entries int, bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHit(string)                               {}
func (NoopMetricsCollector) RecordMiss(string)                              {}
func (NoopMetricsCollector) RecordLoad(string, time.Duration, int64, error) {}
func (NoopMetricsCollector) RecordAdmission(int64, bool, error)             {}
func (NoopMetricsCollector) RecordSweep(int64, int)                         {}
func (NoopMetricsCollector) RecordEviction(string, int, int64)              {}

// BasicMetricsCollector provides simple in-memory metrics collection
// summed over all registries.
type BasicMetricsCollector struct {
	Hits           atomic.Int64
	Misses         atomic.Int64
	Loads          atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	LoadedBytes    atomic.Int64
	Admissions     atomic.Int64
	Rejections     atomic.Int64
	Sweeps         atomic.Int64
	SweptBytes     atomic.Int64
	Evictions      atomic.Int64
	EvictedBytes   atomic.Int64
}

// RecordHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHit(string) {
	b.Hits.Add(1)
}

// RecordMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMiss(string) {
	b.Misses.Add(1)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ string, duration time.Duration, bytes int64, err error) {
	b.Loads.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadedBytes.Add(bytes)
}

// RecordAdmission implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdmission(_ int64, _ bool, err error) {
	if err != nil {
		b.Rejections.Add(1)
		return
	}
	b.Admissions.Add(1)
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(freed int64, _ int) {
	b.Sweeps.Add(1)
	b.SweptBytes.Add(freed)
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(_ string, entries int, bytes int64) {
	b.Evictions.Add(int64(entries))
	b.EvictedBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:         b.Hits.Load(),
		Misses:       b.Misses.Load(),
		Loads:        b.Loads.Load(),
		LoadErrors:   b.LoadErrors.Load(),
		LoadAvgNanos: b.getAvgLoadNanos(),
		LoadedBytes:  b.LoadedBytes.Load(),
		Admissions:   b.Admissions.Load(),
		Rejections:   b.Rejections.Load(),
		Sweeps:       b.Sweeps.Load(),
		SweptBytes:   b.SweptBytes.Load(),
		Evictions:    b.Evictions.Load(),
		EvictedBytes: b.EvictedBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.Loads.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits         int64
	Misses       int64
	Loads        int64
	LoadErrors   int64
	LoadAvgNanos int64
	LoadedBytes  int64
	Admissions   int64
	Rejections   int64
	Sweeps       int64
	SweptBytes   int64
	Evictions    int64
	EvictedBytes int64
}

// HitRate returns hits / (hits + misses), or 0 without lookups.
func (s BasicMetricsStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// registryObserver forwards one registry's events to a MetricsCollector.
type registryObserver struct {
	name string
	mc   MetricsCollector
}

var _ cache.MetricsObserver = (*registryObserver)(nil)

func (o *registryObserver) OnLookup(hit bool) {
	if hit {
		o.mc.RecordHit(o.name)
	} else {
		o.mc.RecordMiss(o.name)
	}
}

func (o *registryObserver) OnLoad(duration time.Duration, bytes int64, err error) {
	o.mc.RecordLoad(o.name, duration, bytes, err)
}

func (o *registryObserver) OnEviction(entries int, bytes int64) {
	o.mc.RecordEviction(o.name, entries, bytes)
}

// budgetObserver forwards coordinator decisions to the collector and logger.
type budgetObserver struct {
	mc     MetricsCollector
	logger *Logger
}

var _ budget.Observer = (*budgetObserver)(nil)

func (o *budgetObserver) OnAdmit(requested int64, swept bool, err error) {
	o.mc.RecordAdmission(requested, swept, err)
}

func (o *budgetObserver) OnSweep(freed int64, registries int) {
	o.mc.RecordSweep(freed, registries)
	o.logger.Debug("swept unpinned entries", "freed", freed, "registries", registries)
}
