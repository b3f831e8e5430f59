package vramcache

import (
	"log/slog"

	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/settings"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	settings         settings.Store
	settingsURI      string
	maxBytes         int64
	maxBytesSet      bool
	backend          device.Backend
}

// Option configures Open.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vramcache.NewJSONLogger(slog.LevelInfo)
//	sys, _ := vramcache.Open(ctx, vramcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector shared by the budget
// and every registry. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vramcache.BasicMetricsCollector{}
//	sys, _ := vramcache.Open(ctx, vramcache.WithMetricsCollector(metrics))
//	// ... use sys ...
//	stats := metrics.GetStats()
//	fmt.Printf("hit rate %.2f, sweeps %d\n", stats.HitRate(), stats.Sweeps)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithSettings sets the store the budget is read from and saved to.
// The caller keeps ownership of the store.
func WithSettings(s settings.Store) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithSettingsURI opens a settings store with settings.Open.
// The system closes it on Close.
func WithSettingsURI(uri string) Option {
	return func(o *options) {
		o.settingsURI = uri
	}
}

// WithMaxBytes overrides the saved budget. 0 means unlimited.
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		o.maxBytes = n
		o.maxBytesSet = true
	}
}

// WithBackend sets the device backend. The default is an unbounded
// device.HostBackend.
func WithBackend(b device.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
