package cache

import (
	"io"
	"log/slog"
)

type options struct {
	logger             *slog.Logger
	metrics            MetricsObserver
	persister          Persister
	onEvent            func(Event)
	maxConcurrentLoads int
	sizeHint           int
}

func defaultOptions() options {
	return options{
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:            &NoopMetricsObserver{},
		maxConcurrentLoads: 4,
		sizeHint:           64,
	}
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithPersister makes Write also persist its image.
func WithPersister(p Persister) Option {
	return func(o *options) {
		o.persister = p
	}
}

// WithEventHandler registers a callback for entry lifecycle events.
//
// The callback runs with the coordinator lock held. It must not call into
// any registry sharing the coordinator.
func WithEventHandler(fn func(Event)) Option {
	return func(o *options) {
		o.onEvent = fn
	}
}

// WithMaxConcurrentLoads bounds the number of Loader calls in flight.
// Values below 1 are ignored.
func WithMaxConcurrentLoads(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentLoads = n
		}
	}
}

// WithSizeHint preallocates room for n entries.
func WithSizeHint(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sizeHint = n
		}
	}
}
