package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/vramcache/blobstore"
	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/imageio"
)

// Resolver maps a cache key to a blob name.
type Resolver func(key string) string

// Identity uses the key as the blob name.
func Identity(key string) string { return key }

type options struct {
	resolve  Resolver
	throttle *Throttle
	logger   *slog.Logger
	sampling *device.Sampling
}

// Option configures a Loader or Persister.
type Option func(*options)

// WithResolver sets how keys map to blob names.
func WithResolver(fn Resolver) Option {
	return func(o *options) { o.resolve = fn }
}

// WithThrottle limits reads and writes.
func WithThrottle(t *Throttle) Option {
	return func(o *options) { o.throttle = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSampling overrides the sampler state of every decoded image.
func WithSampling(s device.Sampling) Option {
	return func(o *options) { o.sampling = &s }
}

func applyOptions(opts []Option) options {
	o := options{
		resolve: Identity,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Loader decodes images from a BlobStore. It implements cache.Loader.
type Loader struct {
	store blobstore.BlobStore
	opts  options
}

// NewLoader creates a Loader reading from store.
func NewLoader(store blobstore.BlobStore, opts ...Option) *Loader {
	return &Loader{store: store, opts: applyOptions(opts)}
}

// Load reads and decodes the blob that key resolves to.
func (l *Loader) Load(ctx context.Context, key string) (*device.Image, error) {
	name := l.opts.resolve(key)
	if !imageio.Supported(name) {
		return nil, fmt.Errorf("%s: %w", name, imageio.ErrUnsupportedFormat)
	}

	t := l.opts.throttle
	if err := t.AcquireRead(ctx); err != nil {
		return nil, err
	}
	defer t.ReleaseRead()

	b, err := l.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	size := b.Size()
	if err := t.AcquireHost(ctx, size); err != nil {
		return nil, err
	}
	defer t.ReleaseHost(size)

	img, err := imageio.Decode(name, l.reader(ctx, b))
	if err != nil {
		return nil, err
	}
	if l.opts.sampling != nil {
		img.Format.Sampling = *l.opts.sampling
	}

	l.opts.logger.Debug("decoded source",
		slog.String("key", key),
		slog.String("blob", name),
		slog.Int64("encoded_bytes", size),
		slog.String("format", img.Format.String()),
	)
	return img, nil
}

func (l *Loader) reader(ctx context.Context, b blobstore.Blob) io.Reader {
	var r io.Reader
	if m, ok := b.(blobstore.Mappable); ok {
		if data, err := m.Bytes(); err == nil {
			r = bytes.NewReader(data)
		}
	}
	if r == nil {
		r = blobstore.NewReader(ctx, b)
	}
	if l.opts.throttle.Limited() {
		r = NewRateLimitedReader(ctx, r, l.opts.throttle)
	}
	return r
}
