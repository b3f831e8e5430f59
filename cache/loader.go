package cache

import (
	"context"

	"github.com/hupe1980/vramcache/device"
)

// Loader produces the host image for a key on a cache miss.
//
// Load runs without any registry lock held and may be called concurrently.
type Loader interface {
	Load(ctx context.Context, key string) (*device.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, key string) (*device.Image, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, key string) (*device.Image, error) {
	return f(ctx, key)
}

// Persister stores computed outputs passed to Registry.Write.
type Persister interface {
	Persist(ctx context.Context, key string, img *device.Image) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, key string, img *device.Image) error

// Persist implements Persister.
func (f PersisterFunc) Persist(ctx context.Context, key string, img *device.Image) error {
	return f(ctx, key, img)
}
