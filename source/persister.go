package source

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hupe1980/vramcache/blobstore"
	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/imageio"
)

// Persister encodes images and writes them to a BlobStore.
// It implements cache.Persister.
type Persister struct {
	store blobstore.BlobStore
	opts  options
}

// NewPersister creates a Persister writing to store.
func NewPersister(store blobstore.BlobStore, opts ...Option) *Persister {
	return &Persister{store: store, opts: applyOptions(opts)}
}

// Persist encodes img with the codec chosen by the resolved blob name.
func (p *Persister) Persist(ctx context.Context, key string, img *device.Image) error {
	name := p.opts.resolve(key)

	var buf bytes.Buffer
	if err := imageio.Encode(name, &buf, img); err != nil {
		return err
	}

	if p.opts.throttle.Limited() {
		if err := p.opts.throttle.AcquireIO(ctx, buf.Len()); err != nil {
			return err
		}
	}
	if err := p.store.Put(ctx, name, buf.Bytes()); err != nil {
		return err
	}

	p.opts.logger.Debug("persisted output",
		slog.String("key", key),
		slog.String("blob", name),
		slog.Int("encoded_bytes", buf.Len()),
	)
	return nil
}
