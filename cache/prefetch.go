package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/device"
)

// Prefetch loads every key that is not yet resident.
//
// Decoding runs concurrently, bounded by WithMaxConcurrentLoads. Admission
// and upload happen one key at a time in argument order. The requested keys
// stay pinned until Prefetch returns, so a later admission cannot sweep an
// earlier one; a budget rejection stops at the first key that does not fit
// and keeps the ones before it. Duplicate keys are loaded once.
func (r *Registry) Prefetch(ctx context.Context, keys ...string) error {
	var missing, pinned []string
	defer func() { r.unpinAll(pinned) }()

	err := r.exclusive(func(*budget.Txn) error {
		seen := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if h := r.hitLocked(key, true); h != nil {
				pinned = append(pinned, key)
				continue
			}
			missing = append(missing, key)
		}
		return nil
	})
	if err != nil || len(missing) == 0 {
		return err
	}

	start := time.Now()
	imgs := make([]*device.Image, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.maxConcurrentLoads)
	for i, key := range missing {
		g.Go(func() error {
			img, err := r.decode(gctx, key)
			if err != nil {
				return err
			}
			imgs[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, key := range missing {
		if _, err := r.insertLoaded(key, imgs[i], true, start); err != nil {
			return err
		}
		pinned = append(pinned, key)
	}

	r.logger.Debug("prefetched", "keys", len(missing), "duration", time.Since(start))
	return nil
}

// unpinAll drops the pins Prefetch took. Entries removed in the meantime
// are skipped.
func (r *Registry) unpinAll(keys []string) {
	if len(keys) == 0 {
		return
	}
	_ = r.exclusive(func(*budget.Txn) error {
		for _, key := range keys {
			if e, ok := r.entries[key]; ok && e.pins > 0 {
				e.pins--
			}
		}
		return nil
	})
}
