package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/vramcache"
	"github.com/hupe1980/vramcache/blobstore"
	"github.com/hupe1980/vramcache/cache"
	"github.com/hupe1980/vramcache/device"
	"github.com/hupe1980/vramcache/source"
	"github.com/hupe1980/vramcache/watch"
)

// runner executes commands against one registry of a System.
type runner struct {
	sys      *vramcache.System
	registry string
}

func (r *runner) execute(ctx context.Context, c Command) (err error) {
	op, ok := lookupOp(c.Op)
	if !ok {
		return fmt.Errorf("unknown op %q", c.Op)
	}
	sampling, err := c.Sampling()
	if err != nil {
		return err
	}
	reg, ok := r.sys.Registry(r.registry)
	if !ok {
		return fmt.Errorf("%w: %q", vramcache.ErrUnknownRegistry, r.registry)
	}

	// Inputs stay pinned until every output is written so that admitting
	// the outputs cannot sweep them.
	var pinned []string
	defer func() {
		for _, key := range pinned {
			if uerr := r.sys.Unlock(r.registry, key); uerr != nil {
				err = errors.Join(err, uerr)
			}
		}
	}()

	inputs := make([]*device.Image, 0, len(c.Inputs))
	for i, key := range c.Inputs {
		h, aerr := r.sys.Acquire(ctx, r.registry, key)
		if aerr != nil {
			return fmt.Errorf("input %q: %w", key, aerr)
		}
		pinned = append(pinned, key)

		if sampling != nil {
			serr := reg.SetSampling(key, sampling[i])
			if serr != nil && !errors.Is(serr, cache.ErrSamplingUnsupported) {
				return fmt.Errorf("input %q: %w", key, serr)
			}
		}

		img, derr := r.sys.Backend().Download(h)
		if derr != nil {
			return fmt.Errorf("input %q: %w", key, derr)
		}
		inputs = append(inputs, img)
	}

	out, err := op.apply(inputs)
	if err != nil {
		return err
	}
	for _, key := range c.Outputs {
		if _, werr := r.sys.Write(ctx, r.registry, key, out); werr != nil {
			return fmt.Errorf("output %q: %w", key, werr)
		}
	}
	return nil
}

func runCommands(ctx context.Context, cfg Config, logger *vramcache.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	commandsPath := fs.String("commands", "", "path to the command file")
	registry := fs.String("registry", "compute", "registry name")
	prefetch := fs.Bool("prefetch", false, "decode all inputs before running")
	keepGoing := fs.Bool("keep-going", false, "continue after a failed command")
	watchSources := fs.Bool("watch", false, "reload inputs whose files change while running (local source only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *commandsPath == "" && fs.NArg() == 1 {
		*commandsPath = fs.Arg(0)
	}
	if *commandsPath == "" {
		return errors.New("run: missing command file")
	}

	cf, err := ReadCommandFile(*commandsPath)
	if err != nil {
		return err
	}

	src, err := OpenStore(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("source store: %w", err)
	}
	dst := src
	if cfg.Output != nil {
		if dst, err = OpenStore(ctx, *cfg.Output); err != nil {
			return fmt.Errorf("output store: %w", err)
		}
	}

	metrics := &vramcache.BasicMetricsCollector{}
	sys, err := vramcache.Open(ctx, systemOptions(cfg, logger, vramcache.WithMetricsCollector(metrics))...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sys.Close(); cerr != nil {
			logger.Error("close", "error", cerr)
		}
	}()

	throttle := source.NewThrottle(cfg.Throttle)
	srcOpts := []source.Option{source.WithThrottle(throttle), source.WithLogger(logger.Logger)}

	regOpts := []cache.Option{
		cache.WithPersister(source.NewPersister(dst, srcOpts...)),
		cache.WithEventHandler(func(ev cache.Event) {
			logger.Debug("cache event", "registry", ev.Registry, "kind", ev.Kind.String(), "key", ev.Key, "bytes", ev.Size)
		}),
	}
	if cfg.MaxConcurrentLoads > 0 {
		regOpts = append(regOpts, cache.WithMaxConcurrentLoads(cfg.MaxConcurrentLoads))
	}
	reg, err := sys.NewRegistry(*registry, source.NewLoader(src, srcOpts...), regOpts...)
	if err != nil {
		return err
	}

	if *watchSources {
		w, err := startWatcher(src, reg, logger)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	if *prefetch {
		if err := reg.Prefetch(ctx, commandInputs(cf)...); err != nil {
			logger.Warn("prefetch stopped", "error", err)
		}
	}

	r := &runner{sys: sys, registry: *registry}
	var failed int
	for i, c := range cf.Commands {
		start := time.Now()
		if err := r.execute(ctx, c); err != nil {
			if !*keepGoing {
				return fmt.Errorf("command %d (%s): %w", i, c.Op, err)
			}
			failed++
			logger.Error("command failed", "index", i, "op", c.Op, "error", err)
			continue
		}
		logger.Info("command done",
			slog.Int("index", i),
			slog.String("op", c.Op),
			slog.Any("outputs", c.Outputs),
			slog.Duration("duration", time.Since(start)),
		)
	}

	st := metrics.GetStats()
	fmt.Fprintf(stdout, "%d commands, %d failed\n", len(cf.Commands), failed)
	fmt.Fprintf(stdout, "%s\n", sys.Stats())
	fmt.Fprintf(stdout, "hits %d, misses %d (%.0f%%), sweeps %d, rejections %d\n",
		st.Hits, st.Misses, st.HitRate()*100, st.Sweeps, st.Rejections)

	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(cf.Commands))
	}
	return nil
}

// startWatcher unloads entries of target whose files change below the root
// of a local source store.
func startWatcher(src blobstore.BlobStore, target watch.Target, logger *vramcache.Logger) (*watch.Watcher, error) {
	local, ok := src.(*blobstore.LocalStore)
	if !ok {
		return nil, errors.New("run: -watch needs a local source store")
	}
	w, err := watch.New(local.Root(), target, watch.WithLogger(logger.Logger))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", local.Root(), err)
	}
	go func() {
		for keys := range w.Invalidated() {
			logger.Info("sources changed", "keys", keys)
		}
	}()
	return w, nil
}

// commandInputs returns each input key once, in first-use order.
// Inputs produced by an earlier command are skipped.
func commandInputs(cf CommandFile) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range cf.Commands {
		for _, in := range c.Inputs {
			if !seen[in] {
				seen[in] = true
				keys = append(keys, in)
			}
		}
		for _, out := range c.Outputs {
			seen[out] = true
		}
	}
	return keys
}
