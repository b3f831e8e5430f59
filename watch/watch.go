// Package watch unloads cached images whose source files change on disk.
//
// A Watcher observes a directory tree with fsnotify, collects changed files
// for a short debounce window, and then unloads the matching keys from a
// registry. The entries stay known to the registry, so the next Get decodes
// the new file.
package watch

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/vramcache/cache"
	"github.com/hupe1980/vramcache/imageio"
)

// DefaultDebounce is how long the watcher waits for more events before
// invalidating.
const DefaultDebounce = 100 * time.Millisecond

// Target is the registry side of the watcher. *cache.Registry implements it.
type Target interface {
	Unload(key string) error
}

// KeyFunc maps a path relative to the watched root (forward slashes) to a
// cache key. Returning false ignores the file.
type KeyFunc func(rel string) (string, bool)

// SupportedImages uses the relative path as key for files with a known
// image extension.
func SupportedImages(rel string) (string, bool) {
	return rel, imageio.Supported(rel)
}

type options struct {
	debounce time.Duration
	keyFunc  KeyFunc
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*options)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithKeyFunc sets how changed files map to keys.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Watcher invalidates registry entries when their source files change.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	target    Target
	opts      options

	invalidated chan []string
	stop        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once

	mu       sync.Mutex
	pending  map[string]struct{}
	debounce *time.Timer
	closed   bool
}

// New starts watching root and every directory below it.
func New(root string, target Target, opts ...Option) (*Watcher, error) {
	o := options{
		debounce: DefaultDebounce,
		keyFunc:  SupportedImages,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher:   fsw,
		root:        root,
		target:      target,
		opts:        o,
		invalidated: make(chan []string, 16),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		pending:     make(map[string]struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// addRecursive adds a directory and its subdirectories, since fsnotify does
// not watch subdirectories on its own.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run() {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.closed = true
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
		close(w.invalidated)
	}()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.opts.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	key, ok := w.opts.keyFunc(filepath.ToSlash(rel))
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[key] = struct{}{}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.opts.debounce, w.flush)
}

// flush unloads every pending key.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	keys := make([]string, 0, len(w.pending))
	for k := range w.pending {
		keys = append(keys, k)
	}
	clear(w.pending)
	w.mu.Unlock()

	sort.Strings(keys)
	var unloaded []string
	for _, key := range keys {
		err := w.target.Unload(key)
		switch {
		case err == nil:
			unloaded = append(unloaded, key)
		case errors.Is(err, cache.ErrNotFound):
		case errors.Is(err, cache.ErrPinned):
			w.opts.logger.Warn("source changed while pinned", slog.String("key", key))
		default:
			w.opts.logger.Error("unload failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	if len(unloaded) == 0 {
		return
	}
	w.opts.logger.Debug("sources changed", slog.Any("keys", unloaded))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.invalidated <- unloaded:
	default:
	}
}

// Invalidated delivers the keys unloaded by each flush. Deliveries are
// dropped when the channel is full. It is closed by Close.
func (w *Watcher) Invalidated() <-chan []string {
	return w.invalidated
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.fsWatcher.Close()
	})
	return err
}
