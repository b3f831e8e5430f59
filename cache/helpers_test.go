package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vramcache/budget"
	"github.com/hupe1980/vramcache/device"
)

// testImage returns a 1-byte-per-pixel image of exactly size bytes.
func testImage(size int, fill byte) *device.Image {
	f := device.Format{Width: size, Height: 1, Channels: 1, Depth: 1, Sampling: device.DefaultSampling}
	pix := make([]byte, size)
	for i := range pix {
		pix[i] = fill
	}
	return &device.Image{Format: f, Pix: pix}
}

// sizedLoader serves images whose size is looked up by key.
type sizedLoader struct {
	mu    sync.Mutex
	sizes map[string]int
	calls map[string]int
	fail  map[string]error
}

func newSizedLoader(sizes map[string]int) *sizedLoader {
	return &sizedLoader{sizes: sizes, calls: map[string]int{}, fail: map[string]error{}}
}

func (l *sizedLoader) Load(_ context.Context, key string) (*device.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[key]++
	if err := l.fail[key]; err != nil {
		return nil, err
	}
	size, ok := l.sizes[key]
	if !ok {
		return nil, fmt.Errorf("no such source: %s", key)
	}
	return testImage(size, byte(len(key))), nil
}

func (l *sizedLoader) Calls(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[key]
}

type fixture struct {
	coord   *budget.Coordinator
	backend *device.HostBackend
}

func newFixture(maxBytes int64) *fixture {
	return &fixture{
		coord:   budget.New(budget.Config{MaxBytes: maxBytes}),
		backend: device.NewHostBackend(0),
	}
}

func (f *fixture) registry(t *testing.T, name string, loader Loader, opts ...Option) *Registry {
	t.Helper()
	r, err := New(name, f.coord, f.backend, loader, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func keys(infos []EntryInfo) []string {
	out := make([]string, len(infos))
	for i, e := range infos {
		out[i] = e.Key
	}
	return out
}
