package source

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_HostMemory(t *testing.T) {
	th := NewThrottle(ThrottleConfig{HostMemoryLimitBytes: 100})

	require.NoError(t, th.AcquireHost(context.Background(), 50))
	require.NoError(t, th.AcquireHost(context.Background(), 40))
	assert.Equal(t, int64(90), th.HostUsage())

	assert.False(t, th.TryAcquireHost(20))
	assert.Equal(t, int64(90), th.HostUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.AcquireHost(ctx, 20), context.DeadlineExceeded)

	th.ReleaseHost(50)
	assert.Equal(t, int64(40), th.HostUsage())

	require.NoError(t, th.AcquireHost(context.Background(), 20))
	assert.Equal(t, int64(60), th.HostUsage())
}

func TestThrottle_OversizedReservationTakesWholeLimit(t *testing.T) {
	th := NewThrottle(ThrottleConfig{HostMemoryLimitBytes: 100})

	require.NoError(t, th.AcquireHost(context.Background(), 500))
	assert.Equal(t, int64(100), th.HostUsage())
	assert.False(t, th.TryAcquireHost(1))

	th.ReleaseHost(500)
	assert.Zero(t, th.HostUsage())
}

func TestThrottle_UnlimitedHostMemory(t *testing.T) {
	th := NewThrottle(ThrottleConfig{})

	require.NoError(t, th.AcquireHost(context.Background(), 1000))
	assert.Equal(t, int64(1000), th.HostUsage())

	th.ReleaseHost(500)
	assert.Equal(t, int64(500), th.HostUsage())
}

func TestThrottle_Reads(t *testing.T) {
	th := NewThrottle(ThrottleConfig{MaxConcurrentReads: 2})

	require.NoError(t, th.AcquireRead(context.Background()))
	require.NoError(t, th.AcquireRead(context.Background()))
	assert.False(t, th.TryAcquireRead())

	th.ReleaseRead()
	assert.True(t, th.TryAcquireRead())
}

func TestThrottle_Nil(t *testing.T) {
	var th *Throttle

	require.NoError(t, th.AcquireRead(context.Background()))
	th.ReleaseRead()
	require.NoError(t, th.AcquireHost(context.Background(), 10))
	th.ReleaseHost(10)
	require.NoError(t, th.AcquireIO(context.Background(), 1<<20))
	assert.False(t, th.Limited())
	assert.Zero(t, th.HostUsage())
}

func TestThrottle_IOLargerThanBurst(t *testing.T) {
	th := NewThrottle(ThrottleConfig{IOLimitBytesPerSec: 1 << 20})
	assert.True(t, th.Limited())

	// 1.5 bursts: the first burst is free, the rest waits about half a second.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.AcquireIO(ctx, 3<<19))
}

func TestThrottle_IOCanceled(t *testing.T) {
	th := NewThrottle(ThrottleConfig{IOLimitBytesPerSec: 10})
	require.NoError(t, th.AcquireIO(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.AcquireIO(ctx, 10))
}

func TestRateLimitedReaderWriter(t *testing.T) {
	th := NewThrottle(ThrottleConfig{IOLimitBytesPerSec: 1 << 20})
	data := bytes.Repeat([]byte{7}, 4096)

	got, err := io.ReadAll(NewRateLimitedReader(context.Background(), bytes.NewReader(data), th))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	var buf bytes.Buffer
	n, err := NewRateLimitedWriter(context.Background(), &buf, th).Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf.Bytes())
}
