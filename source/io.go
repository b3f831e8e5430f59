package source

import (
	"context"
	"io"
)

// RateLimitedReader wraps an io.Reader with the Throttle's IO limit.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	t   *Throttle
}

// NewRateLimitedReader creates a new RateLimitedReader.
func NewRateLimitedReader(ctx context.Context, r io.Reader, t *Throttle) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, t: t}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	// Reads are capped at the burst so each one waits for at most one bucket.
	if r.t.Limited() {
		if burst := r.t.ioLimiter.Burst(); len(p) > burst {
			p = p[:burst]
		}
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.t.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// RateLimitedWriter wraps an io.Writer with the Throttle's IO limit.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	t   *Throttle
}

// NewRateLimitedWriter creates a new RateLimitedWriter.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, t *Throttle) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, t: t}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.t.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
