package resource

import (
	"context"
	"io"
)

// RateLimitedReader throttles an io.Reader through a Controller.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader wraps r. The context bounds every wait.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

// Read waits for len(p) bytes of budget before reading.
func (r *RateLimitedReader) Read(p []byte) (int, error) {
	if err := r.rc.WaitIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// ReadSection reads length bytes at off from src, throttled by rc.
func ReadSection(ctx context.Context, src io.ReaderAt, off, length int64, rc *Controller) ([]byte, error) {
	buf := make([]byte, length)
	r := NewRateLimitedReader(ctx, io.NewSectionReader(src, off, length), rc)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
