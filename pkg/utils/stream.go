package utils

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// ChunkWriter writes raw text fragments to a chunked response, flushing
// after each one so the client can render them as they arrive.
type ChunkWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	delay   time.Duration
	written int
}

// NewChunkWriter 设置纯文本流式响应头。delay 为两个片段之间的停顿。
func NewChunkWriter(w http.ResponseWriter, delay time.Duration) (*ChunkWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	return &ChunkWriter{w: w, flusher: flusher, delay: delay}, nil
}

// Write sends one fragment. It honours ctx while pausing between fragments.
func (c *ChunkWriter) Write(ctx context.Context, fragment string) error {
	if fragment == "" {
		return nil
	}

	if c.written > 0 && c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if _, err := c.w.Write([]byte(fragment)); err != nil {
		return err
	}
	c.flusher.Flush()
	c.written++
	return nil
}

// Started reports whether any fragment reached the client.
func (c *ChunkWriter) Started() bool {
	return c.written > 0
}
