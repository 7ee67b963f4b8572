// Package camera opens video-only capture streams. A stream keeps only the
// most recent frame: readers always see the newest picture and a slow
// reader never builds a backlog.
package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/moodtutor/internal/model/video"
)

var (
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrStreamEnded      = errors.New("capture stream ended")
)

// Device 打开一个采集流
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture.
type Stream interface {
	// WaitReady blocks until the first frame arrives, the stream fails, or
	// ctx is done.
	WaitReady(ctx context.Context) error
	// Latest returns the newest frame, if any has arrived.
	Latest() (video.Frame, bool)
	Close() error
}

// slot 只保存最新一帧：publish 覆盖旧帧，不排队。
type slot struct {
	mu     sync.Mutex
	frame  video.Frame
	filled bool
	seq    uint64
	drops  atomic.Uint64

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	err       error
}

func newSlot() *slot {
	return &slot{ready: make(chan struct{}), done: make(chan struct{})}
}

func (s *slot) publish(frame video.Frame) {
	s.mu.Lock()
	if s.filled {
		s.drops.Add(1)
	}
	s.seq++
	frame.Seq = s.seq
	s.frame = frame
	s.filled = true
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

// Latest returns the newest frame. Reading does not consume it.
func (s *slot) Latest() (video.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.filled
}

// fail 以 err 结束流，只有第一次调用生效。
func (s *slot) fail(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *slot) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return s.err
		}
		return ErrStreamEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}
