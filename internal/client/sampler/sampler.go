// Package sampler periodically turns camera frames into the current
// emotion label.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/client/camera"
	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// DefaultInterval 默认采样周期
const DefaultInterval = 2000 * time.Millisecond

var (
	ErrModelsNotReady = errors.New("inference models are not ready")
	ErrClosed         = errors.New("sampler closed")
)

// Detector 把一帧映射为主导表情。
type Detector interface {
	Ready() bool
	DetectDominantExpression(ctx context.Context, frame video.Frame) (emotion.Label, bool, error)
}

// Ticker is the part of time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// Options tune a Sampler.
type Options struct {
	Interval  time.Duration
	NewTicker func(time.Duration) Ticker
}

// Sampler 持有情绪标签和摄像头状态。
type Sampler struct {
	detector Detector
	device   camera.Device
	cell     *state.EmotionCell
	camera   *state.CameraSwitch
	interval time.Duration
	ticker   func(time.Duration) Ticker

	enableMu sync.Mutex

	mu       sync.Mutex
	stream   camera.Stream
	stop     context.CancelFunc
	loopDone chan struct{}
	closed   bool

	inflight *conc.WaitGroup
}

// New 创建采样器，EnableCamera 成功前不做任何事。
func New(detector Detector, device camera.Device, cell *state.EmotionCell, cameraSwitch *state.CameraSwitch, opts Options) *Sampler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
	}
	return &Sampler{
		detector: detector,
		device:   device,
		cell:     cell,
		camera:   cameraSwitch,
		interval: interval,
		ticker:   newTicker,
		inflight: conc.NewWaitGroup(),
	}
}

// EnableCamera 打开采集，等待第一帧后开始采样。任何失败都会把摄像头状态退回 off
// 并返回错误，不做重试。采样中再次调用会先停掉旧循环并释放旧采集，再重新打开设备，
// 所以独占设备也能被替换，且任何时刻至多一个定时器。
func (s *Sampler) EnableCamera(ctx context.Context) error {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if !s.detector.Ready() {
		return ErrModelsNotReady
	}

	s.stopLoop()
	if err := s.camera.Advance(state.CameraStarting); err != nil {
		return err
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		s.camera.Abort()
		log.Printf("[sampler] capture failed: %v", err)
		return fmt.Errorf("open capture: %w", err)
	}
	if err := stream.WaitReady(ctx); err != nil {
		stream.Close()
		s.camera.Abort()
		log.Printf("[sampler] capture never produced a frame: %v", err)
		return fmt.Errorf("wait for first frame: %w", err)
	}

	if err := s.camera.Advance(state.CameraOn); err != nil {
		stream.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.stream = stream
	s.stop = cancel
	s.loopDone = done
	s.mu.Unlock()

	go s.loop(loopCtx, stream, done)
	log.Printf("[sampler] sampling every %s", s.interval)
	return nil
}

func (s *Sampler) loop(ctx context.Context, stream camera.Stream, done chan struct{}) {
	defer close(done)

	ticker := s.ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			frame, ok := stream.Latest()
			if !ok {
				continue
			}
			s.inflight.Go(func() { s.sample(ctx, frame) })
		}
	}
}

// sample 执行一次推理。推理可能重叠，最后完成的那次决定标签。
func (s *Sampler) sample(ctx context.Context, frame video.Frame) {
	label, found, err := s.detector.DetectDominantExpression(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[sampler] inference failed on frame %d: %v", frame.Seq, err)
		}
		return
	}
	if !found || ctx.Err() != nil {
		return
	}
	s.cell.Set(label)
}

// stopLoop cancels the running loop, waits for it to exit, releases its
// capture and turns the camera state back off.
func (s *Sampler) stopLoop() {
	s.mu.Lock()
	stop, done, stream := s.stop, s.loopDone, s.stream
	s.stop, s.loopDone, s.stream = nil, nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
	if err := stream.Close(); err != nil {
		log.Printf("[sampler] close capture: %v", err)
	}
	s.camera.Release()
}

func (s *Sampler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close 停止采样，等待进行中的推理结束并释放采集。
func (s *Sampler) Close() error {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopLoop()
	s.inflight.Wait()
	return nil
}
