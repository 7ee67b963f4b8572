package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/client/camera"
	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

type result struct {
	label emotion.Label
	found bool
	err   error
}

// fakeDetector answers each call with the next value sent on results.
type fakeDetector struct {
	ready   bool
	calls   chan video.Frame
	results chan result
}

func newDetector() *fakeDetector {
	return &fakeDetector{ready: true, calls: make(chan video.Frame, 16), results: make(chan result, 16)}
}

func (d *fakeDetector) Ready() bool { return d.ready }

func (d *fakeDetector) DetectDominantExpression(ctx context.Context, frame video.Frame) (emotion.Label, bool, error) {
	d.calls <- frame
	select {
	case r := <-d.results:
		return r.label, r.found, r.err
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
	new chan *fakeTicker
}

func newTickers() *tickers {
	return &tickers{new: make(chan *fakeTicker, 4)}
}

func (ts *tickers) factory(time.Duration) Ticker {
	tk := &fakeTicker{ch: make(chan time.Time)}
	ts.mu.Lock()
	ts.all = append(ts.all, tk)
	ts.mu.Unlock()
	ts.new <- tk
	return tk
}

func (ts *tickers) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-ts.new:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker was started")
		return nil
	}
}

func (ts *tickers) active() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, tk := range ts.all {
		if !tk.isStopped() {
			n++
		}
	}
	return n
}

type failingDevice struct{ err error }

func (f failingDevice) Open(context.Context) (camera.Stream, error) { return nil, f.err }

type silentStream struct{}

func (silentStream) WaitReady(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (silentStream) Latest() (video.Frame, bool) { return video.Frame{}, false }
func (silentStream) Close() error                { return nil }

type silentDevice struct{}

func (silentDevice) Open(context.Context) (camera.Stream, error) { return silentStream{}, nil }

var errBusy = errors.New("device or resource busy")

// exclusiveDevice allows one open stream at a time, like a v4l2 node.
type exclusiveDevice struct {
	mu     sync.Mutex
	open   bool
	opens  int
	failAt int
}

func (d *exclusiveDevice) Open(ctx context.Context) (camera.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, errBusy
	}
	d.opens++
	if d.failAt > 0 && d.opens == d.failAt {
		return nil, camera.ErrDeviceNotFound
	}
	st, err := still.Open(ctx)
	if err != nil {
		return nil, err
	}
	d.open = true
	return &exclusiveStream{Stream: st, dev: d}, nil
}

func (d *exclusiveDevice) isOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type exclusiveStream struct {
	camera.Stream
	dev *exclusiveDevice
}

func (s *exclusiveStream) Close() error {
	s.dev.mu.Lock()
	s.dev.open = false
	s.dev.mu.Unlock()
	return s.Stream.Close()
}

var still = camera.Still{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Format: "jpeg"}

func setup(t *testing.T, detector Detector, device camera.Device) (*Sampler, *state.Store, *tickers) {
	t.Helper()
	store := state.New()
	ts := newTickers()
	s := New(detector, device, store.EmotionCell(), store.CameraSwitch(), Options{
		Interval:  time.Millisecond,
		NewTicker: ts.factory,
	})
	t.Cleanup(func() { s.Close() })
	return s, store, ts
}

func waitForEmotion(t *testing.T, store *state.Store, want emotion.Label) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for store.Emotion() != want {
		if time.Now().After(deadline) {
			t.Fatalf("emotion stayed %s, want %s", store.Emotion(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEnableCameraRequiresModels(t *testing.T) {
	det := newDetector()
	det.ready = false
	s, store, _ := setup(t, det, still)

	if err := s.EnableCamera(context.Background()); !errors.Is(err, ErrModelsNotReady) {
		t.Fatalf("expected ErrModelsNotReady, got %v", err)
	}
	if store.Camera() != state.CameraOff {
		t.Fatalf("camera should stay off, got %s", store.Camera())
	}
}

func TestEnableCameraDeviceFailureRevertsToOff(t *testing.T) {
	s, store, ts := setup(t, newDetector(), failingDevice{err: camera.ErrPermissionDenied})

	if err := s.EnableCamera(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if store.Camera() != state.CameraOff {
		t.Fatalf("expected camera off, got %s", store.Camera())
	}
	if ts.active() != 0 {
		t.Fatal("no timer may start after a capture failure")
	}
}

func TestEnableCameraNoFirstFrame(t *testing.T) {
	s, store, _ := setup(t, newDetector(), silentDevice{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.EnableCamera(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if store.Camera() != state.CameraOff {
		t.Fatalf("expected camera off, got %s", store.Camera())
	}
}

func TestSamplingWritesDetectedLabel(t *testing.T) {
	det := newDetector()
	s, store, ts := setup(t, det, still)

	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("EnableCamera: %v", err)
	}
	if store.Camera() != state.CameraOn {
		t.Fatalf("expected camera on, got %s", store.Camera())
	}

	tk := ts.next(t)
	det.results <- result{label: emotion.Happy, found: true}
	tk.ch <- time.Now()
	waitForEmotion(t, store, emotion.Happy)
}

func TestInferenceErrorAndNoFaceSkipTick(t *testing.T) {
	det := newDetector()
	s, store, ts := setup(t, det, still)
	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("EnableCamera: %v", err)
	}
	tk := ts.next(t)

	det.results <- result{err: errors.New("runtime hiccup")}
	tk.ch <- time.Now()
	<-det.calls

	det.results <- result{found: false}
	tk.ch <- time.Now()
	<-det.calls

	det.results <- result{label: emotion.Surprised, found: true}
	tk.ch <- time.Now()
	waitForEmotion(t, store, emotion.Surprised)
}

func TestOverlappingInferencesLastCompletionWins(t *testing.T) {
	det := newDetector()
	s, store, ts := setup(t, det, still)
	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("EnableCamera: %v", err)
	}
	tk := ts.next(t)

	// Two ticks, both inferences blocked on results.
	tk.ch <- time.Now()
	<-det.calls
	tk.ch <- time.Now()
	<-det.calls

	det.results <- result{label: emotion.Sad, found: true}
	waitForEmotion(t, store, emotion.Sad)
	det.results <- result{label: emotion.Angry, found: true}
	waitForEmotion(t, store, emotion.Angry)
}

func TestEnableTwiceKeepsOneTimer(t *testing.T) {
	det := newDetector()
	s, store, ts := setup(t, det, still)

	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("first EnableCamera: %v", err)
	}
	first := ts.next(t)
	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("second EnableCamera: %v", err)
	}
	second := ts.next(t)

	if !first.isStopped() {
		t.Fatal("first timer must be stopped")
	}
	if ts.active() != 1 {
		t.Fatalf("expected exactly one active timer, got %d", ts.active())
	}
	if store.Camera() != state.CameraOn {
		t.Fatalf("expected camera on, got %s", store.Camera())
	}

	det.results <- result{label: emotion.Fearful, found: true}
	second.ch <- time.Now()
	<-det.calls
	select {
	case <-det.calls:
		t.Fatal("one tick must run exactly one inference")
	case <-time.After(20 * time.Millisecond):
	}
	waitForEmotion(t, store, emotion.Fearful)
}

func TestEnableTwiceOnExclusiveDevice(t *testing.T) {
	det := newDetector()
	dev := &exclusiveDevice{}
	s, store, ts := setup(t, det, dev)

	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("first EnableCamera: %v", err)
	}
	first := ts.next(t)
	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("second EnableCamera: %v", err)
	}
	second := ts.next(t)

	if !first.isStopped() || second.isStopped() {
		t.Fatal("the replacement loop must own the only live timer")
	}
	if store.Camera() != state.CameraOn {
		t.Fatalf("expected camera on, got %s", store.Camera())
	}

	det.results <- result{label: emotion.Happy, found: true}
	second.ch <- time.Now()
	waitForEmotion(t, store, emotion.Happy)
}

func TestFailedReEnableReleasesCamera(t *testing.T) {
	dev := &exclusiveDevice{failAt: 2}
	s, store, ts := setup(t, newDetector(), dev)

	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("first EnableCamera: %v", err)
	}
	first := ts.next(t)

	if err := s.EnableCamera(context.Background()); !errors.Is(err, camera.ErrDeviceNotFound) {
		t.Fatalf("expected device error, got %v", err)
	}
	if !first.isStopped() || ts.active() != 0 {
		t.Fatal("no timer may survive a failed re-enable")
	}
	if dev.isOpen() {
		t.Fatal("the old capture must be released")
	}
	if store.Camera() != state.CameraOff {
		t.Fatalf("expected camera off, got %s", store.Camera())
	}
}

func TestCloseStopsSampling(t *testing.T) {
	s, store, ts := setup(t, newDetector(), still)
	if err := s.EnableCamera(context.Background()); err != nil {
		t.Fatalf("EnableCamera: %v", err)
	}
	tk := ts.next(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !tk.isStopped() {
		t.Fatal("Close must stop the timer")
	}
	if store.Camera() != state.CameraOff {
		t.Fatalf("expected camera off after Close, got %s", store.Camera())
	}
	if err := s.EnableCamera(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
