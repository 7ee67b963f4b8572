package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"testing/iotest"
	"time"

	"github.com/zhouzirui/moodtutor/internal/model/video"
)

func fakeJPEG(payload string) []byte {
	out := append([]byte{}, jpegSOI...)
	out = append(out, payload...)
	return append(out, jpegEOI...)
}

func scanAll(t *testing.T, data []byte, oneByte bool) [][]byte {
	t.Helper()
	var r = bytes.NewReader(data)
	scanner := bufio.NewScanner(r)
	if oneByte {
		scanner = bufio.NewScanner(iotest.OneByteReader(r))
	}
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan err: %v", err)
	}
	return frames
}

func TestSplitJPEGStream(t *testing.T) {
	var stream []byte
	stream = append(stream, "garbage"...)
	stream = append(stream, fakeJPEG("one")...)
	stream = append(stream, fakeJPEG("two")...)
	stream = append(stream, 0xFF, 0xD8, 'x') // truncated tail

	for _, oneByte := range []bool{false, true} {
		frames := scanAll(t, stream, oneByte)
		if len(frames) != 2 {
			t.Fatalf("oneByte=%v: expected 2 frames, got %d", oneByte, len(frames))
		}
		if !bytes.Equal(frames[0], fakeJPEG("one")) || !bytes.Equal(frames[1], fakeJPEG("two")) {
			t.Fatalf("oneByte=%v: unexpected frames %q", oneByte, frames)
		}
	}
}

func TestSlotKeepsOnlyNewestFrame(t *testing.T) {
	s := newSlot()
	if _, ok := s.Latest(); ok {
		t.Fatal("empty slot must report no frame")
	}

	s.publish(video.Frame{Data: []byte("a")})
	s.publish(video.Frame{Data: []byte("b")})
	s.publish(video.Frame{Data: []byte("c")})

	frame, ok := s.Latest()
	if !ok || string(frame.Data) != "c" || frame.Seq != 3 {
		t.Fatalf("unexpected latest frame %+v", frame)
	}
	if s.drops.Load() != 2 {
		t.Fatalf("expected 2 overwritten frames, got %d", s.drops.Load())
	}
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady after publish: %v", err)
	}
}

func TestSlotWaitReadyFailure(t *testing.T) {
	s := newSlot()
	boom := errors.New("device unplugged")
	s.fail(boom)
	s.fail(errors.New("second failure is ignored"))

	if err := s.WaitReady(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected first failure, got %v", err)
	}
}

func TestSlotWaitReadyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := newSlot().WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStillDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.JPG")
	if err := os.WriteFile(path, fakeJPEG("face"), 0o644); err != nil {
		t.Fatal(err)
	}
	dev, err := NewStillFromFile(path)
	if err != nil {
		t.Fatalf("NewStillFromFile: %v", err)
	}
	if dev.Format != "jpeg" {
		t.Fatalf("unexpected format %q", dev.Format)
	}

	stream, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()
	if err := stream.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	frame, ok := stream.Latest()
	if !ok || !bytes.Equal(frame.Data, fakeJPEG("face")) {
		t.Fatalf("unexpected frame %+v", frame)
	}

	if _, err := NewStillFromFile(filepath.Join(t.TempDir(), "missing.jpg")); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestFFmpegMissingDevice(t *testing.T) {
	dev := FFmpeg{Device: filepath.Join(t.TempDir(), "video9")}
	if _, err := dev.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

// writeScript installs a stand-in for ffmpeg that prints frames and idles.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFFmpegStreamDeliversFrames(t *testing.T) {
	dir := t.TempDir()
	framesPath := filepath.Join(dir, "frames.mjpeg")
	if err := os.WriteFile(framesPath, append(fakeJPEG("f1"), fakeJPEG("f2")...), 0o644); err != nil {
		t.Fatal(err)
	}
	device := filepath.Join(dir, "video0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	dev := FFmpeg{Binary: writeScript(t, "cat '"+framesPath+"'; exec sleep 30"), Device: device}
	stream, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		frame, _ := stream.Latest()
		if bytes.Equal(frame.Data, fakeJPEG("f2")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never saw the second frame, latest %q", frame.Data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFFmpegExitBeforeFirstFrame(t *testing.T) {
	device := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	dev := FFmpeg{Binary: writeScript(t, "echo 'cannot open device' >&2; exit 1"), Device: device}
	stream, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.WaitReady(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the process failure, got %v", err)
	}
}
