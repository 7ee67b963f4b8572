package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// FFmpeg 通过运行 ffmpeg 从本地视频设备采集，并从其 stdout 读取 MJPEG。
type FFmpeg struct {
	Binary string
	Device string
	Format string
	FPS    int
}

// Open checks the device, starts ffmpeg and returns immediately; the first
// frame is awaited with WaitReady.
func (f FFmpeg) Open(_ context.Context) (Stream, error) {
	if _, err := os.Stat(f.Device); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, f.Device)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, f.Device)
		default:
			return nil, err
		}
	}
	dev, err := os.Open(f.Device)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, f.Device)
		}
		return nil, err
	}
	dev.Close()

	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, f.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	log.Printf("[camera] capturing %s via %s (pid %d)", f.Device, binary, cmd.Process.Pid)

	s := &ffmpegStream{slot: newSlot(), cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes+len(jpegSOI))
		scanner.Split(splitJPEG)
		for scanner.Scan() {
			data := append([]byte(nil), scanner.Bytes()...)
			s.publish(video.Frame{Data: data, Format: "jpeg", CapturedAt: time.Now()})
		}
		scanErr := scanner.Err()

		waitErr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			s.fail(ErrStreamEnded)
		case scanErr != nil:
			s.fail(fmt.Errorf("read frames: %w", scanErr))
		case waitErr != nil:
			s.fail(fmt.Errorf("%s exited: %w: %s", binary, waitErr, strings.TrimSpace(stderr.String())))
		default:
			s.fail(ErrStreamEnded)
		}
		if drops := s.drops.Load(); drops > 0 {
			log.Printf("[camera] %s closed, %d frames overwritten before being read", f.Device, drops)
		}
	}()

	return s, nil
}

func (f FFmpeg) args() []string {
	format := f.Format
	if format == "" {
		format = "v4l2"
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-f", format, "-i", f.Device, "-an"}
	if f.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(f.FPS))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1")
}

type ffmpegStream struct {
	*slot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Close 停止 ffmpeg 并等待读取协程退出。
func (s *ffmpegStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
