package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// Still 把一张固定图片当作立即就绪的采集流。
type Still struct {
	Data   []byte
	Format string
}

// NewStillFromFile 从图片文件创建 Still 设备
func NewStillFromFile(path string) (Still, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Still{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "jpg" {
		format = "jpeg"
	}
	return Still{Data: data, Format: format}, nil
}

// Open implements Device.
func (s Still) Open(context.Context) (Stream, error) {
	if len(s.Data) == 0 {
		return nil, ErrDeviceNotFound
	}
	st := newSlot()
	st.publish(video.Frame{Data: s.Data, Format: s.Format, CapturedAt: time.Now()})
	return &stillStream{slot: st}, nil
}

type stillStream struct {
	*slot
}

func (s *stillStream) Close() error {
	s.fail(ErrStreamEnded)
	return nil
}
