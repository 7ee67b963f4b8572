package vision

import (
	"context"
	"errors"
	"math"
	"testing"

	pigo "github.com/esimov/pigo/core"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

func TestLocalNetDetectBeforeLoad(t *testing.T) {
	net := NewLocalNet()
	if _, err := net.Detect(context.Background(), video.Frame{Data: []byte{0xFF, 0xD8}}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestLocalNetRejectsUnknownModel(t *testing.T) {
	net := NewLocalNet()
	err := net.Load(context.Background(), Artifact{Name: "ssd_mobilenetv1", Shards: map[string][]byte{"w": {1}}})
	if !errors.Is(err, errUnknownModel) {
		t.Fatalf("expected errUnknownModel, got %v", err)
	}
}

func TestLocalNetNeedsSingleWeightsFile(t *testing.T) {
	net := NewLocalNet()
	art := Artifact{Name: FaceDetectorModel, Shards: map[string][]byte{"a": {1}, "b": {2}}}
	if err := net.Load(context.Background(), art); err == nil {
		t.Fatal("expected an error for a split cascade")
	}
}

func TestLocalNetTruncatedCascade(t *testing.T) {
	net := NewLocalNet()
	art := Artifact{Name: FaceDetectorModel, Shards: map[string][]byte{"facefinder": {0x01, 0x02}}}
	if err := net.Load(context.Background(), art); err == nil {
		t.Fatal("expected an error for a truncated cascade")
	}
}

func TestAdapterLoadsLocalModelSet(t *testing.T) {
	net := &modelSetNet{}
	src, err := NewAssetSource(writeModelDir(t, FaceDetectorModel, ExpressionModel), nil)
	if err != nil {
		t.Fatalf("NewAssetSource: %v", err)
	}
	a := NewAdapter(net, src)
	if err := a.LoadModels(context.Background()); err != nil {
		t.Fatalf("LoadModels: %v", err)
	}
	if net.loadCount() != 2 {
		t.Fatalf("expected 2 artifacts, got %d", net.loadCount())
	}
}

type modelSetNet struct{ fakeNet }

func (*modelSetNet) Models() []string { return NewLocalNet().Models() }

func TestBestDetection(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 10, Col: 10, Scale: 40, Q: 6},
		{Row: 50, Col: 50, Scale: 60, Q: 12},
		{Row: 90, Col: 90, Scale: 30, Q: 2},
	}
	best, ok := bestDetection(dets, 5)
	if !ok || best.Q != 12 {
		t.Fatalf("expected the q=12 detection, got %+v (%v)", best, ok)
	}
	if _, ok := bestDetection(dets, 20); ok {
		t.Fatal("no detection clears q=20")
	}
}

func TestCropFaceSamplesAroundCentre(t *testing.T) {
	const cols, rows = 100, 80
	gray := make([]uint8, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			gray[y*cols+x] = uint8(x + y)
		}
	}

	out := cropFace(gray, cols, rows, pigo.Detection{Row: 40, Col: 50, Scale: 64})
	if len(out) != expressionInputSize*expressionInputSize {
		t.Fatalf("unexpected input size %d", len(out))
	}
	// 左上角对应 (row 8, col 18)
	if out[0] != float32(8+18) {
		t.Fatalf("unexpected top-left pixel %v", out[0])
	}

	// 贴边的检测框取边缘像素，不越界
	edge := cropFace(gray, cols, rows, pigo.Detection{Row: 0, Col: 0, Scale: 64})
	if edge[0] != 0 {
		t.Fatalf("expected clamped corner pixel, got %v", edge[0])
	}
}

func TestExpressionScores(t *testing.T) {
	scores := expressionScores([]float32{0.1, 4, 0.2, 0.3, 0.1, 0.0, 0.5, 3})
	if len(scores) != 7 {
		t.Fatalf("contempt must be dropped, got %d labels", len(scores))
	}
	label, ok := emotion.Dominant(scores)
	if !ok || label != emotion.Happy {
		t.Fatalf("expected happy, got %s", label)
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	if sum >= 1 || sum <= 0.5 || math.IsNaN(sum) {
		t.Fatalf("probabilities without contempt should sum below 1, got %v", sum)
	}
	if expressionScores(nil) != nil {
		t.Fatal("empty output yields no scores")
	}
}
