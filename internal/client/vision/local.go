package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"

	pigo "github.com/esimov/pigo/core"
	"github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"gorgonia.org/tensor"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// LocalNet 需要的两份权重。
const (
	FaceDetectorModel = "face_detector"
	ExpressionModel   = "face_expression"
)

// expressionInputSize 是表情模型的输入边长（1x1x64x64 灰度）。
const expressionInputSize = 64

var errUnknownModel = errors.New("unknown model")

// ferplusLabels 按 FER+ 模型的输出顺序排列，contempt 没有对应标签。
var ferplusLabels = []emotion.Label{
	emotion.Neutral,
	emotion.Happy,
	emotion.Surprised,
	emotion.Sad,
	emotion.Angry,
	emotion.Disgusted,
	emotion.Fearful,
	"", // contempt
}

// LocalNet 在进程内推理：pigo 级联定位人脸，onnx-go 运行 FER+ 表情分类模型。
// 只对置信度最高的人脸做表情分类，所以 Detect 至多返回一张脸。
type LocalNet struct {
	// MinFaceSize 是级联搜索的最小人脸边长（像素）。
	MinFaceSize int
	// MinQuality 低于该检测分数的候选框被丢弃。
	MinQuality float32

	mu      sync.RWMutex
	cascade *pigo.Pigo
	model   *onnx.Model
	graph   *gorgonnx.Graph

	// gorgonnx 的图不能并发执行
	runMu sync.Mutex
}

// NewLocalNet 创建使用默认阈值的本地推理网络。
func NewLocalNet() *LocalNet {
	return &LocalNet{MinFaceSize: 40, MinQuality: 5}
}

// Models implements ModelSet.
func (n *LocalNet) Models() []string {
	return []string{FaceDetectorModel, ExpressionModel}
}

// Load 解析一份权重。每个模型的 manifest 只能列出一个文件。
func (n *LocalNet) Load(_ context.Context, art Artifact) error {
	data, err := singleShard(art)
	if err != nil {
		return err
	}

	switch art.Name {
	case FaceDetectorModel:
		cascade, err := unpackCascade(data)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.cascade = cascade
		n.mu.Unlock()
	case ExpressionModel:
		graph := gorgonnx.NewGraph()
		model := onnx.NewModel(graph)
		if err := model.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("decode expression model: %w", err)
		}
		n.mu.Lock()
		n.model, n.graph = model, graph
		n.mu.Unlock()
	default:
		return fmt.Errorf("%w: %s", errUnknownModel, art.Name)
	}
	return nil
}

func singleShard(art Artifact) ([]byte, error) {
	if len(art.Shards) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one weights file, got %d", art.Name, len(art.Shards))
	}
	for _, data := range art.Shards {
		return data, nil
	}
	return nil, nil
}

// unpackCascade 把 pigo 在截断数据上的 panic 转成错误。
func unpackCascade(data []byte) (cascade *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unpack face cascade: %v", r)
		}
	}()
	cascade, err = pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return cascade, nil
}

// Detect implements Net.
func (n *LocalNet) Detect(ctx context.Context, frame video.Frame) ([]Face, error) {
	n.mu.RLock()
	cascade, model, graph := n.cascade, n.model, n.graph
	n.mu.RUnlock()
	if cascade == nil || model == nil {
		return nil, ErrNotReady
	}

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", frame.Seq, err)
	}
	bounds := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	cols, rows := bounds.Dx(), bounds.Dy()
	gray := pigo.RgbToGrayscale(rgba)
	params := pigo.CascadeParams{
		MinSize:     n.MinFaceSize,
		MaxSize:     max(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: gray,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := cascade.RunCascade(params, 0.0)
	dets = cascade.ClusterDetections(dets, 0.2)

	best, ok := bestDetection(dets, n.MinQuality)
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := n.classify(model, graph, cropFace(gray, cols, rows, best))
	if err != nil {
		return nil, err
	}
	return []Face{{Score: float64(best.Q), Expressions: scores}}, nil
}

func (n *LocalNet) classify(model *onnx.Model, graph *gorgonnx.Graph, pixels []float32) (map[emotion.Label]float64, error) {
	input := tensor.New(
		tensor.WithShape(1, 1, expressionInputSize, expressionInputSize),
		tensor.WithBacking(pixels),
	)

	n.runMu.Lock()
	defer n.runMu.Unlock()

	if err := model.SetInput(0, input); err != nil {
		return nil, fmt.Errorf("set expression input: %w", err)
	}
	if err := graph.Run(); err != nil {
		return nil, fmt.Errorf("run expression model: %w", err)
	}
	outputs, err := model.GetOutputTensors()
	if err != nil {
		return nil, fmt.Errorf("read expression output: %w", err)
	}
	if len(outputs) == 0 {
		return nil, errors.New("expression model produced no output")
	}
	raw, ok := outputs[0].Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected expression output type %T", outputs[0].Data())
	}
	return expressionScores(raw), nil
}

// bestDetection 返回分数最高且不低于 minQuality 的候选框。
func bestDetection(dets []pigo.Detection, minQuality float32) (pigo.Detection, bool) {
	var best pigo.Detection
	found := false
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		if !found || det.Q > best.Q {
			best, found = det, true
		}
	}
	return best, found
}

// cropFace 以检测框中心为准最近邻采样出 64x64 的灰度输入，超出画面的部分取边缘像素。
func cropFace(gray []uint8, cols, rows int, det pigo.Detection) []float32 {
	side := det.Scale
	if side < 1 {
		side = 1
	}
	top, left := det.Row-side/2, det.Col-side/2

	out := make([]float32, expressionInputSize*expressionInputSize)
	for y := 0; y < expressionInputSize; y++ {
		sy := clamp(top+y*side/expressionInputSize, 0, rows-1)
		for x := 0; x < expressionInputSize; x++ {
			sx := clamp(left+x*side/expressionInputSize, 0, cols-1)
			out[y*expressionInputSize+x] = float32(gray[sy*cols+sx])
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// expressionScores 对模型原始输出做 softmax 并映射到表情标签。
func expressionScores(raw []float32) map[emotion.Label]float64 {
	n := min(len(raw), len(ferplusLabels))
	if n == 0 {
		return nil
	}

	peak := math.Inf(-1)
	for _, v := range raw[:n] {
		peak = math.Max(peak, float64(v))
	}
	sum := 0.0
	exp := make([]float64, n)
	for i, v := range raw[:n] {
		exp[i] = math.Exp(float64(v) - peak)
		sum += exp[i]
	}

	scores := make(map[emotion.Label]float64, n)
	for i := 0; i < n; i++ {
		if label := ferplusLabels[i]; label != "" {
			scores[label] = exp[i] / sum
		}
	}
	return scores
}
