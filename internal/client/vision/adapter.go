// Package vision wraps the face and expression networks behind a small
// adapter: load the weights once, then map a frame to its dominant
// expression.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// ErrNotReady 表示 LoadModels 尚未成功。
var ErrNotReady = errors.New("vision models not loaded")

// Face is one detection: how confident the detector is that this is a face,
// and the expression distribution for it.
type Face struct {
	Score       float64
	Expressions map[emotion.Label]float64
}

// Net is the inference runtime.
type Net interface {
	Load(ctx context.Context, art Artifact) error
	Detect(ctx context.Context, frame video.Frame) ([]Face, error)
}

// ModelSet 由需要另一组权重的 Net 实现；未实现时加载 ModelNames。
type ModelSet interface {
	Models() []string
}

// Adapter is safe for concurrent use.
type Adapter struct {
	net    Net
	assets AssetSource

	once    sync.Once
	loadErr error
	ready   atomic.Bool
}

// NewAdapter creates an adapter that loads weights from assets into net.
func NewAdapter(net Net, assets AssetSource) *Adapter {
	return &Adapter{net: net, assets: assets}
}

// LoadModels 并发拉取并加载所有网络。只有第一次调用真正执行，之后的调用都返回第一次的结果。
func (a *Adapter) LoadModels(ctx context.Context) error {
	a.once.Do(func() {
		a.loadErr = a.load(ctx)
		if a.loadErr != nil {
			log.Printf("[vision] model load failed: %v", a.loadErr)
			return
		}
		a.ready.Store(true)
		log.Printf("[vision] %d models loaded", len(a.models()))
	})
	return a.loadErr
}

func (a *Adapter) load(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for _, name := range a.models() {
		name := name
		p.Go(func(ctx context.Context) error {
			art, err := FetchArtifact(ctx, a.assets, name)
			if err != nil {
				return err
			}
			if err := a.net.Load(ctx, art); err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			return nil
		})
	}
	return p.Wait()
}

func (a *Adapter) models() []string {
	if set, ok := a.net.(ModelSet); ok {
		return set.Models()
	}
	return ModelNames
}

// Ready 表示 LoadModels 是否成功
func (a *Adapter) Ready() bool {
	return a.ready.Load()
}

// DetectDominantExpression returns the dominant expression of the most
// confident face in frame. ok is false when no face was found.
func (a *Adapter) DetectDominantExpression(ctx context.Context, frame video.Frame) (label emotion.Label, ok bool, err error) {
	if !a.Ready() {
		return "", false, ErrNotReady
	}

	faces, err := a.net.Detect(ctx, frame)
	if err != nil {
		return "", false, fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 {
		return "", false, nil
	}

	best := faces[0]
	for _, face := range faces[1:] {
		if face.Score > best.Score {
			best = face
		}
	}

	label, ok = emotion.Dominant(best.Expressions)
	return label, ok, nil
}
