package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/zhouzirui/moodtutor/internal/client/camera"
	"github.com/zhouzirui/moodtutor/internal/client/chat"
	"github.com/zhouzirui/moodtutor/internal/client/sampler"
	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/client/upload"
	"github.com/zhouzirui/moodtutor/internal/client/vision"
	"github.com/zhouzirui/moodtutor/internal/config"
)

// app 围绕同一个 store 组装客户端组件，每个写入句柄在这里只交给一个所有者。
type app struct {
	store    *state.Store
	chat     *chat.Controller
	uploader *upload.Uploader
	vision   *vision.Adapter
	sampler  *sampler.Sampler
}

func newApp(cfg *config.ClientConfig) (*app, error) {
	store := state.New()
	client := &http.Client{}

	transport, err := newTransport(cfg.Backend, client)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:    store,
		chat:     chat.NewController(store.ChatLog(), store.LevelSelector(), transport),
		uploader: upload.New(cfg.Backend.URL, client, store.UploadSlot()),
	}

	assets, err := vision.NewAssetSource(cfg.Vision.ModelsURL, client)
	if err != nil {
		// Camera features stay unavailable; chat and upload still work.
		log.Printf("[tutor] model assets unavailable: %v", err)
		store.ModelsFlag().Set(state.ModelsFailed)
		return a, nil
	}
	a.vision = vision.NewAdapter(newNet(cfg.Vision, client), assets)

	device, err := newDevice(cfg.Camera)
	if err != nil {
		log.Printf("[tutor] camera unavailable: %v", err)
		return a, nil
	}
	a.sampler = sampler.New(a.vision, device, store.EmotionCell(), store.CameraSwitch(), sampler.Options{
		Interval: cfg.Vision.SampleInterval,
	})
	return a, nil
}

func newTransport(cfg config.BackendConfig, client *http.Client) (chat.Transport, error) {
	switch cfg.Transport {
	case "ws":
		return chat.NewWSTransport(cfg.URL, nil)
	case "http", "":
		return chat.NewHTTPTransport(cfg.URL, client), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newNet(cfg config.VisionConfig, client *http.Client) vision.Net {
	if cfg.Backend == "remote" {
		return vision.NewRemoteNet(cfg.RuntimeURL, client)
	}
	return vision.NewLocalNet()
}

func newDevice(cfg config.CameraConfig) (camera.Device, error) {
	if cfg.StillImage != "" {
		return camera.NewStillFromFile(cfg.StillImage)
	}
	return camera.FFmpeg{
		Binary: cfg.FFmpeg,
		Device: cfg.Device,
		Format: cfg.Format,
		FPS:    cfg.FPS,
	}, nil
}

// loadModels 执行一次性模型加载并记录结果
func (a *app) loadModels(ctx context.Context) {
	if a.vision == nil {
		return
	}
	flag := a.store.ModelsFlag()
	if err := a.vision.LoadModels(ctx); err != nil {
		flag.Set(state.ModelsFailed)
		return
	}
	flag.Set(state.ModelsReady)
}

func (a *app) close() {
	if a.sampler != nil {
		a.sampler.Close()
	}
}
