package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ClientConfig 描述终端客户端的配置，可来自 YAML 文件并由 TUTOR_* 环境变量覆盖。
type ClientConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Vision  VisionConfig  `yaml:"vision"`
	Camera  CameraConfig  `yaml:"camera"`
	LogFile string        `yaml:"log_file" env:"TUTOR_LOG_FILE" env-default:"tutor.log"`
}

// BackendConfig points at the tutoring service.
type BackendConfig struct {
	URL       string `yaml:"url" env:"TUTOR_BACKEND_URL" env-default:"http://127.0.0.1:5000"`
	Transport string `yaml:"transport" env:"TUTOR_TRANSPORT" env-default:"http"`
}

// VisionConfig locates the model weights and picks the inference backend:
// "local" runs in process, "remote" delegates to RuntimeURL.
type VisionConfig struct {
	Backend        string        `yaml:"backend" env:"TUTOR_VISION_BACKEND" env-default:"local"`
	ModelsURL      string        `yaml:"models_url" env:"TUTOR_MODELS_URL" env-default:"./models"`
	RuntimeURL     string        `yaml:"runtime_url" env:"TUTOR_VISION_RUNTIME_URL" env-default:"http://127.0.0.1:8500"`
	SampleInterval time.Duration `yaml:"sample_interval" env:"TUTOR_SAMPLE_INTERVAL" env-default:"2s"`
}

// CameraConfig selects the capture source. StillImage, when set, replaces
// the live device with a fixed picture.
type CameraConfig struct {
	Device     string `yaml:"device" env:"TUTOR_CAMERA_DEVICE" env-default:"/dev/video0"`
	Format     string `yaml:"format" env:"TUTOR_CAMERA_FORMAT" env-default:"v4l2"`
	FFmpeg     string `yaml:"ffmpeg" env:"TUTOR_FFMPEG" env-default:"ffmpeg"`
	FPS        int    `yaml:"fps" env:"TUTOR_CAMERA_FPS" env-default:"5"`
	StillImage string `yaml:"still_image" env:"TUTOR_STILL_IMAGE"`
}

// LoadClient 读取客户端配置。path 为空时只读取环境变量。
func LoadClient(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values cleanenv cannot.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.Backend.URL)
	}
	switch c.Backend.Transport {
	case "http", "ws":
	default:
		return fmt.Errorf("invalid transport %q: want http or ws", c.Backend.Transport)
	}
	switch c.Vision.Backend {
	case "local", "remote":
	default:
		return fmt.Errorf("invalid vision backend %q: want local or remote", c.Vision.Backend)
	}
	if c.Vision.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %s", c.Vision.SampleInterval)
	}
	return nil
}
