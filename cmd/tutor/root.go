package main

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/moodtutor/internal/client/tui"
	"github.com/zhouzirui/moodtutor/internal/config"
)

var (
	configPath string
	backendURL string
	transport  string
	modelsURL  string
	visionMode string
	stillImage string
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tutor",
	Short: "Emotion-aware tutoring chat in the terminal",
	Long: `tutor is a terminal client for the moodtutor backend. Each question is
sent with your skill level and the facial expression sampled from your camera,
and the answer streams in as it is generated.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logFile, err := tea.LogToFile(cfg.LogFile, "tutor")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		go a.loadModels(ctx)

		deps := tui.Deps{Store: a.store, Chat: a.chat, Upload: a.uploader}
		if a.sampler != nil {
			deps.Camera = a.sampler
		}
		return tui.Run(ctx, deps)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file (env TUTOR_* overrides it)")
	flags.StringVar(&backendURL, "backend", "", "tutoring backend base URL")
	flags.StringVar(&transport, "transport", "", "answer transport: http or ws")
	flags.StringVar(&modelsURL, "models", "", "directory or URL holding the vision model weights")
	flags.StringVar(&visionMode, "vision", "", "inference backend: local or remote")
	flags.StringVar(&stillImage, "still", "", "use this image instead of a live camera")
	flags.DurationVar(&interval, "interval", 0, "emotion sampling period")
}

// loadConfig reads .env, then the config file and TUTOR_* variables, then
// applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[tutor] no .env file loaded: %v", err)
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend.URL = backendURL
	}
	if flags.Changed("transport") {
		cfg.Backend.Transport = transport
	}
	if flags.Changed("models") {
		cfg.Vision.ModelsURL = modelsURL
	}
	if flags.Changed("vision") {
		cfg.Vision.Backend = visionMode
	}
	if flags.Changed("still") {
		cfg.Camera.StillImage = stillImage
	}
	if flags.Changed("interval") {
		cfg.Vision.SampleInterval = interval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
