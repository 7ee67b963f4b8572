package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Knowledge KnowledgeConfig
	Redis     RedisConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	knowledge, err := loadKnowledgeConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Knowledge: knowledge, Redis: redis}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
	StreamDelay    time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	maxUploadMB, err := parseOptionalIntEnv("UPLOAD_MAX_MB")
	if err != nil {
		return ServerConfig{}, err
	}
	maxUpload := int64(32 << 20)
	if maxUploadMB != nil && *maxUploadMB > 0 {
		maxUpload = int64(*maxUploadMB) << 20
	}

	delayMS, err := parseOptionalIntEnv("ASK_STREAM_DELAY_MS")
	if err != nil {
		return ServerConfig{}, err
	}
	delay := 20 * time.Millisecond
	if delayMS != nil && *delayMS >= 0 {
		delay = time.Duration(*delayMS) * time.Millisecond
	}

	cfg := ServerConfig{MaxUploadBytes: maxUpload, StreamDelay: delay}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// AIConfig 描述大模型相关配置。Ark 优先，其次是 OpenAI 兼容接口。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// EmotionClassifier 为 true 时，用 Ark 模型推断缺失的情绪标签。
	EmotionClassifier bool
}

// Enabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled 表示是否配置了 OpenAI 兼容接口。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	classifier, err := parseOptionalBoolEnv("EMOTION_CLASSIFIER")
	if err != nil {
		return AIConfig{}, err
	}
	emotionClassifier := true
	if classifier != nil {
		emotionClassifier = *classifier
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),

		EmotionClassifier: emotionClassifier,
	}, nil
}

// KnowledgeConfig 描述上传文档的切分与检索参数。
type KnowledgeConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
	ContextTokens int
	TokenEncoding string
}

func loadKnowledgeConfig() (KnowledgeConfig, error) {
	cfg := KnowledgeConfig{
		ChunkSize:     1000,
		ChunkOverlap:  100,
		TopK:          3,
		ContextTokens: 1500,
		TokenEncoding: getEnvOrDefault("KNOWLEDGE_TOKEN_ENCODING", "cl100k_base"),
	}

	overrides := []struct {
		key    string
		target *int
		min    int
	}{
		{"KNOWLEDGE_CHUNK_SIZE", &cfg.ChunkSize, 1},
		{"KNOWLEDGE_CHUNK_OVERLAP", &cfg.ChunkOverlap, 0},
		{"KNOWLEDGE_TOP_K", &cfg.TopK, 1},
		{"KNOWLEDGE_CONTEXT_TOKENS", &cfg.ContextTokens, 1},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return KnowledgeConfig{}, err
		}
		if val == nil {
			continue
		}
		if *val < o.min {
			return KnowledgeConfig{}, fmt.Errorf("invalid %s value %d: must be >= %d", o.key, *val, o.min)
		}
		*o.target = *val
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return KnowledgeConfig{}, fmt.Errorf("KNOWLEDGE_CHUNK_OVERLAP (%d) must be smaller than KNOWLEDGE_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return cfg, nil
}

// RedisConfig 描述可选的 redis 文档存储。Addr 为空时使用内存存储。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled 表示是否配置了 redis。
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}

	cfg := RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if db != nil {
		cfg.DB = *db
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalBoolEnv(key string) (*bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
