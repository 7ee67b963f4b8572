package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/moodtutor/internal/analysis/emotion"
)

// Config 控制情绪推断服务的行为。
type Config struct {
	Enabled bool
}

// Guess 是从提问文字推断出的情绪。
type Guess struct {
	Label      analysis.Label
	Confidence float32
	Reason     string
}

// Service 在请求没有携带有效的表情标签时，根据提问文字推断学生情绪。
// 优先使用大模型分类，失败时回退到关键词启发式规则。
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(question string) analysis.Decision
}

// NewService 创建情绪推断服务。chatModel 为 nil 或未启用时只使用启发式规则。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		fallback: analysis.Analyze,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回是否启用了大模型分类。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Infer 推断提问者的情绪，结果一定是已知标签。
func (s *Service) Infer(ctx context.Context, question string) Guess {
	if !s.Enabled() {
		return s.fallbackGuess(question)
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"question": strings.TrimSpace(question),
	})
	if err != nil {
		log.Printf("[emotion] classifier invoke failed, use fallback: %v", err)
		return s.fallbackGuess(question)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackGuess(question)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[emotion] classifier output parse failed, use fallback: %v", err)
		return s.fallbackGuess(question)
	}

	label, ok := analysis.Parse(result.Emotion)
	if !ok {
		return s.fallbackGuess(question)
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Guess{
		Label:      label,
		Confidence: confidence,
		Reason:     strings.TrimSpace(result.Reason),
	}
}

func (s *Service) fallbackGuess(question string) Guess {
	decision := s.fallback(question)

	confidence := float32(0.3)
	if decision.Score > 0 {
		confidence = 0.55
	}

	return Guess{
		Label:      decision.Emotion,
		Confidence: confidence,
		Reason:     "fallback",
	}
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type classifierPayload struct {
	Emotion    string  `json:"emotion"`
	Confidence float32 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const classifierSystemPrompt = "You read a student's question to a tutor and guess the facial expression the student most likely shows while asking it. " +
	"Reply with one JSON object and nothing else: " +
	`{"emotion": one of neutral/happy/sad/angry/fearful/disgusted/surprised, "confidence": number between 0 and 1, "reason": short phrase}.`

const classifierUserPrompt = "Student question:\n{question}"
