package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/config"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
	emotionsvc "github.com/zhouzirui/moodtutor/internal/service/emotion"
)

// ErrNoProvider is returned when neither Ark nor OpenAI credentials are configured.
var ErrNoProvider = errors.New("no language model provider configured")

// Provider streams a completion for one system prompt and query.
// emit is called once per non-empty fragment, in order.
type Provider interface {
	Name() string
	Stream(ctx context.Context, system, query string, emit func(string) error) error
}

// ContextSource supplies grounding passages for a question.
type ContextSource interface {
	Context(ctx context.Context, query string) ([]string, error)
}

// EmotionGuesser infers an emotion from the question when the request has none.
type EmotionGuesser interface {
	Infer(ctx context.Context, question string) emotionsvc.Guess
}

// Service encapsulates the tutoring answer pipeline.
type Service struct {
	provider  Provider
	knowledge ContextSource
	prompts   *PromptBuilder
	emotions  EmotionGuesser
}

// NewService picks a provider from configuration, Ark first.
func NewService(ctx context.Context, cfg config.AIConfig, knowledge ContextSource) (*Service, error) {
	var (
		provider Provider
		err      error
	)
	switch {
	case cfg.Enabled():
		provider, err = newArkProvider(ctx, cfg)
	case cfg.OpenAIEnabled():
		provider = newOpenAIProvider(cfg)
	default:
		return nil, ErrNoProvider
	}
	if err != nil {
		return nil, err
	}

	svc := NewServiceWithProvider(provider, knowledge)
	if cfg.Enabled() && cfg.EmotionClassifier {
		guesser, err := newClassifier(ctx, cfg)
		if err != nil {
			log.Printf("[ai] emotion classifier unavailable, using keyword fallback: %v", err)
		} else {
			svc.emotions = guesser
		}
	}
	return svc, nil
}

func newClassifier(ctx context.Context, cfg config.AIConfig) (*emotionsvc.Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return emotionsvc.NewService(ctx, chatModel, emotionsvc.Config{Enabled: true})
}

// NewServiceWithProvider builds a service around an explicit provider.
// Missing emotions are guessed with the keyword heuristic.
func NewServiceWithProvider(provider Provider, knowledge ContextSource) *Service {
	heuristic, _ := emotionsvc.NewService(context.Background(), nil, emotionsvc.Config{})
	return &Service{
		provider:  provider,
		knowledge: knowledge,
		prompts:   NewPromptBuilder(),
		emotions:  heuristic,
	}
}

// SetEmotionGuesser replaces how missing emotions are inferred.
func (s *Service) SetEmotionGuesser(g EmotionGuesser) {
	s.emotions = g
}

// ProviderName reports which backend answers questions.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// StreamAnswer streams the tutor's answer to emit. A missing or unknown
// emotion is inferred from the question text.
func (s *Service) StreamAnswer(ctx context.Context, req chat.AskRequest, emit func(string) error) error {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return fmt.Errorf("question is required")
	}

	level, err := chat.ParseLevel(string(req.Level))
	if err != nil {
		level = chat.Beginner
	}

	label, ok := emotion.Parse(string(req.Emotion))
	if !ok {
		guess := s.emotions.Infer(ctx, question)
		label = guess.Label
		log.Printf("[ai] no usable emotion in request, inferred %s (confidence %.2f, %s)", label, guess.Confidence, guess.Reason)
	}

	var passages []string
	if s.knowledge != nil {
		passages, err = s.knowledge.Context(ctx, question)
		if err != nil {
			log.Printf("[ai] context lookup failed, answering without notes: %v", err)
			passages = nil
		}
	}

	system := s.prompts.SystemPrompt(level, label)
	query := s.prompts.Query(question, passages)

	if err := s.provider.Stream(ctx, system, query, emit); err != nil {
		return fmt.Errorf("%s stream failed: %w", s.provider.Name(), err)
	}

	log.Printf("[ai] answered level=%s emotion=%s context=%d via %s", level, label, len(passages), s.provider.Name())
	return nil
}
