package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/moodtutor/internal/config"
)

// arkProvider runs a chat template + Ark model chain.
type arkProvider struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newArkProvider(ctx context.Context, cfg config.AIConfig) (*arkProvider, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &arkProvider{chain: runnable}, nil
}

func (p *arkProvider) Name() string { return "ark" }

func (p *arkProvider) Stream(ctx context.Context, system, query string, emit func(string) error) error {
	stream, err := p.chain.Stream(ctx, map[string]any{
		"system": system,
		"query":  query,
	})
	if err != nil {
		return fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			return nil
		}
		if recvErr != nil {
			return recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := emit(chunk.Content); err != nil {
			return err
		}
	}
}
