package keyvalue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/moodtutor/internal/model/document"
)

const (
	activeDocumentKey = "moodtutor:corpus:document"
	activeChunksKey   = "moodtutor:corpus:chunks"
)

// DocumentStore persists the active corpus in redis so several API
// instances can share one uploaded document.
type DocumentStore struct {
	rdb *redis.Client
}

// NewDocumentStore wraps an existing redis client.
func NewDocumentStore(rdb *redis.Client) *DocumentStore {
	return &DocumentStore{rdb: rdb}
}

// Replace writes the document header and its chunks in one transaction.
func (s *DocumentStore) Replace(ctx context.Context, doc document.Document, chunks []document.Chunk) error {
	header, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}

	values := make([]any, 0, len(chunks))
	for _, chunk := range chunks {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk %s: %w", chunk.ID, err)
		}
		values = append(values, raw)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, activeChunksKey)
		if len(values) > 0 {
			pipe.RPush(ctx, activeChunksKey, values...)
		}
		pipe.Set(ctx, activeDocumentKey, header, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace corpus: %w", err)
	}
	return nil
}

// Active loads the current corpus.
func (s *DocumentStore) Active(ctx context.Context) (document.Document, []document.Chunk, error) {
	header, err := s.rdb.Get(ctx, activeDocumentKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return document.Document{}, nil, document.ErrEmptyCorpus
		}
		return document.Document{}, nil, fmt.Errorf("failed to get active document: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(header, &doc); err != nil {
		return document.Document{}, nil, fmt.Errorf("failed to unmarshal active document: %w", err)
	}

	raw, err := s.rdb.LRange(ctx, activeChunksKey, 0, -1).Result()
	if err != nil {
		return document.Document{}, nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	chunks := make([]document.Chunk, 0, len(raw))
	for _, item := range raw {
		var chunk document.Chunk
		if err := json.Unmarshal([]byte(item), &chunk); err != nil {
			return document.Document{}, nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return doc, chunks, nil
}
