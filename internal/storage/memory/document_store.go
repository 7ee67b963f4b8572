package memory

import (
	"context"
	"sync"

	"github.com/zhouzirui/moodtutor/internal/model/document"
)

// DocumentStore keeps the active corpus in process memory.
type DocumentStore struct {
	mu     sync.RWMutex
	doc    document.Document
	chunks []document.Chunk
	loaded bool
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Replace swaps the active corpus.
func (s *DocumentStore) Replace(_ context.Context, doc document.Document, chunks []document.Chunk) error {
	copied := make([]document.Chunk, len(chunks))
	copy(copied, chunks)

	s.mu.Lock()
	s.doc = doc
	s.chunks = copied
	s.loaded = true
	s.mu.Unlock()

	return nil
}

// Active returns the current corpus or document.ErrEmptyCorpus.
func (s *DocumentStore) Active(_ context.Context) (document.Document, []document.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return document.Document{}, nil, document.ErrEmptyCorpus
	}

	copied := make([]document.Chunk, len(s.chunks))
	copy(copied, s.chunks)
	return s.doc, copied, nil
}
