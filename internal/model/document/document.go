package document

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyCorpus is returned when no document has been ingested yet.
var ErrEmptyCorpus = errors.New("no document ingested")

// Document describes an ingested upload.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Chunk is a retrievable slice of a document's text.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Index      int    `json:"index"`
	Content    string `json:"content"`
}

// Store keeps the active corpus. Replace swaps the whole corpus atomically,
// matching the single-document grounding the tutor uses.
type Store interface {
	Replace(ctx context.Context, doc Document, chunks []Chunk) error
	Active(ctx context.Context) (Document, []Chunk, error)
}
