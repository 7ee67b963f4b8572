package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/zhouzirui/moodtutor/internal/config"
	"github.com/zhouzirui/moodtutor/internal/model/document"
)

// ErrEmptyDocument is returned when extraction produced no text.
var ErrEmptyDocument = errors.New("document contains no text")

// Service ingests uploaded documents and retrieves grounding context for questions.
type Service struct {
	store    document.Store
	splitter Splitter
	tokens   *TokenCounter
	cfg      config.KnowledgeConfig
}

// NewService wires a knowledge service over the given store.
func NewService(store document.Store, tokens *TokenCounter, cfg config.KnowledgeConfig) *Service {
	return &Service{
		store:    store,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		tokens:   tokens,
		cfg:      cfg,
	}
}

// Ingest extracts, splits and stores a file, replacing the active corpus.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (document.Document, error) {
	text, err := Extract(filename, data)
	if err != nil {
		return document.Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return document.Document{}, ErrEmptyDocument
	}

	parts := s.splitter.Split(text)
	doc := document.Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		ChunkCount: len(parts),
		CreatedAt:  time.Now().UTC(),
	}

	chunks := make([]document.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, document.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    part,
		})
	}

	if err := s.store.Replace(ctx, doc, chunks); err != nil {
		return document.Document{}, fmt.Errorf("failed to store document %s: %w", filename, err)
	}

	log.Printf("[knowledge] ingested %s as %s (%d chunks)", filename, doc.ID, len(chunks))
	return doc, nil
}

// Search returns up to TopK chunks ranked by term overlap with the query.
// Chunks sharing no term with the query are never returned.
func (s *Service) Search(ctx context.Context, query string) ([]document.Chunk, error) {
	_, chunks, err := s.store.Active(ctx)
	if err != nil {
		return nil, err
	}

	terms := tokenize(query)
	if len(terms) == 0 || len(chunks) == 0 {
		return nil, nil
	}

	chunkTerms := make([]map[string]int, len(chunks))
	docFreq := make(map[string]int)
	for i, chunk := range chunks {
		counts := make(map[string]int)
		for _, term := range tokenize(chunk.Content) {
			counts[term]++
		}
		chunkTerms[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	type scored struct {
		chunk document.Chunk
		score float64
	}
	results := make([]scored, 0, len(chunks))
	total := float64(len(chunks))
	for i, chunk := range chunks {
		score := 0.0
		for _, term := range terms {
			tf := chunkTerms[i][term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + total/float64(docFreq[term]))
			score += (1 + math.Log(float64(tf))) * idf
		}
		if score > 0 {
			results = append(results, scored{chunk: chunk, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := s.cfg.TopK
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	out := make([]document.Chunk, 0, limit)
	for _, r := range results[:limit] {
		out = append(out, r.chunk)
	}
	return out, nil
}

// Context returns retrieved chunk texts trimmed to the configured token budget.
// An empty corpus yields no context rather than an error.
func (s *Service) Context(ctx context.Context, query string) ([]string, error) {
	chunks, err := s.Search(ctx, query)
	if err != nil {
		if errors.Is(err, document.ErrEmptyCorpus) {
			return nil, nil
		}
		return nil, err
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	return s.tokens.Fit(texts, s.cfg.ContextTokens), nil
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "is": {}, "it": {}, "of": {}, "the": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "what": {}, "how": {}, "why": {}, "do": {}, "does": {}, "i": {},
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := fields[:0]
	for _, field := range fields {
		if _, skip := stopwords[field]; skip {
			continue
		}
		terms = append(terms, field)
	}
	return terms
}
