package knowledge

import (
	"log"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens. When the BPE tables cannot be
// loaded it falls back to a four-bytes-per-token estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter resolves the named encoding, e.g. "cl100k_base".
func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Printf("[knowledge] token encoding %q unavailable, using estimate: %v", encoding, err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token length of text.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Fit keeps leading items until the budget would be exceeded.
func (c *TokenCounter) Fit(items []string, budget int) []string {
	used := 0
	for i, item := range items {
		used += c.Count(item)
		if used > budget {
			return items[:i]
		}
	}
	return items
}
