package knowledge

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into overlapping chunks, preferring paragraph, then
// line, then word boundaries. Sizes are counted in runes.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter returns a splitter with the default separator ladder.
func NewSplitter(size, overlap int) Splitter {
	return Splitter{Size: size, Overlap: overlap, Separators: defaultSeparators}
}

// Split returns the chunks of text in document order.
func (s Splitter) Split(text string) []string {
	separators := s.Separators
	if len(separators) == 0 {
		separators = defaultSeparators
	}
	return s.split(text, separators)
}

func (s Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			separator = candidate
			rest = separators[i+1:]
			break
		}
	}

	pieces := splitKeepNonEmpty(text, separator)

	var (
		chunks []string
		good   []string
	)
	for _, piece := range pieces {
		if runeLen(piece) <= s.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, separator)...)
	}
	return chunks
}

// merge greedily packs pieces up to Size, carrying up to Overlap runes of
// trailing pieces into the next chunk.
func (s Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var (
		chunks  []string
		current []string
		total   int
	)
	joinedLen := func(extra int) int {
		if len(current) == 0 {
			return total + extra
		}
		return total + extra + sepLen
	}

	for _, piece := range pieces {
		length := runeLen(piece)
		if joinedLen(length) > s.Size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.Overlap || (joinedLen(length) > s.Size && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += length
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitKeepNonEmpty(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, runeLen(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, part := range strings.Split(text, separator) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
