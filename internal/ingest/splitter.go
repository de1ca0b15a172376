package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters for resume text.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// DefaultSeparators are tried in order: paragraphs, lines, words, runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into overlapping chunks of at most ChunkSize runes,
// preferring the coarsest separator that yields pieces small enough.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter returns a Splitter with DefaultSeparators. Non-positive sizes
// fall back to the defaults and an overlap not smaller than size is reduced.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}
}

// Split returns the chunks of text in document order. Chunks are trimmed
// and never empty.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, c := range separators {
		if c == "" || strings.Contains(text, c) {
			sep = c
			rest = separators[i+1:]
			break
		}
	}

	var final, small []string
	for _, piece := range strings.Split(text, sep) {
		if piece == "" {
			continue
		}
		if runeLen(piece) <= s.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, s.merge(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		final = append(final, s.merge(small, sep)...)
	}
	return final
}

// merge packs pieces into chunks up to ChunkSize, carrying roughly
// ChunkOverlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var chunks, window []string
	total := 0

	joinedLen := func(n int) int {
		if len(window) > 0 {
			return n + sepLen
		}
		return n
	}

	for _, p := range pieces {
		l := runeLen(p)
		if total+joinedLen(l) > s.ChunkSize && len(window) > 0 {
			if c := strings.TrimSpace(strings.Join(window, sep)); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.ChunkOverlap || (total > 0 && total+joinedLen(l) > s.ChunkSize) {
				total -= runeLen(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		total += joinedLen(l)
		window = append(window, p)
	}
	if c := strings.TrimSpace(strings.Join(window, sep)); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
