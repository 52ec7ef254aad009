package processor

import (
	"strings"
)

type SplitterConfig struct {
	ChunkSize      int // in runes
	ChunkOverlap   int
	MinChunkLength int
}

// Splitter cuts long text into sentence-aligned chunks for embedding.
type Splitter struct {
	config SplitterConfig
}

func NewSplitter(config SplitterConfig) Splitter {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}
	return Splitter{config: config}
}

// Split returns chunks of at most roughly ChunkSize runes; consecutive
// chunks share ChunkOverlap trailing runes. Chunks shorter than
// MinChunkLength are dropped unless the whole text is that short.
func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current []rune

	for _, sentence := range splitIntoSentences(text) {
		sr := []rune(sentence)
		// If adding this sentence would exceed chunk size
		if len(current) > 0 && len(current)+len(sr) > s.config.ChunkSize {
			if len(current) >= s.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(string(current)))
			}
			if s.config.ChunkOverlap > 0 && len(current) > s.config.ChunkOverlap {
				current = append([]rune(nil), current[len(current)-s.config.ChunkOverlap:]...)
			} else {
				current = current[:0]
			}
		}
		current = append(current, sr...)
		current = append(current, ' ')
	}

	last := strings.TrimSpace(string(current))
	if len([]rune(last)) >= s.config.MinChunkLength || len(chunks) == 0 {
		chunks = append(chunks, last)
	}
	return chunks
}

func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		// sentence ends at punctuation followed by whitespace, or at a newline
		if r == '\n' || i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	// Add any remaining text
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
