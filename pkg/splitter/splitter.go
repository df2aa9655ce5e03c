// Package splitter partitions extracted document text into overlapping
// chunks sized for embedding.
package splitter

import (
	"strings"

	"github.com/lorebook/lorebook/internal/models"
)

type SplitterConfig struct {
	ChunkSize    int // maximum chunk length in runes
	ChunkOverlap int // runes shared by consecutive chunks
}

type Splitter struct {
	config SplitterConfig
}

func NewWithConfig(config SplitterConfig) Splitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}

	return Splitter{config: config}
}

// Split partitions text into contiguous windows of at most ChunkSize runes
// where consecutive windows share exactly ChunkOverlap runes. Joining the
// chunks with the overlap removed reconstructs the input. Empty or
// whitespace-only input yields no chunks; callers treat that as a document
// with no content.
func (s *Splitter) Split(text string, metadata map[string]string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	step := s.config.ChunkSize - s.config.ChunkOverlap

	var chunks []models.Chunk
	for start := 0; ; start += step {
		end := start + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, models.Chunk{
			Text:     string(runes[start:end]),
			Metadata: cloneMetadata(metadata),
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// Each chunk gets its own copy so per-chunk fields added later (chunk
// index, ids) cannot leak across chunks.
func cloneMetadata(metadata map[string]string) map[string]string {
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}
