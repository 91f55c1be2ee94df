package chunker

import (
	"fmt"
	"strings"

	"github.com/ptit-ai/campusbot/internal/models"
)

type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// Chunker splits document text into overlapping segments sized for
// retrieval. Splitting is deterministic: identical input text and identical
// configuration always produce the identical chunk set.
type Chunker struct {
	config Config
}

func New(config Config) *Chunker {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	}

	return &Chunker{config: config}
}

// Split chunks text into models.Chunk values tagged with fileName. Chunk IDs
// are derived from the file name and chunk index so re-splitting the same
// file yields the same IDs.
func (c *Chunker) Split(fileName, text string) []models.Chunk {
	clean := c.cleanText(text)
	if clean == "" {
		return nil
	}

	var chunks []models.Chunk
	for i, part := range c.splitIntoChunks(clean) {
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s_%d", fileName, i),
			FileName:   fileName,
			Content:    part,
			ChunkIndex: i,
		})
	}
	return chunks
}

func (c *Chunker) cleanText(text string) string {
	// Collapse runs of whitespace so chunk boundaries do not depend on
	// the source formatting.
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

func (c *Chunker) splitIntoChunks(text string) []string {
	var chunks []string

	sentences := c.splitIntoSentences(text)

	currentChunk := strings.Builder{}

	for _, sentence := range sentences {
		// If adding this sentence would exceed chunk size
		if currentChunk.Len()+len(sentence) > c.config.ChunkSize {
			if currentChunk.Len() >= c.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}

			// Start new chunk with overlap from the tail of the previous one
			if c.config.ChunkOverlap > 0 && currentChunk.Len() > c.config.ChunkOverlap {
				tail := currentChunk.String()
				tail = tail[len(tail)-c.config.ChunkOverlap:]
				currentChunk.Reset()
				currentChunk.WriteString(tail)
			} else {
				currentChunk.Reset()
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	if currentChunk.Len() >= c.config.MinChunkLength {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	// Very short documents still get one chunk rather than none.
	if len(chunks) == 0 && len(text) > 0 {
		chunks = append(chunks, text)
	}

	return chunks
}

func (c *Chunker) splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}
