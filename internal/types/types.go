package types

import (
	"context"

	"github.com/ptit-ai/campusbot/internal/models"
)

// Core interfaces

// Embedder maps text to fixed-length vectors via the embedding backend.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the persistent store of (vector, text, metadata) triples.
// One open handle per persistent path should exist per process.
type VectorIndex interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	DeleteByFile(ctx context.Context, fileName string) error
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
	Close() error
}

// Registry is the source of truth for which documents exist in the corpus.
type Registry interface {
	Exists(ctx context.Context, fileName string) (bool, error)
	Put(ctx context.Context, doc models.Document) error
	Remove(ctx context.Context, fileName string) error
	List(ctx context.Context) ([]models.Document, error)
	Clear(ctx context.Context) error
}

// Generator produces an answer from a question and retrieved context.
type Generator interface {
	Answer(ctx context.Context, question, contextText string) (string, error)
}

// Chunker splits document text into overlapping retrieval segments.
type Chunker interface {
	Split(fileName, text string) []models.Chunk
}
