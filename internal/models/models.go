package models

import "time"

// Document is a corpus entry identified by its base file name.
type Document struct {
	FileName   string    `json:"file_name"`
	SourcePath string    `json:"source_path"`
	IngestedAt time.Time `json:"ingested_at"`
	ChunkCount int       `json:"chunk_count"`
}

// Chunk is a bounded text span derived from exactly one document.
// Embedding is assigned at add-time when empty.
type Chunk struct {
	ID         string
	FileName   string
	Content    string
	ChunkIndex int
	Embedding  []float32
}

// SearchResult is a chunk with its cosine distance to the query
// (smaller is closer).
type SearchResult struct {
	Chunk    Chunk
	Distance float64
}

// FAQEntry is a curated question/answer pair.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UpdateLogEntry is one append-only audit record for an ingestion run.
type UpdateLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Files       []string  `json:"files"`
	ChunksAdded int       `json:"chunks_added"`
	DurationSec float64   `json:"duration_sec"`
	Status      string    `json:"status"` // "success" or "error"
	Message     string    `json:"message,omitempty"`
}

// Message is a single chat turn.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is an ordered chat transcript. Sessions with no messages are
// never persisted.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}
