// Package embedtest provides a deterministic embedder for tests, so index,
// FAQ, and pipeline behavior can be exercised without an embedding backend.
package embedtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// Embedder produces deterministic unit vectors derived from the text hash:
// the same text always gets the same embedding. Fixed vectors can be pinned
// per text to steer similarity in tests, and the whole embedder can be
// switched into a failing mode.
type Embedder struct {
	dimensions int
	fixed      map[string][]float32
	failAll    atomic.Bool
	calls      atomic.Int64
}

func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &Embedder{
		dimensions: dimensions,
		fixed:      make(map[string][]float32),
	}
}

// Pin makes the embedder return vec for exactly this text.
func (e *Embedder) Pin(text string, vec []float32) {
	e.fixed[text] = vec
}

// FailAll toggles unconditional embedding failure.
func (e *Embedder) FailAll(fail bool) {
	e.failAll.Store(fail)
}

// Calls returns how many embedding requests were made.
func (e *Embedder) Calls() int64 {
	return e.calls.Load()
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.failAll.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embedOne(text string) []float32 {
	if vec, ok := e.fixed[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(seed%1000)*float64(i+1)) + 0.01)
	}

	// Normalize to unit length so cosine similarity is well defined.
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] *= float32(norm)
		}
	}
	return vec
}
