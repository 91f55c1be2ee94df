// Package faq implements the semantic FAQ cache checked before any
// generation call. It is a strict top-1 nearest-neighbor classifier with a
// rejection threshold, not a ranked retriever.
package faq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/internal/types"
	"github.com/ptit-ai/campusbot/pkg/index"
)

type Config struct {
	// TablePath is the ordered question/answer table. A missing table is a
	// construction error.
	TablePath string
	// VectorCachePath persists the computed question embeddings so they are
	// computed at most once per table version.
	VectorCachePath string
	// Threshold is the minimum cosine similarity for a cache hit.
	Threshold float64
	// MaxQuestionWords rejects long, compound questions up front.
	MaxQuestionWords int
}

// vectorCache is the private serialized artifact parallel to the FAQ table.
// Questions are stored alongside vectors so a table edit (length or order)
// invalidates the cache.
type vectorCache struct {
	Questions []string    `json:"questions"`
	Vectors   [][]float32 `json:"vectors"`
}

type snapshot struct {
	entries []models.FAQEntry
	vectors [][]float32
}

// Cache answers questions from a precomputed (question, vector, answer)
// table. Check reads a snapshot, so Rebuild can swap the table while checks
// against the old snapshot are in flight.
type Cache struct {
	config   Config
	embedder types.Embedder
	logger   *zap.Logger

	mu   sync.RWMutex
	snap snapshot
}

// New loads the FAQ table and either loads the persisted embedding cache or
// computes and persists one. A stale cache (wrong length, changed order, or
// missing file) is recomputed, never served.
func New(config Config, embedder types.Embedder, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Threshold == 0 {
		config.Threshold = 0.80
	}
	if config.MaxQuestionWords == 0 {
		config.MaxQuestionWords = 12
	}
	if config.VectorCachePath == "" {
		config.VectorCachePath = config.TablePath + ".vectors"
	}

	c := &Cache{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}
	if err := c.load(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load(ctx context.Context) error {
	entries, err := loadTable(c.config.TablePath)
	if err != nil {
		return err
	}

	questions := make([]string, len(entries))
	for i, e := range entries {
		questions[i] = e.Question
	}

	vectors, ok := c.loadVectorCache(questions)
	if !ok {
		vectors, err = c.computeAndPersist(ctx, questions)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.snap = snapshot{entries: entries, vectors: vectors}
	c.mu.Unlock()

	c.logger.Info("faq cache loaded",
		zap.String("table", c.config.TablePath),
		zap.Int("entries", len(entries)),
		zap.Bool("vectors_recomputed", !ok))
	return nil
}

func loadTable(path string) ([]models.FAQEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read FAQ table: %w", err)
	}
	var entries []models.FAQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse FAQ table: %w", err)
	}
	return entries, nil
}

// loadVectorCache returns the persisted vectors when they are still valid
// for questions; any mismatch means the table changed underneath the cache.
func (c *Cache) loadVectorCache(questions []string) ([][]float32, bool) {
	data, err := os.ReadFile(c.config.VectorCachePath)
	if err != nil {
		return nil, false
	}
	var cached vectorCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	if len(cached.Questions) != len(questions) || len(cached.Vectors) != len(questions) {
		return nil, false
	}
	for i := range questions {
		if cached.Questions[i] != questions[i] {
			return nil, false
		}
	}
	return cached.Vectors, true
}

func (c *Cache) computeAndPersist(ctx context.Context, questions []string) ([][]float32, error) {
	var vectors [][]float32
	if len(questions) > 0 {
		var err error
		vectors, err = c.embedder.EmbedTexts(ctx, questions)
		if err != nil {
			return nil, fmt.Errorf("failed to embed FAQ questions: %w", err)
		}
	}

	data, err := json.Marshal(vectorCache{Questions: questions, Vectors: vectors})
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(c.config.VectorCachePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector cache directory: %w", err)
		}
	}
	if err := os.WriteFile(c.config.VectorCachePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to persist FAQ vectors: %w", err)
	}
	return vectors, nil
}

// Check returns the cached answer whose question is closest to question,
// provided the cosine similarity reaches the threshold. Ties go to the
// earlier table entry. Embedding failures degrade to a miss so the caller
// can fall through to retrieval.
func (c *Cache) Check(ctx context.Context, question string) (string, bool) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if len(snap.entries) == 0 {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(question))
	if len(strings.Fields(normalized)) > c.config.MaxQuestionWords {
		return "", false
	}

	queryVec, err := c.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		c.logger.Warn("faq embedding failed, treating as miss", zap.Error(err))
		return "", false
	}

	bestScore := 0.0
	bestAnswer := ""
	for i, vec := range snap.vectors {
		score := index.CosineSimilarity(queryVec, vec)
		if score > bestScore {
			bestScore = score
			bestAnswer = snap.entries[i].Answer
		}
	}

	if bestScore >= c.config.Threshold {
		return bestAnswer, true
	}
	return "", false
}

// Rebuild discards the persisted embedding cache and recomputes it from the
// table on disk. Checks in flight keep reading the previous snapshot.
func (c *Cache) Rebuild(ctx context.Context) error {
	if err := os.Remove(c.config.VectorCachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard FAQ vector cache: %w", err)
	}
	return c.load(ctx)
}

// Len returns the number of cached FAQ entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snap.entries)
}
