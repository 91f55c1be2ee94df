// Package resolver routes a user question to an answer: FAQ cache first,
// then retrieval over the vector index plus generation.
package resolver

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/internal/types"
	"github.com/ptit-ai/campusbot/pkg/faq"
)

const (
	// noDataAnswer is returned when retrieval finds nothing relevant or the
	// model produces an empty completion.
	noDataAnswer = "I could not find information about this in the PTIT documents. Please contact the student affairs office for details."
	// errorPrefix heads the user-facing text for any internal failure.
	errorPrefix = "Something went wrong while answering: "
)

type Config struct {
	// TopK is how many chunks retrieval feeds into the prompt.
	TopK int
}

// Resolver answers questions. The index handle is swappable at runtime so a
// completed ingestion can publish a fresh index without a restart.
type Resolver struct {
	config    Config
	faq       *faq.Cache
	index     atomic.Pointer[indexHandle]
	generator types.Generator
	logger    *zap.Logger
}

// indexHandle wraps the interface so atomic.Pointer has a concrete type.
type indexHandle struct {
	idx types.VectorIndex
}

func New(config Config, faqCache *faq.Cache, index types.VectorIndex, generator types.Generator, logger *zap.Logger) *Resolver {
	if config.TopK <= 0 {
		config.TopK = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		config:    config,
		faq:       faqCache,
		generator: generator,
		logger:    logger,
	}
	r.index.Store(&indexHandle{idx: index})
	return r
}

// SwapIndex atomically replaces the index used by subsequent queries.
// In-flight queries keep the handle they already loaded.
func (r *Resolver) SwapIndex(index types.VectorIndex) {
	r.index.Store(&indexHandle{idx: index})
}

// Resolve always returns displayable text. Errors are logged and rendered as
// a plain-language message; nothing is ever raised past this boundary.
func (r *Resolver) Resolve(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return noDataAnswer
	}

	if r.faq != nil {
		if answer, ok := r.faq.Check(ctx, question); ok {
			r.logger.Debug("faq hit", zap.String("question", question))
			return answer
		}
	}

	results, err := r.index.Load().idx.Search(ctx, question, r.config.TopK)
	if err != nil {
		r.logger.Error("retrieval failed", zap.String("question", question), zap.Error(err))
		return errorPrefix + err.Error()
	}
	// An empty result set still goes to the model: the prompt template
	// instructs it to decline when the context is blank.
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, res.Chunk.Content)
	}
	contextText := strings.Join(parts, "\n\n")

	answer, err := r.generator.Answer(ctx, question, contextText)
	if err != nil {
		r.logger.Error("generation failed", zap.String("question", question), zap.Error(err))
		return errorPrefix + err.Error()
	}
	if strings.TrimSpace(answer) == "" {
		return noDataAnswer
	}
	return answer
}
