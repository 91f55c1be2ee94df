package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.Storage.DatabaseURL != "" {
		if _, err := url.Parse(c.Storage.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "storage.database_url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Storage.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "storage.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Storage.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "storage.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.FAQ.Threshold <= 0 || c.FAQ.Threshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "faq.threshold",
			Message: "threshold must be in (0, 1]",
		})
	}

	if c.FAQ.MaxQuestionWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "faq.max_question_words",
			Message: "max_question_words must be positive",
		})
	}

	if c.Retrieve.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieve.top_k",
			Message: "top_k must be positive",
		})
	}

	return errors
}
