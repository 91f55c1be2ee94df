package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// Default instruction template. Answers are constrained to the corpus topic;
// the model is told to use the refusal phrase for off-topic questions and to
// say so when the documents carry no answer.
const (
	defaultSystemTemplate = "You are the virtual assistant of the Posts and Telecommunications " +
		"Institute of Technology (PTIT). You only answer questions related to PTIT. " +
		"If the user asks about other universities or unrelated topics, reply exactly: " +
		"\"I can only provide information related to the Posts and Telecommunications " +
		"Institute of Technology (PTIT).\""

	defaultPromptTemplate = "Below is information retrieved from PTIT internal documents (if any):\n" +
		"----------------\n%s\n----------------\n" +
		"Based on the information above, answer the question:\n%s\n\n" +
		"If the answer is not found in the PTIT documents, state clearly that you do not " +
		"have specific data yet."
)

// EngineConfig represents the configuration for the answer-generation engine.
type EngineConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	PromptTemplate string
	BaseURL        string // Ollama server URL
}

// Engine generates answers grounded in retrieved context.
type Engine struct {
	config EngineConfig
	llm    llms.Model
}

// NewEngine creates a generation engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = defaultPromptTemplate
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Engine{
		config: config,
		llm:    llm,
	}, nil
}

// Answer generates a response to question from the given context text.
// An empty context is passed through as-is; the template instructs the model
// to say it has no data in that case.
func (e *Engine) Answer(ctx context.Context, question, contextText string) (string, error) {
	prompt := fmt.Sprintf(e.config.PromptTemplate, contextText, question)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, e.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	response, err := e.llm.GenerateContent(ctx, content,
		llms.WithTemperature(e.config.Temperature),
		llms.WithMaxTokens(e.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generation error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Content), nil
}
