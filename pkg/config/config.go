package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Storage  StorageConfig  `yaml:"storage"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	FAQ      FAQConfig      `yaml:"faq"`
	Retrieve RetrieveConfig `yaml:"retrieve"`
	Watch    WatchConfig    `yaml:"watch"`
	Debug    bool           `yaml:"debug"`
}

type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	// EmbedRateLimit caps embedding calls per second; 0 means unlimited.
	EmbedRateLimit float64 `yaml:"embed_rate_limit"`
}

type StorageConfig struct {
	// DataDir holds the index database, document registry, stored corpus
	// copies and the update log.
	DataDir string `yaml:"data_dir"`
	// DatabaseURL selects the Postgres/pgvector backend when set; the
	// local SQLite index is used otherwise.
	DatabaseURL string `yaml:"database_url"`
	TableName   string `yaml:"table_name"`
	VectorDim   int    `yaml:"vector_dim"`
	BatchSize   int    `yaml:"batch_size"`
}

type ChunkerConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
}

type FAQConfig struct {
	TablePath       string  `yaml:"table_path"`
	VectorCachePath string  `yaml:"vector_cache_path"`
	Threshold       float64 `yaml:"threshold"`
	MaxQuestionWords int    `yaml:"max_question_words"`
}

type RetrieveConfig struct {
	TopK int `yaml:"top_k"`
}

type WatchConfig struct {
	// IncomingDir, when set, is watched for new files to ingest.
	IncomingDir string   `yaml:"incoming_dir"`
	Extensions  []string `yaml:"extensions"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/campusbot/config.yaml"),
			"/etc/campusbot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Storage.DataDir == "" {
		config.Storage.DataDir = "data"
	}
	if config.Storage.TableName == "" {
		config.Storage.TableName = "chunks"
	}
	if config.Storage.VectorDim == 0 {
		config.Storage.VectorDim = 768
	}
	if config.Storage.BatchSize == 0 {
		config.Storage.BatchSize = 100
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 200
	}
	if config.Chunker.MinChunkLength == 0 {
		config.Chunker.MinChunkLength = 100
	}

	if config.FAQ.TablePath == "" {
		config.FAQ.TablePath = "faq.json"
	}
	if config.FAQ.VectorCachePath == "" {
		config.FAQ.VectorCachePath = filepath.Join(config.Storage.DataDir, "faq_vectors.json")
	}
	if config.FAQ.Threshold == 0 {
		config.FAQ.Threshold = 0.80
	}
	if config.FAQ.MaxQuestionWords == 0 {
		config.FAQ.MaxQuestionWords = 12
	}

	if config.Retrieve.TopK == 0 {
		config.Retrieve.TopK = 4
	}

	if len(config.Watch.Extensions) == 0 {
		config.Watch.Extensions = []string{".txt", ".md", ".pdf", ".html", ".docx"}
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.DatabaseURL = dbURL
	}
	if dataDir := os.Getenv("CAMPUSBOT_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
}
