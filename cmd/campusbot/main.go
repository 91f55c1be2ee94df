package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/internal/types"
	"github.com/ptit-ai/campusbot/pkg/chunker"
	"github.com/ptit-ai/campusbot/pkg/config"
	"github.com/ptit-ai/campusbot/pkg/faq"
	"github.com/ptit-ai/campusbot/pkg/history"
	"github.com/ptit-ai/campusbot/pkg/index"
	"github.com/ptit-ai/campusbot/pkg/ingest"
	"github.com/ptit-ai/campusbot/pkg/llm"
	"github.com/ptit-ai/campusbot/pkg/registry"
	"github.com/ptit-ai/campusbot/pkg/resolver"
	"github.com/ptit-ai/campusbot/pkg/watcher"
)

func main() {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := parseFlags()

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s: %s\n", e.Field, e.Message)
		}
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() *config.Config {
	var configPath string
	var ollamaURL, dbURL, model, dataDir, faqPath, incomingDir string
	var watch, debug bool

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (enables pgvector storage)")
	flag.StringVar(&model, "model", "", "LLM model to use")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for corpus, index, and logs")
	flag.StringVar(&faqPath, "faq", "", "Path to the FAQ table")
	flag.StringVar(&incomingDir, "watch-dir", "", "Directory to watch for dropped documents")
	flag.BoolVar(&watch, "watch", false, "Watch the incoming directory for new documents")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Command line flags win over the file and the environment.
	if ollamaURL != "" {
		cfg.LLM.BaseURL = ollamaURL
	}
	if dbURL != "" {
		cfg.Storage.DatabaseURL = dbURL
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if faqPath != "" {
		cfg.FAQ.TablePath = faqPath
	}
	if incomingDir != "" {
		cfg.Watch.IncomingDir = incomingDir
	}
	if watch && cfg.Watch.IncomingDir == "" {
		cfg.Watch.IncomingDir = filepath.Join(cfg.Storage.DataDir, "incoming")
	}
	cfg.Debug = cfg.Debug || debug

	return cfg
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func run(cfg *config.Config) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:     cfg.LLM.EmbeddingModel,
		BaseURL:   cfg.LLM.BaseURL,
		RateLimit: cfg.LLM.EmbedRateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	var vectorIndex types.VectorIndex
	if cfg.Storage.DatabaseURL != "" {
		vectorIndex, err = index.NewPGVector(index.PGVectorConfig{
			ConnString: cfg.Storage.DatabaseURL,
			TableName:  cfg.Storage.TableName,
			VectorDim:  cfg.Storage.VectorDim,
			BatchSize:  cfg.Storage.BatchSize,
		}, embedder)
	} else {
		vectorIndex, err = index.OpenSQLite(
			filepath.Join(cfg.Storage.DataDir, "index.db"), embedder, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %v", err)
	}
	defer vectorIndex.Close()

	reg, err := registry.Open(filepath.Join(cfg.Storage.DataDir, "registry.db"))
	if err != nil {
		return fmt.Errorf("failed to initialize document registry: %v", err)
	}
	defer reg.Close()

	engine, err := llm.NewEngine(llm.EngineConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	// A missing or unreadable FAQ table is fatal: there is no degraded
	// half-configured mode.
	faqCache, err := faq.New(faq.Config{
		TablePath:        cfg.FAQ.TablePath,
		VectorCachePath:  cfg.FAQ.VectorCachePath,
		Threshold:        cfg.FAQ.Threshold,
		MaxQuestionWords: cfg.FAQ.MaxQuestionWords,
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to load FAQ table: %v", err)
	}
	logger.Info("faq cache ready", zap.Int("entries", faqCache.Len()))

	ch := chunker.New(chunker.Config{
		ChunkSize:      cfg.Chunker.ChunkSize,
		ChunkOverlap:   cfg.Chunker.ChunkOverlap,
		MinChunkLength: cfg.Chunker.MinChunkLength,
	})

	res := resolver.New(resolver.Config{TopK: cfg.Retrieve.TopK},
		faqCache, vectorIndex, engine, logger)

	pipeline := ingest.NewPipeline(ingest.Config{
		CorpusDir: filepath.Join(cfg.Storage.DataDir, "corpus"),
		LogPath:   filepath.Join(cfg.Storage.DataDir, "updates.jsonl"),
		// Republish the index handle so queries pick up a completed update.
		OnReload: func() { res.SwapIndex(vectorIndex) },
	}, ch, vectorIndex, reg, logger)

	if cfg.Watch.IncomingDir != "" {
		w := watcher.New(watcher.Config{
			IncomingDir: cfg.Watch.IncomingDir,
			Extensions:  cfg.Watch.Extensions,
		}, pipeline, logger)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start directory watcher: %v", err)
		}
		defer w.Stop()
	}

	sessions := history.NewStore(filepath.Join(cfg.Storage.DataDir, "sessions"))

	return chat(ctx, res, pipeline, faqCache, sessions)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func chat(ctx context.Context, res *resolver.Resolver, pipeline *ingest.Pipeline, faqCache *faq.Cache, sessions *history.Store) error {
	color.Cyan("\nPTIT campus assistant (type 'exit' to quit, '/help' for admin commands)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	session := sessions.NewSession()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}
		if strings.HasPrefix(input, "/") {
			handleCommand(ctx, input, pipeline, faqCache)
			continue
		}

		if err := sessions.Append(&session, "user", input); err != nil {
			color.Red("failed to save session: %v\n", err)
		}

		spinner := getSpinner("Thinking...")
		answer := res.Resolve(ctx, input)
		spinner.Finish()
		fmt.Print("\r")

		assistantPrompt("Assistant: ")
		fmt.Println(answer)

		if err := sessions.Append(&session, "assistant", answer); err != nil {
			color.Red("failed to save session: %v\n", err)
		}
	}
	return nil
}

func handleCommand(ctx context.Context, input string, pipeline *ingest.Pipeline, faqCache *faq.Cache) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/help":
		fmt.Println(`Commands:
  /ingest <path> [--force]  add or replace a document
  /delete <file>            remove a document from the corpus
  /reset                    rebuild the index from the stored corpus
  /reload-faq               reload the FAQ table and recompute its vectors
  /files                    list ingested documents
  /log                      show recent ingestion runs`)
	case "/ingest":
		if len(fields) < 2 {
			color.Red("usage: /ingest <path> [--force]\n")
			return
		}
		force := len(fields) > 2 && fields[2] == "--force"
		printResult(pipeline.AddOrUpdate(ctx, fields[1], force))
	case "/delete":
		if len(fields) < 2 {
			color.Red("usage: /delete <file>\n")
			return
		}
		if pipeline.Delete(ctx, fields[1]) {
			color.Green("deleted %s\n", fields[1])
		} else {
			color.Red("failed to delete %s\n", fields[1])
		}
	case "/reset":
		printResult(pipeline.Reset(ctx))
	case "/reload-faq":
		if err := faqCache.Rebuild(ctx); err != nil {
			color.Red("failed to reload FAQ table: %v\n", err)
			return
		}
		color.Green("FAQ table reloaded (%d entries)\n", faqCache.Len())
	case "/files":
		docs, err := pipeline.Documents(ctx)
		if err != nil {
			color.Red("failed to list documents: %v\n", err)
			return
		}
		if len(docs) == 0 {
			fmt.Println("corpus is empty")
			return
		}
		for _, doc := range docs {
			fmt.Printf("  %-40s %4d chunks  %s\n",
				doc.FileName, doc.ChunkCount, doc.IngestedAt.Format("2006-01-02 15:04"))
		}
	case "/log":
		entries, err := pipeline.Log(10)
		if err != nil {
			color.Red("failed to read update log: %v\n", err)
			return
		}
		for _, e := range entries {
			fmt.Printf("  %s  %-7s  %v  %d chunks  %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Status, e.Files, e.ChunksAdded, e.Message)
		}
	default:
		color.Red("unknown command %s, try /help\n", fields[0])
	}
}

func printResult(res ingest.Result) {
	switch res.Status {
	case ingest.StatusSuccess:
		color.Green("%s\n", res.Message)
	case ingest.StatusExists:
		color.Yellow("%s (re-run with --force to replace)\n", res.Message)
	case ingest.StatusBusy:
		color.Yellow("%s\n", res.Message)
	default:
		color.Red("%s\n", res.Message)
	}
}
