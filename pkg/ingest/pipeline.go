// Package ingest turns uploaded files into indexed chunks. At most one
// ingestion or reset runs at a time; a second caller gets a busy result
// instead of interleaving writes to the shared index.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/internal/types"
	"github.com/ptit-ai/campusbot/pkg/extract"
)

type Status string

const (
	// StatusSuccess means the document was ingested and is searchable.
	StatusSuccess Status = "success"
	// StatusExists means a document with the same name is already in the
	// corpus and the caller must confirm the replacement. Not a failure.
	StatusExists Status = "exists"
	// StatusBusy means another ingestion or reset is in flight. The caller
	// should retry later.
	StatusBusy Status = "busy"
	StatusError Status = "error"
)

// Stats describes a completed ingestion.
type Stats struct {
	Chunks   int
	Duration time.Duration
}

// Result is the structured outcome of an administrative operation.
type Result struct {
	Status  Status
	File    string
	Message string
	Stats   *Stats
}

type Config struct {
	// CorpusDir holds the canonical stored copy of every ingested document.
	CorpusDir string
	// LogPath is the JSONL update audit log.
	LogPath string
	// OnReload, when set, is invoked after any successful ingest, delete, or
	// reset so dependents refresh their view of the index.
	OnReload func()
}

// Pipeline is the sole writer of the vector index and document registry.
type Pipeline struct {
	config    Config
	extractor *extract.Extractor
	chunker   types.Chunker
	index     types.VectorIndex
	registry  types.Registry
	updateLog *UpdateLog
	logger    *zap.Logger

	// mu serializes ingestion and reset; TryLock gives the busy fast-fail.
	mu sync.Mutex
}

func NewPipeline(config Config, chunker types.Chunker, index types.VectorIndex, registry types.Registry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:    config,
		extractor: extract.New(),
		chunker:   chunker,
		index:     index,
		registry:  registry,
		updateLog: NewUpdateLog(config.LogPath),
		logger:    logger,
	}
}

// AddOrUpdate ingests the file at filePath under its base name. When a
// document with that name already exists and forceReplace is false, it
// returns an exists result without touching the index.
func (p *Pipeline) AddOrUpdate(ctx context.Context, filePath string, forceReplace bool) Result {
	if !p.mu.TryLock() {
		return Result{
			Status:  StatusBusy,
			File:    filepath.Base(filePath),
			Message: "another update is already running, try again shortly",
		}
	}
	defer p.mu.Unlock()

	return p.addOrUpdateLocked(ctx, filePath, forceReplace)
}

func (p *Pipeline) addOrUpdateLocked(ctx context.Context, filePath string, forceReplace bool) Result {
	start := time.Now()
	fileName := filepath.Base(filePath)

	exists, err := p.registry.Exists(ctx, fileName)
	if err != nil {
		return p.failure(fileName, start, fmt.Errorf("registry lookup: %w", err))
	}

	if exists && !forceReplace {
		return Result{
			Status:  StatusExists,
			File:    fileName,
			Message: fmt.Sprintf("%s is already in the corpus; confirm to replace it", fileName),
		}
	}

	text, err := p.extractor.Extract(filePath)
	if err != nil {
		return p.failure(fileName, start, fmt.Errorf("extract text: %w", err))
	}

	chunks := p.chunker.Split(fileName, text)
	if len(chunks) == 0 {
		return p.failure(fileName, start, fmt.Errorf("no text content in %s", fileName))
	}

	// Replace is delete-then-add. It only runs once chunking has produced a
	// non-empty set, which keeps the deleted-but-not-re-added window small.
	if exists {
		if err := p.index.DeleteByFile(ctx, fileName); err != nil {
			return p.failure(fileName, start, fmt.Errorf("delete stale chunks: %w", err))
		}
	}
	if err := p.index.Add(ctx, chunks); err != nil {
		return p.failure(fileName, start, fmt.Errorf("index chunks: %w", err))
	}

	if err := p.storeCopy(filePath, fileName); err != nil {
		return p.failure(fileName, start, err)
	}

	doc := models.Document{
		FileName:   fileName,
		SourcePath: filePath,
		IngestedAt: time.Now(),
		ChunkCount: len(chunks),
	}
	if err := p.registry.Put(ctx, doc); err != nil {
		return p.failure(fileName, start, fmt.Errorf("register document: %w", err))
	}

	duration := time.Since(start)
	p.appendLog([]string{fileName}, len(chunks), duration, StatusSuccess, "")
	p.notifyReload()

	p.logger.Info("document ingested",
		zap.String("file", fileName),
		zap.Int("chunks", len(chunks)),
		zap.Bool("replaced", exists),
		zap.Duration("duration", duration))

	return Result{
		Status:  StatusSuccess,
		File:    fileName,
		Message: fmt.Sprintf("ingested %s (%d chunks)", fileName, len(chunks)),
		Stats:   &Stats{Chunks: len(chunks), Duration: duration},
	}
}

// Delete removes the document's chunks and stored copy. It never returns an
// error: failures are logged and reported as false.
func (p *Pipeline) Delete(ctx context.Context, fileName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.index.DeleteByFile(ctx, fileName); err != nil {
		p.logger.Error("failed to delete chunks", zap.String("file", fileName), zap.Error(err))
		return false
	}
	if err := p.registry.Remove(ctx, fileName); err != nil {
		p.logger.Error("failed to deregister document", zap.String("file", fileName), zap.Error(err))
		return false
	}
	if err := os.Remove(filepath.Join(p.config.CorpusDir, fileName)); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove stored copy", zap.String("file", fileName), zap.Error(err))
	}

	p.appendLog([]string{fileName}, 0, 0, StatusSuccess, "deleted")
	p.notifyReload()
	return true
}

// Reset drops every document from the index and registry, then re-ingests
// the stored corpus copies from scratch.
func (p *Pipeline) Reset(ctx context.Context) Result {
	if !p.mu.TryLock() {
		return Result{
			Status:  StatusBusy,
			Message: "another update is already running, try again shortly",
		}
	}
	defer p.mu.Unlock()

	start := time.Now()

	docs, err := p.registry.List(ctx)
	if err != nil {
		return p.failure("", start, fmt.Errorf("list documents: %w", err))
	}
	for _, doc := range docs {
		if err := p.index.DeleteByFile(ctx, doc.FileName); err != nil {
			return p.failure(doc.FileName, start, fmt.Errorf("delete chunks: %w", err))
		}
	}
	if err := p.registry.Clear(ctx); err != nil {
		return p.failure("", start, fmt.Errorf("clear registry: %w", err))
	}

	entries, err := os.ReadDir(p.config.CorpusDir)
	if err != nil && !os.IsNotExist(err) {
		return p.failure("", start, fmt.Errorf("read corpus dir: %w", err))
	}

	var files []string
	totalChunks := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		res := p.addOrUpdateLocked(ctx, filepath.Join(p.config.CorpusDir, entry.Name()), true)
		if res.Status != StatusSuccess {
			p.logger.Warn("reset skipped file", zap.String("file", entry.Name()), zap.String("reason", res.Message))
			continue
		}
		files = append(files, entry.Name())
		totalChunks += res.Stats.Chunks
	}

	duration := time.Since(start)
	p.appendLog(files, totalChunks, duration, StatusSuccess, "reset")
	p.notifyReload()

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("reset complete: %d documents, %d chunks", len(files), totalChunks),
		Stats:   &Stats{Chunks: totalChunks, Duration: duration},
	}
}

// Log returns the most recent n update log entries.
func (p *Pipeline) Log(n int) ([]models.UpdateLogEntry, error) {
	return p.updateLog.Tail(n)
}

// Documents lists the registered corpus.
func (p *Pipeline) Documents(ctx context.Context) ([]models.Document, error) {
	return p.registry.List(ctx)
}

func (p *Pipeline) storeCopy(filePath, fileName string) error {
	if err := os.MkdirAll(p.config.CorpusDir, 0755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}

	dst := filepath.Join(p.config.CorpusDir, fileName)
	if same, err := filepath.Abs(filePath); err == nil {
		if abs, err := filepath.Abs(dst); err == nil && same == abs {
			// Re-ingesting the stored copy itself (reset path).
			return nil
		}
	}

	src, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("store corpus copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("store corpus copy: %w", err)
	}
	return nil
}

func (p *Pipeline) failure(fileName string, start time.Time, err error) Result {
	p.logger.Error("ingestion failed", zap.String("file", fileName), zap.Error(err))
	var files []string
	if fileName != "" {
		files = []string{fileName}
	}
	p.appendLog(files, 0, time.Since(start), StatusError, err.Error())
	return Result{
		Status:  StatusError,
		File:    fileName,
		Message: err.Error(),
	}
}

func (p *Pipeline) appendLog(files []string, chunks int, duration time.Duration, status Status, message string) {
	entry := models.UpdateLogEntry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Files:       files,
		ChunksAdded: chunks,
		DurationSec: duration.Seconds(),
		Status:      string(status),
		Message:     message,
	}
	if err := p.updateLog.Append(entry); err != nil {
		// Audit logging is best-effort; the ingest itself already happened.
		p.logger.Warn("failed to append update log", zap.Error(err))
	}
}

func (p *Pipeline) notifyReload() {
	if p.config.OnReload != nil {
		p.config.OnReload()
	}
}
