// Package watcher ingests files dropped into an incoming directory. A file
// placed there is picked up after a short debounce, pushed through the
// pipeline, and removed from the drop directory once stored in the corpus.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/pkg/ingest"
)

const defaultDebounce = 500 * time.Millisecond

type Config struct {
	// IncomingDir is the drop directory to watch. Created if absent.
	IncomingDir string
	// Debounce is how long a file must be quiet before ingestion. Editors
	// and network copies emit bursts of write events for one file.
	Debounce time.Duration
	// Extensions filters which dropped files are ingested. Empty means all.
	Extensions []string
}

// Watcher feeds dropped files to the pipeline. Replacement is implicit: a
// drop always overwrites an existing document with the same name.
type Watcher struct {
	config   Config
	pipeline *ingest.Pipeline
	logger   *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

func New(config Config, pipeline *ingest.Pipeline, logger *zap.Logger) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		config:   config,
		pipeline: pipeline,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// Start begins watching. It returns immediately; events are handled on a
// background goroutine until ctx is cancelled or Stop is called. Files
// already sitting in the drop directory are ingested on startup.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.config.IncomingDir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fsw.Add(w.config.IncomingDir); err != nil {
		fsw.Close()
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching incoming directory", zap.String("dir", w.config.IncomingDir))

	w.syncExisting(ctx)
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
		return
	}
	if !w.matchExtension(ev.Name) {
		return
	}
	w.schedule(ctx, ev.Name)
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.config.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.config.Extensions {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == strings.TrimPrefix(ext, ".") {
			return true
		}
	}
	return false
}

// schedule arms (or re-arms) the per-file debounce timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	res := w.pipeline.AddOrUpdate(ctx, path, true)
	switch res.Status {
	case ingest.StatusSuccess:
		w.logger.Info("auto-ingested dropped file",
			zap.String("file", res.File),
			zap.Int("chunks", res.Stats.Chunks))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("failed to clear drop file", zap.String("path", path), zap.Error(err))
		}
	case ingest.StatusBusy:
		// Another update holds the pipeline; try this file again later.
		w.logger.Info("pipeline busy, retrying drop file", zap.String("path", path))
		w.schedule(ctx, path)
	default:
		w.logger.Error("failed to ingest dropped file",
			zap.String("path", path),
			zap.String("reason", res.Message))
	}
}

// syncExisting schedules files that were already in the drop directory
// before the watcher started.
func (w *Watcher) syncExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.config.IncomingDir)
	if err != nil {
		w.logger.Warn("failed to scan incoming directory", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !w.matchExtension(entry.Name()) {
			continue
		}
		w.schedule(ctx, filepath.Join(w.config.IncomingDir, entry.Name()))
	}
}

// Stop halts watching and cancels pending ingestions.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.fsw.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
