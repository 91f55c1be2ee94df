package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ptit-ai/campusbot/internal/models"
)

// tailReadLimit bounds how far back Tail reads; older records than this are
// not needed for the admin view.
const tailReadLimit = 64 * 1024

// UpdateLog is the append-only audit log of ingestion runs, one JSON record
// per line. Entries are never mutated after append.
type UpdateLog struct {
	path string
	mu   sync.Mutex
}

func NewUpdateLog(path string) *UpdateLog {
	return &UpdateLog{path: path}
}

// Append writes one record. The log directory is created if absent, so a
// missing data dir degrades to a message instead of a lost record.
func (l *UpdateLog) Append(entry models.UpdateLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open update log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append update log: %w", err)
	}
	return nil
}

// Tail returns up to n most recent entries, newest last. Only the end of the
// file is read. A missing log file yields no entries, not an error.
func (l *UpdateLog) Tail(n int) ([]models.UpdateLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	offset := info.Size() - tailReadLimit
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte{'\n'})
	if offset > 0 && len(lines) > 0 {
		// The first line may be a partial record from the seek point.
		lines = lines[1:]
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	var entries []models.UpdateLogEntry
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry models.UpdateLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn line at the end of a crashed write is skipped, not fatal.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
