// Package history stores chat transcripts as one JSON file per session.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ptit-ai/campusbot/internal/models"
)

const (
	// defaultTitle names a session until its first user message arrives.
	defaultTitle = "New chat"
	// titleLimit caps auto-generated titles, in runes.
	titleLimit = 48
)

// Store persists sessions under a directory. A session exists on disk only
// once it holds at least one message.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// NewSession returns a fresh, unsaved session.
func (s *Store) NewSession() models.Session {
	now := time.Now()
	return models.Session{
		ID:        uuid.New().String(),
		Title:     defaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and saves the session. The first user message
// replaces the default title with its truncated text.
func (s *Store) Append(session *models.Session, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Messages = append(session.Messages, models.Message{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	session.UpdatedAt = time.Now()

	if session.Title == defaultTitle && role == "user" {
		session.Title = makeTitle(text)
	}
	return s.save(*session)
}

func makeTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if title == "" {
		return defaultTitle
	}
	runes := []rune(title)
	if len(runes) > titleLimit {
		title = string(runes[:titleLimit]) + "..."
	}
	return title
}

func (s *Store) save(session models.Session) error {
	if len(session.Messages) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(session.ID), data, 0644)
}

// Get loads one session by ID.
func (s *Store) Get(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return models.Session{}, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	return session, nil
}

// List returns all saved sessions, most recently updated first.
func (s *Store) List() ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []models.Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			// A corrupt session file is skipped, not fatal.
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a saved session. Deleting an unknown ID is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
