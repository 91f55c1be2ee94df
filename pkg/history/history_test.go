package history

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptySessionNeverPersisted(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_ = store.NewSession()

	entries, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, entries)
	}

	sessions, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestAppendPersistsAndTitles(t *testing.T) {
	store := NewStore(t.TempDir())
	session := store.NewSession()

	require.NoError(t, store.Append(&session, "user", "When does the fall semester start?"))
	require.NoError(t, store.Append(&session, "assistant", "It starts in early September."))

	loaded, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "When does the fall semester start?", loaded.Title)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "user", loaded.Messages[0].Role)
	assert.Equal(t, "assistant", loaded.Messages[1].Role)
}

func TestTitleTruncation(t *testing.T) {
	store := NewStore(t.TempDir())
	session := store.NewSession()

	long := strings.Repeat("question ", 20)
	require.NoError(t, store.Append(&session, "user", long))

	loaded, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loaded.Title, "..."))
	assert.LessOrEqual(t, len([]rune(loaded.Title)), titleLimit+3)
}

func TestTitleSetOnlyByFirstUserMessage(t *testing.T) {
	store := NewStore(t.TempDir())
	session := store.NewSession()

	require.NoError(t, store.Append(&session, "assistant", "Welcome, how can I help?"))
	assert.Equal(t, defaultTitle, session.Title)

	require.NoError(t, store.Append(&session, "user", "Tell me about dorms"))
	assert.Equal(t, "Tell me about dorms", session.Title)

	require.NoError(t, store.Append(&session, "user", "And the fees?"))
	assert.Equal(t, "Tell me about dorms", session.Title)
}

func TestListOrdersByRecency(t *testing.T) {
	store := NewStore(t.TempDir())

	first := store.NewSession()
	require.NoError(t, store.Append(&first, "user", "first question"))

	second := store.NewSession()
	require.NoError(t, store.Append(&second, "user", "second question"))

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	session := store.NewSession()
	require.NoError(t, store.Append(&session, "user", "delete me"))

	require.NoError(t, store.Delete(session.ID))

	_, err := store.Get(session.ID)
	assert.Error(t, err)

	// Unknown IDs are a quiet no-op.
	assert.NoError(t, store.Delete("no-such-session"))
}

func TestListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	session := store.NewSession()
	require.NoError(t, store.Append(&session, "user", "valid session"))
	require.NoError(t, os.WriteFile(dir+"/broken.json", []byte("{not json"), 0644))

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)
}
