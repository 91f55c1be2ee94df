package faq_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ptit-ai/campusbot/internal/embedtest"
	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/pkg/faq"
)

func writeTable(t *testing.T, dir string, entries []models.FAQEntry) string {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(dir, "faq.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func ptitTable(t *testing.T, dir string) string {
	return writeTable(t, dir, []models.FAQEntry{
		{Question: "What is PTIT?", Answer: "PTIT is a telecom university."},
	})
}

func TestCheckHitAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	// 0.91 similarity against the cached question vector. Table questions
	// are embedded with their original casing; queries are lowercased.
	emb.Pin("What is PTIT?", []float32{1, 0, 0, 0})
	emb.Pin("what's ptit?", []float32{0.91, 0.414, 0, 0})

	cache, err := faq.New(faq.Config{
		TablePath:       ptitTable(t, dir),
		VectorCachePath: filepath.Join(dir, "faq_vectors.json"),
		Threshold:       0.80,
	}, emb, nil)
	require.NoError(t, err)

	answer, ok := cache.Check(context.Background(), "what's ptit?")
	require.True(t, ok)
	assert.Equal(t, "PTIT is a telecom university.", answer)
}

func TestCheckMissBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	emb.Pin("What is PTIT?", []float32{1, 0, 0, 0})
	emb.Pin("how do i enroll?", []float32{0, 1, 0, 0})

	cache, err := faq.New(faq.Config{
		TablePath:       ptitTable(t, dir),
		VectorCachePath: filepath.Join(dir, "faq_vectors.json"),
		Threshold:       0.80,
	}, emb, nil)
	require.NoError(t, err)

	_, ok := cache.Check(context.Background(), "how do I enroll?")
	assert.False(t, ok)
}

func TestCheckRejectsLongQuestions(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)

	cache, err := faq.New(faq.Config{
		TablePath:        ptitTable(t, dir),
		VectorCachePath:  filepath.Join(dir, "faq_vectors.json"),
		MaxQuestionWords: 5,
	}, emb, nil)
	require.NoError(t, err)

	before := emb.Calls()
	_, ok := cache.Check(context.Background(), "this question clearly has far more than five words in it")
	assert.False(t, ok)
	// Rejected before any embedding call was spent.
	assert.Equal(t, before, emb.Calls())
}

func TestCheckTieBreaksOnTableOrder(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	emb.Pin("first question", []float32{1, 0, 0, 0})
	emb.Pin("second question", []float32{1, 0, 0, 0})
	emb.Pin("the query", []float32{1, 0, 0, 0})

	table := writeTable(t, dir, []models.FAQEntry{
		{Question: "first question", Answer: "first answer"},
		{Question: "second question", Answer: "second answer"},
	})

	cache, err := faq.New(faq.Config{
		TablePath:       table,
		VectorCachePath: filepath.Join(dir, "faq_vectors.json"),
	}, emb, nil)
	require.NoError(t, err)

	answer, ok := cache.Check(context.Background(), "the query")
	require.True(t, ok)
	assert.Equal(t, "first answer", answer)
}

func TestCheckEmbeddingFailureIsAMiss(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)

	cache, err := faq.New(faq.Config{
		TablePath:       ptitTable(t, dir),
		VectorCachePath: filepath.Join(dir, "faq_vectors.json"),
	}, emb, nil)
	require.NoError(t, err)

	emb.FailAll(true)
	_, ok := cache.Check(context.Background(), "what is ptit?")
	assert.False(t, ok)
}

func TestMissingTableIsFatal(t *testing.T) {
	_, err := faq.New(faq.Config{
		TablePath: filepath.Join(t.TempDir(), "missing.json"),
	}, embedtest.New(4), nil)
	assert.Error(t, err)
}

func TestVectorCacheIsPersistedAndReused(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	table := ptitTable(t, dir)
	cachePath := filepath.Join(dir, "faq_vectors.json")

	_, err := faq.New(faq.Config{TablePath: table, VectorCachePath: cachePath}, emb, nil)
	require.NoError(t, err)
	require.FileExists(t, cachePath)
	callsAfterFirst := emb.Calls()

	// Second construction loads the persisted vectors, no embedding calls.
	_, err = faq.New(faq.Config{TablePath: table, VectorCachePath: cachePath}, emb, nil)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, emb.Calls())
}

func TestStaleVectorCacheIsRecomputed(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	table := ptitTable(t, dir)
	cachePath := filepath.Join(dir, "faq_vectors.json")

	_, err := faq.New(faq.Config{TablePath: table, VectorCachePath: cachePath}, emb, nil)
	require.NoError(t, err)

	// Edit the table out-of-band: a second entry makes the cache stale.
	writeTable(t, dir, []models.FAQEntry{
		{Question: "What is PTIT?", Answer: "PTIT is a telecom university."},
		{Question: "Where is the campus?", Answer: "Hanoi and Ho Chi Minh City."},
	})

	cache, err := faq.New(faq.Config{TablePath: table, VectorCachePath: cachePath}, emb, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestRebuildRecomputesFromCurrentTable(t *testing.T) {
	dir := t.TempDir()
	emb := embedtest.New(4)
	table := ptitTable(t, dir)
	cachePath := filepath.Join(dir, "faq_vectors.json")

	cache, err := faq.New(faq.Config{TablePath: table, VectorCachePath: cachePath}, emb, nil)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	writeTable(t, dir, []models.FAQEntry{
		{Question: "What is PTIT?", Answer: "PTIT is a telecom university."},
		{Question: "Where is the campus?", Answer: "Hanoi and Ho Chi Minh City."},
		{Question: "What majors exist?", Answer: "Telecom, IT, multimedia and more."},
	})

	require.NoError(t, cache.Rebuild(context.Background()))
	assert.Equal(t, 3, cache.Len())
}

func TestEmptyTableNeverHits(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, dir, []models.FAQEntry{})

	cache, err := faq.New(faq.Config{
		TablePath:       table,
		VectorCachePath: filepath.Join(dir, "faq_vectors.json"),
	}, embedtest.New(4), nil)
	require.NoError(t, err)

	_, ok := cache.Check(context.Background(), "anything")
	assert.False(t, ok)
}
