package index_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ptit-ai/campusbot/internal/embedtest"
	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/pkg/index"
)

func openTestIndex(t *testing.T) (*index.SQLiteIndex, *embedtest.Embedder, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	emb := embedtest.New(8)
	idx, err := index.OpenSQLite(dbPath, emb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, emb, dbPath
}

func testChunks(fileName string, contents ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{
			ID:         fileName + "_" + string(rune('0'+i)),
			FileName:   fileName,
			Content:    c,
			ChunkIndex: i,
		}
	}
	return chunks
}

func TestAddAndSearch(t *testing.T) {
	idx, emb, _ := openTestIndex(t)
	ctx := context.Background()

	// Pin vectors so ranking is known: the query matches "tuition" exactly.
	emb.Pin("tuition fees are due in September", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	emb.Pin("the library opens at eight", []float32{0, 1, 0, 0, 0, 0, 0, 0})
	emb.Pin("when is tuition due", []float32{1, 0, 0, 0, 0, 0, 0, 0})

	require.NoError(t, idx.Add(ctx, testChunks("fees.txt",
		"tuition fees are due in September",
		"the library opens at eight",
	)))

	results, err := idx.Search(ctx, "when is tuition due", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "tuition fees are due in September", results[0].Chunk.Content)
	assert.Less(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, "fees.txt", results[0].Chunk.FileName)
}

func TestSearchReturnsFewerThanK(t *testing.T) {
	idx, _, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, testChunks("one.txt", "a single chunk")))

	results, err := idx.Search(ctx, "anything", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, _, _ := openTestIndex(t)

	results, err := idx.Search(context.Background(), "how do I enroll", 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteByFile(t *testing.T) {
	idx, _, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, testChunks("keep.txt", "kept content")))
	require.NoError(t, idx.Add(ctx, testChunks("drop.txt", "dropped content", "more dropped content")))
	require.Equal(t, 3, idx.Len())

	require.NoError(t, idx.DeleteByFile(ctx, "drop.txt"))
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Search(ctx, "content", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "drop.txt", r.Chunk.FileName)
	}
}

func TestDeleteMissingFileIsNoop(t *testing.T) {
	idx, _, _ := openTestIndex(t)
	assert.NoError(t, idx.DeleteByFile(context.Background(), "never-ingested.txt"))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	emb := embedtest.New(8)
	ctx := context.Background()

	idx, err := index.OpenSQLite(dbPath, emb, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, testChunks("persist.txt", "first chunk", "second chunk")))
	require.NoError(t, idx.Close())

	reopened, err := index.OpenSQLite(dbPath, emb, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())

	results, err := reopened.Search(ctx, "first chunk", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persist.txt", results[0].Chunk.FileName)
}

func TestCloseIsIdempotent(t *testing.T) {
	idx, _, _ := openTestIndex(t)
	assert.NoError(t, idx.Close())
	assert.NoError(t, idx.Close())

	var nilIdx *index.SQLiteIndex
	assert.NoError(t, nilIdx.Close())
}

func TestAddSkipsEmbeddingForPreEmbeddedChunks(t *testing.T) {
	idx, emb, _ := openTestIndex(t)
	ctx := context.Background()

	chunks := testChunks("pre.txt", "already embedded")
	chunks[0].Embedding = []float32{0, 0, 1, 0, 0, 0, 0, 0}

	before := emb.Calls()
	require.NoError(t, idx.Add(ctx, chunks))
	assert.Equal(t, before, emb.Calls())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, index.CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, index.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, index.CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, index.CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, index.CosineSimilarity([]float32{1}, []float32{1, 0}))
}
