package registry_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/pkg/registry"
)

func openTestRegistry(t *testing.T) *registry.SQLiteRegistry {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestPutExistsRemove(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	exists, err := reg.Exists(ctx, "policy.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	doc := models.Document{
		FileName:   "policy.pdf",
		SourcePath: "/uploads/policy.pdf",
		IngestedAt: time.Now(),
		ChunkCount: 7,
	}
	require.NoError(t, reg.Put(ctx, doc))

	exists, err = reg.Exists(ctx, "policy.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, reg.Remove(ctx, "policy.pdf"))

	exists, err = reg.Exists(ctx, "policy.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPutReplacesExistingRecord(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, models.Document{
		FileName: "handbook.txt", SourcePath: "a", IngestedAt: time.Now(), ChunkCount: 3,
	}))
	require.NoError(t, reg.Put(ctx, models.Document{
		FileName: "handbook.txt", SourcePath: "b", IngestedAt: time.Now(), ChunkCount: 5,
	}))

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].SourcePath)
	assert.Equal(t, 5, docs[0].ChunkCount)
}

func TestListOrdersByFileName(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"zeta.txt", "alpha.txt", "mid.txt"} {
		require.NoError(t, reg.Put(ctx, models.Document{
			FileName: name, SourcePath: name, IngestedAt: time.Now(), ChunkCount: 1,
		}))
	}

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "alpha.txt", docs[0].FileName)
	assert.Equal(t, "mid.txt", docs[1].FileName)
	assert.Equal(t, "zeta.txt", docs[2].FileName)
}

func TestClear(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Put(ctx, models.Document{
		FileName: "a.txt", SourcePath: "a", IngestedAt: time.Now(), ChunkCount: 1,
	}))
	require.NoError(t, reg.Clear(ctx))

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	reg := openTestRegistry(t)
	assert.NoError(t, reg.Remove(context.Background(), "missing.txt"))
}
