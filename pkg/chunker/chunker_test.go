package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ptit-ai/campusbot/pkg/chunker"
)

func TestSplitTagsEveryChunkWithFileName(t *testing.T) {
	c := chunker.New(chunker.Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkLength: 20})

	text := "This is a test document. It contains several sentences to demonstrate text chunking. " +
		"Each chunk must carry its file name. That makes filter deletion possible."

	chunks := c.Split("policy.txt", text)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, "policy.txt", ch.FileName)
		assert.Equal(t, i, ch.ChunkIndex)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	c := chunker.New(chunker.Config{ChunkSize: 80, ChunkOverlap: 20, MinChunkLength: 20})

	text := strings.Repeat("The enrollment period opens in August. Tuition is due by September. ", 10)

	first := c.Split("enroll.txt", text)
	second := c.Split("enroll.txt", text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	c := chunker.New(chunker.Config{ChunkSize: 100, ChunkOverlap: 20, MinChunkLength: 10})

	text := strings.Repeat("Short sentence here. ", 50)

	chunks := c.Split("sizes.txt", text)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		// A single sentence may push a chunk past the target, but never by
		// more than one sentence length.
		assert.LessOrEqual(t, len(ch.Content), 100+len("Short sentence here."))
	}
}

func TestSplitEmptyText(t *testing.T) {
	c := chunker.New(chunker.Config{})
	assert.Empty(t, c.Split("empty.txt", ""))
	assert.Empty(t, c.Split("blank.txt", "   \n\t  "))
}

func TestSplitShortDocumentProducesOneChunk(t *testing.T) {
	c := chunker.New(chunker.Config{})
	chunks := c.Split("tiny.txt", "One short line.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "tiny.txt_0", chunks[0].ID)
	assert.Equal(t, "One short line.", chunks[0].Content)
}
