package index

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/internal/types"
)

// DefaultTopK is the number of chunks returned by Search when k <= 0.
const DefaultTopK = 4

type indexEntry struct {
	id         string
	fileName   string
	content    string
	chunkIndex int
	vector     []float32
}

// SQLiteIndex is a file-backed vector index. Rows are persisted in SQLite;
// vectors are mirrored in memory for brute-force cosine search. Callers must
// open one handle per database path and share it; reopening the same path
// concurrently risks lock contention on the file.
type SQLiteIndex struct {
	db       *sql.DB
	embedder types.Embedder
	logger   *zap.Logger

	mu      sync.RWMutex
	entries []indexEntry
	closed  bool
}

// OpenSQLite loads the index at dbPath, initializing an empty one if absent.
// Parent directories are created if they do not exist.
func OpenSQLite(dbPath string, embedder types.Embedder, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_name ON chunks(file_name);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	idx := &SQLiteIndex{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
	if err := idx.loadEntries(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("vector index opened",
		zap.String("path", dbPath),
		zap.Int("chunks", len(idx.entries)))

	return idx, nil
}

func (idx *SQLiteIndex) loadEntries() error {
	rows, err := idx.db.Query(
		`SELECT id, file_name, content, chunk_index, embedding FROM chunks ORDER BY file_name, chunk_index`)
	if err != nil {
		return fmt.Errorf("failed to load index rows: %w", err)
	}
	defer rows.Close()

	var entries []indexEntry
	for rows.Next() {
		var e indexEntry
		var blob []byte
		if err := rows.Scan(&e.id, &e.fileName, &e.content, &e.chunkIndex, &blob); err != nil {
			return fmt.Errorf("failed to scan index row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("corrupt embedding for chunk %s: %w", e.id, err)
		}
		e.vector = vec
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()
	return nil
}

// Add embeds chunks without a precomputed vector and appends everything to
// the index. Rows are committed before the in-memory mirror is updated, so a
// caller returning from Add can assume the chunks are searchable.
func (idx *SQLiteIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Embed whatever arrived without a vector, in one backend call.
	var missing []int
	var texts []string
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, chunks[i].Content)
		}
	}
	if len(missing) > 0 {
		vectors, err := idx.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		for j, i := range missing {
			chunks[i].Embedding = vectors[j]
		}
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT OR REPLACE INTO chunks (id, file_name, content, chunk_index, embedding)
		 VALUES (?, ?, ?, ?, ?)`
	for _, ch := range chunks {
		if _, err := tx.ExecContext(ctx, stmt,
			ch.ID, ch.FileName, ch.Content, ch.ChunkIndex, encodeVector(ch.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	idx.mu.Lock()
	for _, ch := range chunks {
		idx.entries = append(idx.entries, indexEntry{
			id:         ch.ID,
			fileName:   ch.FileName,
			content:    ch.Content,
			chunkIndex: ch.ChunkIndex,
			vector:     ch.Embedding,
		})
	}
	idx.mu.Unlock()

	idx.logger.Debug("chunks added", zap.Int("count", len(chunks)))
	return nil
}

// DeleteByFile removes every chunk whose file name matches. Deleting a file
// with no chunks is a no-op, not an error.
func (idx *SQLiteIndex) DeleteByFile(ctx context.Context, fileName string) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_name = ?`, fileName); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", fileName, err)
	}

	idx.mu.Lock()
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.fileName != fileName {
			kept = append(kept, e)
		}
	}
	idx.entries = kept
	idx.mu.Unlock()

	idx.logger.Debug("chunks deleted", zap.String("file", fileName))
	return nil
}

// Search embeds query and returns the k nearest chunks ranked ascending by
// cosine distance. Fewer than k results are returned when the index is small.
func (idx *SQLiteIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]models.SearchResult, 0, len(idx.entries))
	for _, e := range idx.entries {
		d := CosineDistance(queryVec, e.vector)
		if math.IsNaN(d) {
			continue
		}
		results = append(results, models.SearchResult{
			Chunk: models.Chunk{
				ID:         e.id,
				FileName:   e.fileName,
				Content:    e.content,
				ChunkIndex: e.chunkIndex,
			},
			Distance: d,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of indexed chunks.
func (idx *SQLiteIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Close releases the database handle so the storage directory can be deleted.
// Safe to call on a nil or already-closed index.
func (idx *SQLiteIndex) Close() error {
	if idx == nil {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || idx.db == nil {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	for _, v := range vec {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
