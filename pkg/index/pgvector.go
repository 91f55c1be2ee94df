package index

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ptit-ai/campusbot/internal/models"
	"github.com/ptit-ai/campusbot/internal/types"
)

// PGVectorConfig configures the Postgres/pgvector index backend.
type PGVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// PGVectorIndex stores chunks in Postgres with pgvector cosine search.
// It implements the same contract as SQLiteIndex for deployments where the
// corpus outgrows a local file.
type PGVectorIndex struct {
	config   PGVectorConfig
	embedder types.Embedder
	pool     *pgxpool.Pool
}

func NewPGVector(config PGVectorConfig, embedder types.Embedder) (*PGVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	idx := &PGVectorIndex{
		config:   config,
		embedder: embedder,
		pool:     pool,
	}

	if err := idx.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return idx, nil
}

func (idx *PGVectorIndex) initialize() error {
	ctx := context.Background()

	_, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d)
		)`, idx.config.TableName, idx.config.VectorDim)

	if _, err = idx.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createVecIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		idx.config.TableName, idx.config.TableName)

	if _, err = idx.pool.Exec(ctx, createVecIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %v", err)
	}

	createFileIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_file_name_idx ON %s (file_name)`,
		idx.config.TableName, idx.config.TableName)

	if _, err = idx.pool.Exec(ctx, createFileIndex); err != nil {
		return fmt.Errorf("failed to create file name index: %v", err)
	}

	return nil
}

// Add embeds un-embedded chunks and inserts all of them in one transaction.
func (idx *PGVectorIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var missing []int
	var texts []string
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, sanitizeUTF8(chunks[i].Content))
		}
	}
	if len(missing) > 0 {
		vectors, err := idx.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %v", err)
		}
		for j, i := range missing {
			chunks[i].Embedding = vectors[j]
		}
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, file_name, content, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding`,
		idx.config.TableName)

	for _, ch := range chunks {
		_, err = tx.Exec(ctx, stmt,
			ch.ID,
			ch.FileName,
			sanitizeUTF8(ch.Content),
			ch.ChunkIndex,
			pgvector.NewVector(ch.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// DeleteByFile removes all chunks tagged with fileName; no-op when absent.
func (idx *PGVectorIndex) DeleteByFile(ctx context.Context, fileName string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE file_name = $1`, idx.config.TableName)
	if _, err := idx.pool.Exec(ctx, stmt, fileName); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %v", fileName, err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance, best first.
func (idx *PGVectorIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %v", err)
	}

	stmt := fmt.Sprintf(`
		SELECT id, file_name, content, chunk_index, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, stmt, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.FileName,
			&r.Chunk.Content,
			&r.Chunk.ChunkIndex,
			&r.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, r)
	}

	// ivfflat is approximate; keep the ranking contract explicit.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	return results, rows.Err()
}

// Close releases the connection pool. Safe on a nil or closed index.
func (idx *PGVectorIndex) Close() error {
	if idx == nil || idx.pool == nil {
		return nil
	}
	idx.pool.Close()
	idx.pool = nil
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
