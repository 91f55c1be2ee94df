// Package registry tracks which documents exist in the corpus. It is the
// source of truth for name conflicts during ingestion; the stored-copy
// directory is a derived cache, not the index.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ptit-ai/campusbot/internal/models"
)

// SQLiteRegistry implements the document registry over SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// Open opens or creates the registry database at dbPath. Parent directories
// are created if they do not exist.
func Open(dbPath string) (*SQLiteRegistry, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		file_name TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		ingested_at TIMESTAMP NOT NULL,
		chunk_count INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

// Exists reports whether a document with the given corpus key is registered.
func (r *SQLiteRegistry) Exists(ctx context.Context, fileName string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE file_name = ?`, fileName).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put inserts or replaces the document record.
func (r *SQLiteRegistry) Put(ctx context.Context, doc models.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (file_name, source_path, ingested_at, chunk_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (file_name) DO UPDATE SET
			source_path = excluded.source_path,
			ingested_at = excluded.ingested_at,
			chunk_count = excluded.chunk_count`,
		doc.FileName, doc.SourcePath, doc.IngestedAt, doc.ChunkCount,
	)
	return err
}

// Remove deletes the document record; removing an unknown name is a no-op.
func (r *SQLiteRegistry) Remove(ctx context.Context, fileName string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE file_name = ?`, fileName)
	return err
}

// List returns all registered documents ordered by file name.
func (r *SQLiteRegistry) List(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT file_name, source_path, ingested_at, chunk_count
		 FROM documents ORDER BY file_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.FileName, &doc.SourcePath, &doc.IngestedAt, &doc.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Clear removes every document record.
func (r *SQLiteRegistry) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}

// Close releases the database handle. Safe on a nil registry.
func (r *SQLiteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
