// Package sqlite implements TextStore on SQLite. It is the authoritative
// store for document and chunk text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Store implements the TextStore interface using SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a new SQLite text store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlite"
}

// Init opens the database at the given path and creates the schema.
func (s *Store) Init(path string) error {
	s.path = path

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks
	// instead of failing immediately.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			full_text TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			toc_json TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(document_id, chunk_index)
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`)
	return err
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return types.ErrStoreUnavailable
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// CreateDocument persists a document and all its chunks in one transaction.
// A content-hash collision returns types.ErrDuplicateDocument; the caller
// decides whether that is an error (for the coordinator it is not).
func (s *Store) CreateDocument(ctx context.Context, doc *types.Document, chunks []*types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, full_text, content_hash, created_at, chunk_count, toc_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.FullText, doc.ContentHash, doc.CreatedAt, doc.ChunkCount, doc.TOCJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: content hash %s", types.ErrDuplicateDocument, doc.ContentHash)
		}
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Text, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, filename, full_text, content_hash, created_at, chunk_count, toc_json
		FROM documents WHERE id = ?
	`, id))
}

// GetDocumentByHash retrieves a document by content hash. This is the
// lookup the idempotent-ingest path and the duplicate-loser path both use.
func (s *Store) GetDocumentByHash(ctx context.Context, hash string) (*types.Document, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx, `
		SELECT id, filename, full_text, content_hash, created_at, chunk_count, toc_json
		FROM documents WHERE content_hash = ?
	`, hash))
}

func (s *Store) scanDocument(row *sql.Row) (*types.Document, error) {
	var doc types.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FullText, &doc.ContentHash,
		&doc.CreatedAt, &doc.ChunkCount, &doc.TOCJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents ordered by creation time, full text
// omitted to keep listings cheap.
func (s *Store) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, content_hash, created_at, chunk_count
		FROM documents ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// GetChunkByID retrieves a chunk by its id.
func (s *Store) GetChunkByID(ctx context.Context, id string) (*types.Chunk, error) {
	return s.scanChunk(s.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, text, created_at
		FROM chunks WHERE id = ?
	`, id))
}

// GetChunkAt retrieves a chunk by (document_id, chunk_index), the key
// vector hits are resolved through.
func (s *Store) GetChunkAt(ctx context.Context, documentID string, chunkIndex int) (*types.Chunk, error) {
	return s.scanChunk(s.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, text, created_at
		FROM chunks WHERE document_id = ? AND chunk_index = ?
	`, documentID, chunkIndex))
}

func (s *Store) scanChunk(row *sql.Row) (*types.Chunk, error) {
	var c types.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChunkRefs lists every chunk as a ref, ordered for stable reports.
func (s *Store) ListChunkRefs(ctx context.Context) ([]types.ChunkRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index
		FROM chunks ORDER BY document_id, chunk_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []types.ChunkRef
	for rows.Next() {
		var ref types.ChunkRef
		if err := rows.Scan(&ref.ChunkID, &ref.DocumentID, &ref.ChunkIndex); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteDocument removes a document and all its chunks. Absent documents
// are not an error, so a retried delete converges.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}

	return tx.Commit()
}

// Counts returns the number of documents and chunks.
func (s *Store) Counts(ctx context.Context) (int, int, error) {
	var documents, chunks int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return documents, chunks, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Ensure Store implements TextStore interface
var _ provider.TextStore = (*Store)(nil)
