// Package sqlitevec implements VectorStore using sqlite-vec. The schema
// holds numeric ids, embeddings and the (document_id, chunk_index) pair
// and nothing else: chunk text never enters this store.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// Metric names accepted by New.
const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
)

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
	metric     string
}

// New creates a new sqlite-vec store with the given distance metric.
func New(metric string) *Store {
	if metric == "" {
		metric = MetricL2
	}
	return &Store{metric: metric}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Metric returns the configured distance metric.
func (s *Store) Metric() string {
	return s.metric
}

// Init initializes the store at the given path for the given dimension.
func (s *Store) Init(path string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dimensions)
	}
	s.path = path
	s.dimensions = dimensions

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// createSchema creates the vector table. The id is the mapped chunk key;
// document_id and chunk_index are auxiliary columns so hits can be resolved
// back to the text store without reversing the id.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			id integer PRIMARY KEY,
			embedding float[%d],
			+document_id TEXT,
			+chunk_index INTEGER
		)
	`, s.dimensions))
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
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_vectors").Scan(&n); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// Insert writes vector records. Existing ids are replaced, which makes
// reconciliation retries idempotent.
func (s *Store) Insert(ctx context.Context, records []*types.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunk_vectors WHERE id = ?`)
	if err != nil {
		return err
	}
	defer delStmt.Close()

	insStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_vectors (id, embedding, document_id, chunk_index)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insStmt.Close()

	for _, rec := range records {
		if len(rec.Embedding) != s.dimensions {
			return fmt.Errorf("record %d: embedding has %d dimensions, store expects %d",
				rec.ID, len(rec.Embedding), s.dimensions)
		}
		// vec0 virtual tables reject INSERT OR REPLACE; delete first.
		if _, err := delStmt.ExecContext(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to replace vector %d: %w", rec.ID, err)
		}
		embBytes := floatsToBytes(rec.Embedding)
		if _, err := insStmt.ExecContext(ctx, rec.ID, embBytes, rec.DocumentID, rec.ChunkIndex); err != nil {
			return fmt.Errorf("failed to store vector %d: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes records by numeric id. Absent ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunk_vectors WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete vector %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// Search returns the topK nearest neighbors, closest first.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]types.VectorHit, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d", len(query), s.dimensions)
	}
	if topK <= 0 {
		topK = 10
	}

	distFn := "vec_distance_l2"
	if s.metric == MetricCosine {
		distFn = "vec_distance_cosine"
	}

	embBytes := floatsToBytes(query)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, chunk_index, %s(embedding, ?) AS distance
		FROM chunk_vectors
		ORDER BY distance ASC
		LIMIT ?
	`, distFn), embBytes, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []types.VectorHit
	for rows.Next() {
		var hit types.VectorHit
		if err := rows.Scan(&hit.ID, &hit.DocumentID, &hit.ChunkIndex, &hit.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListIDs returns the numeric id for every record keyed by its
// cross-store pair.
func (s *Store) ListIDs(ctx context.Context) (map[types.PairKey]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index FROM chunk_vectors
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[types.PairKey]int64)
	for rows.Next() {
		var id int64
		var key types.PairKey
		if err := rows.Scan(&id, &key.DocumentID, &key.ChunkIndex); err != nil {
			return nil, err
		}
		ids[key] = id
	}
	return ids, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// floatsToBytes converts float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
