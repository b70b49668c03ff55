package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Ensure *Store implements storage.VectorStore at compile time.
var _ storage.VectorStore = (*Store)(nil)

// Store implements storage.VectorStore on PostgreSQL with pgvector.
type Store struct {
	db        *sql.DB
	provider  embedding.Provider
	dimension int
}

// New opens a store on the given PostgreSQL DSN and applies the schema.
// The pgvector extension is required; opening fails without it.
func New(dsn string, provider embedding.Provider) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("pgvector: embedding provider is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to ping database: %w", err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: vector extension unavailable: %w", err)
	}

	s := &Store{db: db, provider: provider, dimension: provider.Dimension()}

	if _, err := db.Exec(fmt.Sprintf(schemaTemplate, s.dimension)); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to apply schema: %w", err)
	}
	if _, err := db.Exec(migrationVectorIndex); err != nil {
		// The ANN index is an optimization; exact search still works.
		log.Printf("pgvector: failed to create vector index (search unaffected): %v", err)
	}
	return s, nil
}

// recordSelectColumns is the canonical SELECT column list. It must match the
// scan order in scanRecord.
const recordSelectColumns = `id, memory_type, content, metadata, embedding`

// scanRecord rebuilds a MemoryRecord from one row.
func scanRecord(scan func(dest ...any) error) (*types.MemoryRecord, error) {
	var (
		rec      types.MemoryRecord
		metaJSON []byte
		vec      pgvector.Vector
	)
	if err := scan(&rec.ID, &rec.Type, &rec.Text, &metaJSON, &vec); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("pgvector: failed to parse metadata: %w", err)
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

// Add stores a new record. Duplicate IDs are rejected with ErrInvalidInput.
func (s *Store) Add(ctx context.Context, collection string, record *types.MemoryRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", storage.ErrInvalidInput)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	vec := record.Embedding
	if len(vec) == 0 {
		vec = embedding.ZeroVector(s.dimension)
	}
	if len(vec) != s.dimension {
		return fmt.Errorf("%w: embedding dimension %d, expected %d",
			storage.ErrInvalidInput, len(vec), s.dimension)
	}

	metaJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("pgvector: failed to encode metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_records (collection, id, memory_type, content, metadata, embedding, embedding_norm)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, record.ID, record.Type, record.Text, string(metaJSON), pgvector.NewVector(vec), vectorNorm(vec))
	if err != nil {
		return fmt.Errorf("pgvector: failed to insert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgvector: failed to check insert result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: duplicate record ID %q in collection %s", storage.ErrInvalidInput, record.ID, collection)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, collection, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordSelectColumns+`
		FROM memory_records
		WHERE collection = $1 AND id = $2
	`, collection, id)

	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
		}
		return nil, fmt.Errorf("pgvector: failed to get record: %w", err)
	}
	return rec, nil
}

// Update applies a patch to an existing record inside a transaction, so the
// row is unchanged when the merged result fails validation.
func (s *Store) Update(ctx context.Context, collection, id string, patch storage.UpdatePatch) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	if patch.Text != nil && len(patch.Embedding) != s.dimension {
		return false, fmt.Errorf("%w: text update requires an embedding of dimension %d",
			storage.ErrInvalidInput, s.dimension)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("pgvector: failed to begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+recordSelectColumns+`
		FROM memory_records
		WHERE collection = $1 AND id = $2
		FOR UPDATE
	`, collection, id)
	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
		}
		return false, fmt.Errorf("pgvector: failed to read record for update: %w", err)
	}

	if patch.Text != nil {
		rec.Text = *patch.Text
		rec.Embedding = patch.Embedding
	}
	if patch.Metadata != nil {
		rec.Metadata = *patch.Metadata
	}
	if err := rec.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("pgvector: failed to encode metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_records
		SET content = $3, metadata = $4, embedding = $5, embedding_norm = $6
		WHERE collection = $1 AND id = $2
	`, collection, id, rec.Text, string(metaJSON), pgvector.NewVector(rec.Embedding), vectorNorm(rec.Embedding)); err != nil {
		return false, fmt.Errorf("pgvector: failed to update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("pgvector: failed to commit update: %w", err)
	}
	return true, nil
}

// Delete removes a record by ID. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_records WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return false, fmt.Errorf("pgvector: failed to delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgvector: failed to check delete result: %w", err)
	}
	return affected > 0, nil
}

// SearchByText embeds the query and returns up to limit records ranked by
// cosine similarity, descending, ties broken by insertion order. Records
// stored with a zero embedding never rank. A query that embeds to the zero
// vector matches nothing.
func (s *Store) SearchByText(ctx context.Context, collection, query string, limit int, filter storage.Filter) ([]storage.SearchResult, error) {
	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to embed query: %w", err)
	}
	if embedding.IsZero(queryVec) {
		return nil, nil
	}

	args := []any{collection, pgvector.NewVector(queryVec)}
	conditions := []string{"collection = $1", "embedding_norm > 0"}

	conditions, args, err = appendFilterClauses(conditions, args, filter)
	if err != nil {
		return nil, err
	}

	querySQL := `
		SELECT ` + recordSelectColumns + `,
		       GREATEST(0.0, LEAST(1.0, 1 - (embedding <=> $2))) AS similarity
		FROM memory_records
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY similarity DESC, seq ASC`
	if limit > 0 {
		args = append(args, limit)
		querySQL += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search query failed: %w", err)
	}
	defer rows.Close()

	var results []storage.SearchResult
	for rows.Next() {
		var (
			rec        types.MemoryRecord
			metaJSON   []byte
			vec        pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Text, &metaJSON, &vec, &similarity); err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan search row: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: failed to parse metadata: %w", err)
		}
		rec.Embedding = vec.Slice()
		results = append(results, storage.SearchResult{Record: &rec, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search iteration failed: %w", err)
	}
	return results, nil
}

// SearchByMetadata returns up to limit records matching the filter, in
// insertion order.
func (s *Store) SearchByMetadata(ctx context.Context, collection string, filter storage.Filter, limit int) ([]*types.MemoryRecord, error) {
	args := []any{collection}
	conditions := []string{"collection = $1"}

	conditions, args, err := appendFilterClauses(conditions, args, filter)
	if err != nil {
		return nil, err
	}

	querySQL := `
		SELECT ` + recordSelectColumns + `
		FROM memory_records
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY seq ASC`
	if limit > 0 {
		args = append(args, limit)
		querySQL += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryRecords(ctx, querySQL, args...)
}

// GetAll returns up to limit records in insertion order. A non-positive
// limit returns everything.
func (s *Store) GetAll(ctx context.Context, collection string, limit int) ([]*types.MemoryRecord, error) {
	args := []any{collection}
	querySQL := `
		SELECT ` + recordSelectColumns + `
		FROM memory_records
		WHERE collection = $1
		ORDER BY seq ASC`
	if limit > 0 {
		args = append(args, limit)
		querySQL += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRecords(ctx, querySQL, args...)
}

func (s *Store) queryRecords(ctx context.Context, querySQL string, args ...any) ([]*types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query failed: %w", err)
	}
	defer rows.Close()

	var records []*types.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iteration failed: %w", err)
	}
	return records, nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_records WHERE collection = $1
	`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgvector: failed to count records: %w", err)
	}
	return count, nil
}

// Clear removes every record in the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_records WHERE collection = $1
	`, collection); err != nil {
		return fmt.Errorf("pgvector: failed to clear collection: %w", err)
	}
	return nil
}

// Backup writes the collection's full contents to destDir/<collection>.json.
func (s *Store) Backup(ctx context.Context, collection, destDir string) error {
	records, err := s.GetAll(ctx, collection, 0)
	if err != nil {
		return err
	}
	if err := storage.WriteExport(destDir, collection, records); err != nil {
		return fmt.Errorf("pgvector: failed to back up collection %s: %w", collection, err)
	}
	return nil
}

// Restore replaces the collection's contents with the export found at
// srcDir/<collection>.json, inside one transaction. Export entries without
// an embedding are re-embedded; when the provider fails they are stored with
// the zero vector.
func (s *Store) Restore(ctx context.Context, collection, srcDir string) error {
	export, err := storage.ReadExport(srcDir, collection)
	if err != nil {
		return fmt.Errorf("pgvector: failed to read restore source for %s: %w", collection, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: failed to begin restore: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_records WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("pgvector: failed to clear collection for restore: %w", err)
	}

	for _, rec := range export.Records {
		vec := rec.Embedding
		if len(vec) == 0 {
			vec, err = s.provider.Embed(ctx, rec.Text)
			if err != nil {
				log.Printf("pgvector: re-embedding failed for %s, storing zero vector: %v", rec.ID, err)
				vec = embedding.ZeroVector(s.dimension)
			}
		}
		if len(vec) != s.dimension {
			return fmt.Errorf("%w: record %s embedding dimension %d, expected %d",
				storage.ErrInvalidInput, rec.ID, len(vec), s.dimension)
		}
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: failed to encode metadata for %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_records (collection, id, memory_type, content, metadata, embedding, embedding_norm)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, collection, rec.ID, rec.Type, rec.Text, string(metaJSON), pgvector.NewVector(vec), vectorNorm(vec)); err != nil {
			return fmt.Errorf("pgvector: failed to restore record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: failed to commit restore: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// TruncateForTest removes every record. Used by tests to isolate runs.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE memory_records`)
	return err
}

func vectorNorm(vec []float32) float64 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	return math.Sqrt(norm)
}
