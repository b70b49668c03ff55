// Package storage defines the vector store abstraction for the strata memory
// subsystem.
//
// A VectorStore holds one named collection per memory type and supports CRUD,
// similarity search, metadata filtering, and bulk export/import. Backends
// (embedded chromem index, PostgreSQL/pgvector) implement the same interface
// so the rest of the system never depends on the storage engine.
package storage

import (
	"context"

	"github.com/scrypster/strata/pkg/types"
)

// VectorStore is the per-collection record store consumed by the typed memory
// modules. Implementations must be safe for concurrent use and must leave a
// collection unchanged when an Add or Update fails.
type VectorStore interface {
	// Add stores a new record in the collection. The caller supplies the
	// embedding; Add never computes one. Returns ErrInvalidInput when the
	// record fails validation or its ID already exists in the collection.
	Add(ctx context.Context, collection string, record *types.MemoryRecord) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, collection, id string) (*types.MemoryRecord, error)

	// Update applies a patch to an existing record. A patch carrying neither
	// text nor metadata is a no-op and returns false. When the patch carries
	// new text the caller must supply the recomputed embedding alongside it.
	// Returns ErrNotFound if the record doesn't exist.
	Update(ctx context.Context, collection, id string, patch UpdatePatch) (bool, error)

	// Delete removes a record by ID. Returns false (without error) when the
	// record doesn't exist.
	Delete(ctx context.Context, collection, id string) (bool, error)

	// SearchByText embeds the query and returns up to limit records ranked by
	// cosine similarity in [0, 1], descending, ties broken by insertion
	// order. The filter, when non-nil, is applied before the limit.
	SearchByText(ctx context.Context, collection, query string, limit int, filter Filter) ([]SearchResult, error)

	// SearchByMetadata returns up to limit records matching the filter, in
	// insertion order, without ranking.
	SearchByMetadata(ctx context.Context, collection string, filter Filter, limit int) ([]*types.MemoryRecord, error)

	// GetAll returns up to limit records in insertion order.
	GetAll(ctx context.Context, collection string, limit int) ([]*types.MemoryRecord, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Clear removes every record in the collection.
	Clear(ctx context.Context, collection string) error

	// Backup writes the collection's full contents to
	// destDir/<collection>.json. Used only by the backup manager.
	Backup(ctx context.Context, collection, destDir string) error

	// Restore replaces the collection's contents with the export found at
	// srcDir/<collection>.json, re-embedding records whose export entry has
	// no embedding. Used only by the backup manager.
	Restore(ctx context.Context, collection, srcDir string) error

	// Close releases any resources held by the store.
	Close() error
}

// UpdatePatch describes a partial record update. Metadata, when non-nil,
// replaces the record's metadata wholesale; callers performing shallow merges
// read the record first and apply the merge before building the patch.
type UpdatePatch struct {
	// Text is the replacement content, or nil to leave the text unchanged.
	Text *string

	// Embedding is the recomputed vector accompanying a text change.
	// Required when Text is set; ignored otherwise.
	Embedding []float32

	// Metadata is the replacement metadata, or nil to leave it unchanged.
	Metadata *types.Metadata
}

// Empty reports whether the patch carries no changes.
func (p UpdatePatch) Empty() bool {
	return p.Text == nil && p.Metadata == nil
}

// SearchResult pairs a record with its similarity to the query.
type SearchResult struct {
	// Record is a copy of the matching record.
	Record *types.MemoryRecord

	// Similarity is the cosine similarity to the query, normalized to [0, 1].
	Similarity float64
}
