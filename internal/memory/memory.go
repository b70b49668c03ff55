// Package memory implements the typed memory layers of the strata subsystem
// and the Manager that fronts them.
//
// Each layer (core, episodic, semantic, personal) wraps one vector store
// collection, fills in the type's metadata defaults on write, and exposes the
// retrieval helpers that layer is asked for. The Manager routes by memory
// type, owns cross-type search, and is the only entry point front ends use.
package memory

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// timestampFormat is the human-readable timestamp used in rendered summaries.
const timestampFormat = "2006-01-02 15:04:05"

// base holds what every typed memory module needs: the store, the embedding
// provider, and the collection the module owns. The typed modules embed it
// and inherit the pass-through record operations, so Consolidator and
// Reflector never talk to the VectorStore directly.
type base struct {
	store      storage.VectorStore
	provider   embedding.Provider
	collection string
}

// add fills record-level defaults and stores the record. A missing ID gets a
// generated UUID, a zero timestamp gets the current time, importance is
// clamped, and a missing embedding is computed from the text (degrading to a
// zero vector when the provider fails).
func (b *base) add(ctx context.Context, rec *types.MemoryRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Metadata.Timestamp.IsZero() {
		rec.Metadata.Timestamp = time.Now().UTC()
	}
	rec.Metadata.Importance = types.ClampImportance(rec.Metadata.Importance)
	if len(rec.Embedding) == 0 {
		rec.Embedding = embedding.SafeEmbed(ctx, b.provider, rec.Text, log.Default())
	}
	if err := b.store.Add(ctx, b.collection, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Collection returns the name of the collection this module owns.
func (b *base) Collection() string {
	return b.collection
}

// Get retrieves a record by ID.
func (b *base) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	return b.store.Get(ctx, b.collection, id)
}

// GetAll returns up to limit records in insertion order.
func (b *base) GetAll(ctx context.Context, limit int) ([]*types.MemoryRecord, error) {
	return b.store.GetAll(ctx, b.collection, limit)
}

// Search returns up to limit records ranked by similarity to the query.
func (b *base) Search(ctx context.Context, query string, limit int, filter storage.Filter) ([]storage.SearchResult, error) {
	return b.store.SearchByText(ctx, b.collection, query, limit, filter)
}

// SearchByMetadata returns up to limit records matching the filter, in
// insertion order.
func (b *base) SearchByMetadata(ctx context.Context, filter storage.Filter, limit int) ([]*types.MemoryRecord, error) {
	return b.store.SearchByMetadata(ctx, b.collection, filter, limit)
}

// UpdateRecord applies a partial update to a record. An empty text leaves the
// content unchanged; changed text is re-embedded. The metadata patch is
// shallow-merged onto the existing metadata, with unknown keys landing in
// Extra. Returns false when the update carries no changes.
func (b *base) UpdateRecord(ctx context.Context, id, text string, patch map[string]any) (bool, error) {
	if text == "" && len(patch) == 0 {
		return false, nil
	}

	rec, err := b.store.Get(ctx, b.collection, id)
	if err != nil {
		return false, err
	}

	merged := rec.Metadata.Clone()
	merged.ApplyPatch(patch)

	storePatch := storage.UpdatePatch{Metadata: &merged}
	if text != "" && text != rec.Text {
		storePatch.Text = &text
		storePatch.Embedding = embedding.SafeEmbed(ctx, b.provider, text, log.Default())
	}
	return b.store.Update(ctx, b.collection, id, storePatch)
}

// UpdateMetadata replaces a record's metadata wholesale. Used by maintenance
// jobs that already hold the record and mutate its typed fields directly.
func (b *base) UpdateMetadata(ctx context.Context, id string, meta types.Metadata) (bool, error) {
	return b.store.Update(ctx, b.collection, id, storage.UpdatePatch{Metadata: &meta})
}

// DeleteRecord removes a record by ID. Returns false when the record does
// not exist.
func (b *base) DeleteRecord(ctx context.Context, id string) (bool, error) {
	return b.store.Delete(ctx, b.collection, id)
}

// Count returns the number of records in the collection.
func (b *base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx, b.collection)
}

// sortByImportanceDesc orders records by importance, most important first.
// Ties keep their relative order.
func sortByImportanceDesc(records []*types.MemoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.Importance > records[j].Metadata.Importance
	})
}

// sortByTimestampDesc orders records by creation time, most recent first.
// Ties keep their relative order.
func sortByTimestampDesc(records []*types.MemoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.Timestamp.After(records[j].Metadata.Timestamp)
	})
}

// truncateRecords limits a record list to n entries. A non-positive n leaves
// the list unchanged.
func truncateRecords(records []*types.MemoryRecord, n int) []*types.MemoryRecord {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}
