// Package chromem provides the embedded, file-persisted implementation of
// storage.VectorStore, built on the pure-Go chromem-go vector database.
//
// Records live in per-collection in-memory maps that preserve insertion
// order; chromem-go holds a parallel similarity index over every record with
// a non-zero embedding. Each mutation is written through to a per-collection
// JSON export file, so a restart reloads the exact prior state.
package chromem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/strata/internal/embedding"
	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Store implements storage.VectorStore on an embedded chromem-go database.
type Store struct {
	mu          sync.RWMutex
	dataDir     string // empty means in-memory only, no persistence
	provider    embedding.Provider
	db          *chromem.DB
	collections map[string]*collection
}

// collection pairs the authoritative record map with its similarity index.
// order holds record IDs in insertion order; it is the source of truth for
// enumeration and for similarity tie-breaking.
type collection struct {
	name    string
	records map[string]*types.MemoryRecord
	order   []string
	index   *chromem.Collection
}

// New opens a store rooted at dataDir, loading any collection export files
// found there. An empty dataDir yields a purely in-memory store.
func New(dataDir string, provider embedding.Provider) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("chromem: embedding provider is required")
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("chromem: failed to create data dir: %w", err)
		}
	}

	s := &Store{
		dataDir:     dataDir,
		provider:    provider,
		db:          chromem.NewDB(),
		collections: make(map[string]*collection),
	}

	if dataDir != "" {
		if err := s.loadFromDisk(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// loadFromDisk rebuilds every collection from its export file.
func (s *Store) loadFromDisk() error {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, "*.json"))
	if err != nil {
		return fmt.Errorf("chromem: failed to scan data dir: %w", err)
	}

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		export, err := storage.ReadExport(s.dataDir, name)
		if err != nil {
			return fmt.Errorf("chromem: failed to load collection %s: %w", name, err)
		}

		col, err := s.createCollection(name)
		if err != nil {
			return err
		}
		for _, rec := range export.Records {
			clone := rec.Clone()
			if err := s.insertLocked(context.Background(), col, clone); err != nil {
				return fmt.Errorf("chromem: failed to rebuild collection %s: %w", name, err)
			}
		}
		log.Printf("chromem: loaded collection %s (%d records)", name, len(col.order))
	}
	return nil
}

// createCollection registers a new collection and its chromem index.
// Caller must hold the write lock (or be inside New before publication).
func (s *Store) createCollection(name string) (*collection, error) {
	index, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to create collection %s: %w", name, err)
	}
	col := &collection{
		name:    name,
		records: make(map[string]*types.MemoryRecord),
		index:   index,
	}
	s.collections[name] = col
	return col, nil
}

// getOrCreate returns the named collection, creating it on first use.
// Caller must hold the write lock.
func (s *Store) getOrCreate(name string) (*collection, error) {
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	return s.createCollection(name)
}

// get returns the named collection or nil when it was never created.
// Caller must hold at least the read lock.
func (s *Store) get(name string) *collection {
	return s.collections[name]
}

// insertLocked adds a record (already cloned, never aliased by the caller) to
// the collection maps and, when its embedding is usable, the chromem index.
// Caller must hold the write lock.
func (s *Store) insertLocked(ctx context.Context, col *collection, rec *types.MemoryRecord) error {
	if len(rec.Embedding) == 0 {
		rec.Embedding = embedding.ZeroVector(s.provider.Dimension())
	}
	if _, exists := col.records[rec.ID]; exists {
		return fmt.Errorf("%w: duplicate record ID %q in collection %s", storage.ErrInvalidInput, rec.ID, col.name)
	}

	if err := s.indexLocked(ctx, col, rec); err != nil {
		return err
	}
	col.records[rec.ID] = rec
	col.order = append(col.order, rec.ID)
	return nil
}

// indexLocked adds the record to the chromem index. Zero-norm embeddings are
// skipped: chromem normalizes vectors on insert and a zero vector cannot be
// normalized. Such records stay retrievable but never rank in searches.
func (s *Store) indexLocked(ctx context.Context, col *collection, rec *types.MemoryRecord) error {
	if embedding.IsZero(rec.Embedding) {
		return nil
	}
	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata:  docMetadata(rec),
	}
	if err := col.index.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: failed to index record %s: %w", rec.ID, err)
	}
	return nil
}

// unindexLocked removes the record from the chromem index if present.
func (s *Store) unindexLocked(ctx context.Context, col *collection, id string) error {
	if err := col.index.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("chromem: failed to unindex record %s: %w", id, err)
	}
	return nil
}

// removeLocked deletes a record from the maps and the index.
// Caller must hold the write lock.
func (s *Store) removeLocked(ctx context.Context, col *collection, id string) error {
	if err := s.unindexLocked(ctx, col, id); err != nil {
		return err
	}
	delete(col.records, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return nil
}

// persistLocked writes the collection's current contents through to disk.
// Caller must hold the write lock.
func (s *Store) persistLocked(col *collection) error {
	if s.dataDir == "" {
		return nil
	}
	records := make([]*types.MemoryRecord, 0, len(col.order))
	for _, id := range col.order {
		records = append(records, col.records[id])
	}
	if err := storage.WriteExport(s.dataDir, col.name, records); err != nil {
		return fmt.Errorf("chromem: failed to persist collection %s: %w", col.name, err)
	}
	return nil
}

// Add stores a new record. The collection stays unchanged when validation,
// indexing, or persistence fails.
func (s *Store) Add(ctx context.Context, collection string, record *types.MemoryRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", storage.ErrInvalidInput)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if len(record.Embedding) != 0 && len(record.Embedding) != s.provider.Dimension() {
		return fmt.Errorf("%w: embedding dimension %d, expected %d",
			storage.ErrInvalidInput, len(record.Embedding), s.provider.Dimension())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.getOrCreate(collection)
	if err != nil {
		return err
	}
	clone := record.Clone()
	if err := s.insertLocked(ctx, col, clone); err != nil {
		return err
	}
	if err := s.persistLocked(col); err != nil {
		if rbErr := s.removeLocked(ctx, col, clone.ID); rbErr != nil {
			log.Printf("chromem: rollback of failed add %s: %v", clone.ID, rbErr)
		}
		return err
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, collection, id string) (*types.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.get(collection)
	if col == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
	}
	rec, ok := col.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
	}
	return rec.Clone(), nil
}

// Update applies a patch to an existing record. The collection stays
// unchanged when the patch is invalid or persistence fails.
func (s *Store) Update(ctx context.Context, collection, id string, patch storage.UpdatePatch) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	if patch.Text != nil && len(patch.Embedding) != s.provider.Dimension() {
		return false, fmt.Errorf("%w: text update requires an embedding of dimension %d",
			storage.ErrInvalidInput, s.provider.Dimension())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.get(collection)
	if col == nil {
		return false, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
	}
	prev, ok := col.records[id]
	if !ok {
		return false, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, collection, id)
	}

	next := prev.Clone()
	if patch.Text != nil {
		next.Text = *patch.Text
		next.Embedding = append([]float32(nil), patch.Embedding...)
	}
	if patch.Metadata != nil {
		next.Metadata = cloneMetadata(patch.Metadata)
	}
	if err := next.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if err := s.reindexLocked(ctx, col, next); err != nil {
		return false, err
	}
	col.records[id] = next

	if err := s.persistLocked(col); err != nil {
		col.records[id] = prev
		if rbErr := s.reindexLocked(ctx, col, prev); rbErr != nil {
			log.Printf("chromem: rollback of failed update %s: %v", id, rbErr)
		}
		return false, err
	}
	return true, nil
}

// reindexLocked replaces the record's chromem document with its current
// content, metadata, and embedding.
func (s *Store) reindexLocked(ctx context.Context, col *collection, rec *types.MemoryRecord) error {
	if err := s.unindexLocked(ctx, col, rec.ID); err != nil {
		return err
	}
	return s.indexLocked(ctx, col, rec)
}

// Delete removes a record by ID. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.get(collection)
	if col == nil {
		return false, nil
	}
	prev, ok := col.records[id]
	if !ok {
		return false, nil
	}

	if err := s.removeLocked(ctx, col, id); err != nil {
		return false, err
	}
	if err := s.persistLocked(col); err != nil {
		if rbErr := s.insertLocked(ctx, col, prev); rbErr != nil {
			log.Printf("chromem: rollback of failed delete %s: %v", id, rbErr)
		}
		return false, err
	}
	return true, nil
}

// GetAll returns up to limit records in insertion order. A non-positive
// limit returns everything.
func (s *Store) GetAll(ctx context.Context, collection string, limit int) ([]*types.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.get(collection)
	if col == nil {
		return nil, nil
	}
	out := make([]*types.MemoryRecord, 0, len(col.order))
	for _, id := range col.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, col.records[id].Clone())
	}
	return out, nil
}

// SearchByMetadata returns up to limit records matching the filter, in
// insertion order. A non-positive limit returns every match.
func (s *Store) SearchByMetadata(ctx context.Context, collection string, filter storage.Filter, limit int) ([]*types.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.get(collection)
	if col == nil {
		return nil, nil
	}
	var out []*types.MemoryRecord
	for _, id := range col.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec := col.records[id]
		if filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.get(collection)
	if col == nil {
		return 0, nil
	}
	return len(col.order), nil
}

// Clear removes every record in the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.get(collection)
	if col == nil {
		return nil
	}

	if err := s.db.DeleteCollection(col.name); err != nil {
		return fmt.Errorf("chromem: failed to drop collection %s: %w", col.name, err)
	}
	index, err := s.db.CreateCollection(col.name, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: failed to recreate collection %s: %w", col.name, err)
	}
	col.index = index
	col.records = make(map[string]*types.MemoryRecord)
	col.order = nil

	return s.persistLocked(col)
}

// Backup writes the collection's full contents to destDir/<collection>.json.
func (s *Store) Backup(ctx context.Context, collection, destDir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*types.MemoryRecord
	if col := s.get(collection); col != nil {
		records = make([]*types.MemoryRecord, 0, len(col.order))
		for _, id := range col.order {
			records = append(records, col.records[id])
		}
	}
	if err := storage.WriteExport(destDir, collection, records); err != nil {
		return fmt.Errorf("chromem: failed to back up collection %s: %w", collection, err)
	}
	return nil
}

// Restore replaces the collection's contents with the export found at
// srcDir/<collection>.json. Export entries without an embedding are
// re-embedded; when the provider fails they are stored with the zero vector.
func (s *Store) Restore(ctx context.Context, collection, srcDir string) error {
	export, err := storage.ReadExport(srcDir, collection)
	if err != nil {
		return fmt.Errorf("chromem: failed to read restore source for %s: %w", collection, err)
	}

	if err := s.Clear(ctx, collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.getOrCreate(collection)
	if err != nil {
		return err
	}
	for _, rec := range export.Records {
		clone := rec.Clone()
		if len(clone.Embedding) == 0 {
			vec, err := s.provider.Embed(ctx, clone.Text)
			if err != nil {
				log.Printf("chromem: re-embedding failed for %s, storing zero vector: %v", clone.ID, err)
				vec = embedding.ZeroVector(s.provider.Dimension())
			}
			clone.Embedding = vec
		}
		if err := s.insertLocked(ctx, col, clone); err != nil {
			return fmt.Errorf("chromem: failed to restore record %s: %w", clone.ID, err)
		}
	}
	return s.persistLocked(col)
}

// Close flushes nothing (writes are synchronous) and releases no resources;
// it exists to satisfy storage.VectorStore.
func (s *Store) Close() error {
	return nil
}

// cloneMetadata deep-copies a metadata value via the record clone path.
func cloneMetadata(m *types.Metadata) types.Metadata {
	tmp := types.MemoryRecord{Metadata: *m}
	return tmp.Clone().Metadata
}

// docMetadata projects the record's string-typed metadata into the flat
// string map chromem filters on. Keys and values must stay aligned with
// storage.Filter.Matches so the pushdown path and the scan path agree; only
// string fields are projected because chromem can match nothing else.
func docMetadata(rec *types.MemoryRecord) map[string]string {
	meta := make(map[string]string, 8)
	for key, value := range rec.Metadata.Extra {
		if str, ok := value.(string); ok {
			meta[key] = str
		}
	}
	meta["category"] = rec.Metadata.Category
	meta["subtype"] = rec.Metadata.Subtype
	meta["event_type"] = rec.Metadata.EventType
	meta["user_id"] = rec.Metadata.UserID
	meta["refinement"] = rec.Metadata.Refinement
	meta["date"] = rec.Metadata.Date
	meta["concept_name"] = rec.Metadata.ConceptName
	meta["source"] = rec.Metadata.Source
	return meta
}
