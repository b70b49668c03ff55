package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scrypster/strata/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Collection name constants: one collection per memory type.
const (
	CollectionCore     = "core_memories"
	CollectionEpisodic = "episodic_memories"
	CollectionSemantic = "semantic_memories"
	CollectionPersonal = "personal_memories"
)

// Collections maps each memory type to its owning collection name.
var Collections = map[string]string{
	types.TypeCore:     CollectionCore,
	types.TypeEpisodic: CollectionEpisodic,
	types.TypeSemantic: CollectionSemantic,
	types.TypePersonal: CollectionPersonal,
}

// CollectionFor returns the collection name for a memory type.
// Returns ErrInvalidInput for an unknown type.
func CollectionFor(memoryType string) (string, error) {
	name, ok := Collections[memoryType]
	if !ok {
		return "", fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, memoryType)
	}
	return name, nil
}

// CollectionExport is the bulk export envelope written by Backup and read by
// Restore. One file per collection, named <collection>.json.
type CollectionExport struct {
	Collection string                `json:"collection"`  // Collection name
	ExportedAt time.Time             `json:"exported_at"` // When the export was written
	Count      int                   `json:"count"`       // len(Records), for quick manifest checks
	Records    []*types.MemoryRecord `json:"records"`     // Full record contents, embeddings included
}

// ExportFilename returns the export file name for a collection.
func ExportFilename(collection string) string {
	return collection + ".json"
}

// WriteExport writes a collection export to destDir atomically (temp file,
// then rename), creating destDir if needed.
func WriteExport(destDir, collection string, records []*types.MemoryRecord) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("storage: create export dir: %w", err)
	}

	export := CollectionExport{
		Collection: collection,
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}

	data, err := json.MarshalIndent(&export, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal export: %w", err)
	}

	final := filepath.Join(destDir, ExportFilename(collection))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write export: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: finalize export: %w", err)
	}
	return nil
}

// ReadExport loads a collection export from srcDir.
// Returns ErrNotFound when the export file does not exist.
func ReadExport(srcDir, collection string) (*CollectionExport, error) {
	path := filepath.Join(srcDir, ExportFilename(collection))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: export file %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("storage: read export: %w", err)
	}

	var export CollectionExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("storage: parse export %s: %w", path, err)
	}
	return &export, nil
}
