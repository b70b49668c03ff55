// Package reflection generates and stores periodic reflection documents:
// summaries of the recent episodic window with extracted insights, written
// once per calendar day or ISO week.
package reflection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Repository stores reflection documents as JSON files, one per period:
// daily/2006-01-02.json and weekly/2006-W01.json under the base directory.
// Re-running a period overwrites its document wholesale.
type Repository struct {
	baseDir string
}

// NewRepository creates the reflection file store rooted at baseDir,
// creating the daily and weekly subdirectories if needed.
func NewRepository(baseDir string) (*Repository, error) {
	for _, sub := range []string{types.ReflectionDaily, types.ReflectionWeekly} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("reflection: failed to create %s directory: %w", sub, err)
		}
	}
	return &Repository{baseDir: baseDir}, nil
}

// Dir returns the repository's base directory. The backup manager copies it
// into snapshots.
func (r *Repository) Dir() string {
	return r.baseDir
}

// PeriodKey returns the file key for a reflection: the calendar date for
// daily reflections, the ISO week for weekly ones.
func PeriodKey(reflectionType string, ts types.ReflectionRecord) string {
	return periodKey(reflectionType, ts)
}

func periodKey(reflectionType string, rec types.ReflectionRecord) string {
	if reflectionType == types.ReflectionWeekly {
		year, week := rec.Timestamp.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return rec.Timestamp.Format("2006-01-02")
}

func (r *Repository) pathFor(rec *types.ReflectionRecord) string {
	return filepath.Join(r.baseDir, rec.Type, periodKey(rec.Type, *rec)+".json")
}

// Save writes a reflection document, replacing any existing document for the
// same period.
func (r *Repository) Save(rec *types.ReflectionRecord) error {
	if !types.IsValidReflectionType(rec.Type) {
		return fmt.Errorf("%w: unknown reflection type %q", storage.ErrInvalidInput, rec.Type)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("reflection: failed to marshal reflection %s: %w", rec.ID, err)
	}
	path := r.pathFor(rec)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("reflection: failed to write %s: %w", path, err)
	}
	return nil
}

// List returns metadata for stored reflections of the given type, most
// recent first. A non-positive limit returns all of them.
func (r *Repository) List(reflectionType string, limit int) ([]types.ReflectionInfo, error) {
	files, err := r.sortedFiles(reflectionType)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	infos := make([]types.ReflectionInfo, 0, len(files))
	for _, name := range files {
		rec, err := r.load(reflectionType, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, types.ReflectionInfo{
			ID:          rec.ID,
			Type:        rec.Type,
			Timestamp:   rec.Timestamp,
			Title:       rec.Title,
			MemoryCount: rec.MemoryCount,
		})
	}
	return infos, nil
}

// Latest returns the most recent reflection of the given type. Returns
// storage.ErrNotFound when none is stored.
func (r *Repository) Latest(reflectionType string) (*types.ReflectionRecord, error) {
	files, err := r.sortedFiles(reflectionType)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s reflections stored", storage.ErrNotFound, reflectionType)
	}
	return r.load(reflectionType, files[0])
}

// Get returns the reflection with the given ID, searching both types.
// Returns storage.ErrNotFound when no document carries the ID.
func (r *Repository) Get(id string) (*types.ReflectionRecord, error) {
	for _, reflectionType := range []string{types.ReflectionDaily, types.ReflectionWeekly} {
		files, err := r.sortedFiles(reflectionType)
		if err != nil {
			return nil, err
		}
		for _, name := range files {
			rec, err := r.load(reflectionType, name)
			if err != nil {
				return nil, err
			}
			if rec.ID == id {
				return rec, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: reflection %s", storage.ErrNotFound, id)
}

// sortedFiles lists the period files for a type, newest first. Period keys
// sort lexicographically in date order.
func (r *Repository) sortedFiles(reflectionType string) ([]string, error) {
	if !types.IsValidReflectionType(reflectionType) {
		return nil, fmt.Errorf("%w: unknown reflection type %q", storage.ErrInvalidInput, reflectionType)
	}
	entries, err := os.ReadDir(filepath.Join(r.baseDir, reflectionType))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reflection: failed to list %s reflections: %w", reflectionType, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

func (r *Repository) load(reflectionType, name string) (*types.ReflectionRecord, error) {
	path := filepath.Join(r.baseDir, reflectionType, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reflection: failed to read %s: %w", path, err)
	}
	var rec types.ReflectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("reflection: failed to parse %s: %w", path, err)
	}
	return &rec, nil
}
