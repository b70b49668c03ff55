// Package backup provides versioned, retention-governed snapshots of the
// memory subsystem: per-collection vector store exports plus reflection and
// auxiliary files, cataloged in an embedded SQLite database, with optional
// zip compression and a cancellable scheduled loop.
package backup

import (
	"errors"
	"time"

	"github.com/scrypster/strata/internal/storage"
)

// ErrBackupNotFound is returned when no catalog entry matches the requested
// ID or filename.
var ErrBackupNotFound = errors.New("backup not found")

// DefaultRetentionDays applies to any backup type without a configured
// retention policy.
const DefaultRetentionDays = 30

// DefaultInterval is the scheduled loop's cycle length when unconfigured.
const DefaultInterval = 24 * time.Hour

// Config holds the backup manager's configuration.
type Config struct {
	// BackupDir is where snapshot directories/archives and the catalog live.
	BackupDir string

	// CatalogPath overrides the catalog database location
	// (default: <BackupDir>/catalog.db).
	CatalogPath string

	// Store is the vector store whose collections are snapshotted.
	Store storage.VectorStore

	// ReflectionsDir is the reflection repository directory copied into each
	// snapshot. Empty skips reflections.
	ReflectionsDir string

	// AuxiliaryFiles are extra files (conversation logs, history) copied
	// into each snapshot. Missing files are skipped, not errors.
	AuxiliaryFiles []string

	// Interval is the scheduled loop's cycle length (default: 24h).
	Interval time.Duration

	// Compress zips scheduled and manual snapshots into a single archive.
	Compress bool

	// Retention maps backup types to retention days. Types without an entry
	// use DefaultRetentionDays.
	Retention map[string]int
}

// manifestName is the snapshot metadata file written into every backup.
const manifestName = "backup_info.json"

// Manifest is the metadata document written at the root of every snapshot.
type Manifest struct {
	Timestamp     time.Time      `json:"timestamp"`
	Date          string         `json:"date"` // YYYY-MM-DD, for quick scanning
	BackupType    string         `json:"backup_type"`
	Description   string         `json:"description"`
	MemoryCounts  map[string]int `json:"memory_counts"`
	TotalMemories int            `json:"total_memories"`
}

// HealthStatus reports the backup manager's operational state.
type HealthStatus struct {
	// Status is "healthy" or "warning".
	Status string

	// Message provides additional context about the status.
	Message string

	// LastBackup is when the last successful backup completed.
	LastBackup time.Time

	// NextBackup is when the next scheduled backup is due (zero when the
	// scheduled loop is not running).
	NextBackup time.Time

	// TotalBackups is the number of complete backups in the catalog.
	TotalBackups int

	// BackupDir is the snapshot storage directory.
	BackupDir string

	// DiskSpaceUsed is total bytes used under BackupDir.
	DiskSpaceUsed int64
}
