package types

import "time"

// Operation status constants used by result objects.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OperationResult is the result object returned by public subsystem
// operations. Front ends render Status and Message directly instead of
// special-casing errors.
type OperationResult struct {
	Status  string `json:"status"`            // ok or error
	Message string `json:"message,omitempty"` // Human-readable outcome description
}

// OK reports whether the operation succeeded.
func (r OperationResult) OK() bool { return r.Status == StatusOK }

// BackupResult describes the outcome of a backup run.
type BackupResult struct {
	OperationResult
	BackupID   int64          `json:"backup_id,omitempty"`   // Catalog row of the recorded backup
	Filename   string         `json:"filename,omitempty"`    // Snapshot name
	BackupType string         `json:"backup_type,omitempty"` // Effective backup type
	SizeBytes  int64          `json:"size_bytes,omitempty"`  // Final snapshot size
	Counts     map[string]int `json:"counts,omitempty"`      // Per-memory-type counts at snapshot time
	Duration   time.Duration  `json:"duration,omitempty"`    // Wall-clock time of the run
}

// RestoreResult describes the outcome of a restore run.
type RestoreResult struct {
	OperationResult
	Filename string         `json:"filename,omitempty"` // Snapshot the data was restored from
	Counts   map[string]int `json:"counts,omitempty"`   // Per-memory-type counts after restore
}

// ConsolidationResult describes the outcome of a consolidation run for one
// collection.
type ConsolidationResult struct {
	OperationResult
	Collection string `json:"collection,omitempty"` // Memory type the run operated on
	Merged     int    `json:"merged"`               // Secondaries deleted into primaries
	Archived   int    `json:"archived"`             // Records archived in place
	Total      int    `json:"total"`                // Candidate records examined
}
