package types

import "time"

// Backup type constants. Scheduled runs pick one of the calendar types
// (daily/weekly/monthly/yearly); manual backups use TypeManual.
const (
	BackupManual    = "manual"
	BackupDaily     = "daily"
	BackupWeekly    = "weekly"
	BackupMonthly   = "monthly"
	BackupYearly    = "yearly"
	BackupScheduled = "scheduled"
)

// ValidBackupTypes contains all valid backup type values.
var ValidBackupTypes = []string{
	BackupManual,
	BackupDaily,
	BackupWeekly,
	BackupMonthly,
	BackupYearly,
	BackupScheduled,
}

// IsValidBackupType checks if the given type is a valid backup type.
func IsValidBackupType(backupType string) bool {
	for _, t := range ValidBackupTypes {
		if backupType == t {
			return true
		}
	}
	return false
}

// Backup status constants. A record is created as complete or failed and only
// ever transitions complete → deleted, when the retention sweep removes its
// snapshot file.
const (
	BackupStatusComplete = "complete"
	BackupStatusFailed   = "failed"
	BackupStatusDeleted  = "deleted"
)

// BackupRecord is a catalog row describing one backup snapshot.
type BackupRecord struct {
	ID            int64          `json:"id"`             // Catalog row ID (autoincrement)
	Timestamp     time.Time      `json:"timestamp"`      // When the backup was taken
	Filename      string         `json:"filename"`       // Snapshot name (directory or .zip under the backup dir)
	BackupType    string         `json:"backup_type"`    // manual, daily, weekly, monthly, yearly, scheduled
	SizeBytes     int64          `json:"size_bytes"`     // Archive or directory size at completion
	MemoryCounts  map[string]int `json:"memory_counts"`  // Per-memory-type record counts at snapshot time
	Description   string         `json:"description"`    // Free-form description; "Failed: ..." on failure
	Status        string         `json:"status"`         // complete, failed, deleted
	RetentionDays int            `json:"retention_days"` // Age in days after which the sweep deletes the file
}

// TotalMemories returns the sum of the per-type counts.
func (b *BackupRecord) TotalMemories() int {
	total := 0
	for _, n := range b.MemoryCounts {
		total += n
	}
	return total
}

// ExpiresAt returns the instant after which the retention sweep will delete
// this backup's file.
func (b *BackupRecord) ExpiresAt() time.Time {
	return b.Timestamp.Add(time.Duration(b.RetentionDays) * 24 * time.Hour)
}
