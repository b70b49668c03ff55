package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ApplyRetention deletes every complete backup whose retention window has
// elapsed: the snapshot file or directory is removed and the catalog record
// marked deleted. Runs after every backup and at the top of each scheduled
// cycle. Retention governs snapshot files only; live memory records are
// never touched.
func (m *Manager) ApplyRetention(ctx context.Context) (int, error) {
	expired, err := m.catalog.Expired(ctx, m.now())
	if err != nil {
		return 0, err
	}

	deleted := 0
	var lastErr error
	for _, rec := range expired {
		path := filepath.Join(m.backupDir, rec.Filename)
		if err := os.RemoveAll(path); err != nil {
			lastErr = fmt.Errorf("backup: failed to remove expired snapshot %s: %w", rec.Filename, err)
			continue
		}
		if err := m.catalog.MarkDeleted(ctx, rec.ID); err != nil {
			lastErr = err
			continue
		}
		m.logger.Printf("backup: retention removed %s (age > %d days)", rec.Filename, rec.RetentionDays)
		deleted++
	}
	return deleted, lastErr
}
