package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/strata/pkg/types"
)

// ScheduledBackupType picks the effective backup type for a scheduled run
// from calendar rules: January 1st is yearly, any other first-of-month is
// monthly, Sundays are weekly, everything else is daily.
func ScheduledBackupType(now time.Time) string {
	switch {
	case now.Day() == 1 && now.Month() == time.January:
		return types.BackupYearly
	case now.Day() == 1:
		return types.BackupMonthly
	case now.Weekday() == time.Sunday:
		return types.BackupWeekly
	default:
		return types.BackupDaily
	}
}

// Start runs the scheduled backup loop until the context is cancelled or
// Stop is called. Each cycle applies retention, takes one backup of the
// calendar-selected type, and sleeps until the next interval. Cancellation
// is honored promptly between cycles; an in-flight backup is allowed to
// finish.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("backup: scheduled loop is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.nextBackupTime = m.now().Add(m.interval)
	stopCh := m.stopCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.nextBackupTime = time.Time{}
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Printf("backup: scheduled loop started: interval=%v, dir=%s", m.interval, m.backupDir)

	for {
		select {
		case <-ctx.Done():
			m.logger.Printf("backup: scheduled loop stopping (context cancelled)")
			return ctx.Err()

		case <-stopCh:
			m.logger.Printf("backup: scheduled loop stopping (stop requested)")
			return nil

		case <-ticker.C:
			if _, err := m.ApplyRetention(ctx); err != nil {
				m.logger.Printf("backup: retention sweep failed: %v", err)
			}

			backupType := ScheduledBackupType(m.now())
			description := fmt.Sprintf("Scheduled %s backup", backupType)
			if _, err := m.CreateBackup(ctx, backupType, description, m.compress); err != nil {
				m.logger.Printf("backup: scheduled %s backup failed: %v", backupType, err)
			}

			m.mu.Lock()
			m.nextBackupTime = m.now().Add(m.interval)
			m.mu.Unlock()
		}
	}
}

// Stop requests the scheduled loop to exit. It returns promptly; an
// in-flight backup finishes on its own.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return fmt.Errorf("backup: scheduled loop is not running")
	}
	close(m.stopCh)
	m.running = false
	return nil
}
