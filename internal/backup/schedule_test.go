package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/strata/pkg/types"
)

func TestScheduledBackupType(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 3, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"january first is yearly", day(2026, time.January, 1), types.BackupYearly},
		{"first of month is monthly", day(2026, time.April, 1), types.BackupMonthly},
		{"first of month wins over sunday", day(2026, time.March, 1), types.BackupMonthly}, // a Sunday
		{"sunday is weekly", day(2026, time.August, 23), types.BackupWeekly},
		{"ordinary weekday is daily", day(2026, time.August, 25), types.BackupDaily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScheduledBackupType(tt.now))
		})
	}
}

func TestStartStop(t *testing.T) {
	manager := newTestBackupManager(t, newTestStore(t), "")
	manager.interval = time.Hour // no tick fires during the test

	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(context.Background())
	}()

	// Wait for the loop to come up before stopping it.
	require.Eventually(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return manager.running
	}, time.Second, 5*time.Millisecond)

	health, err := manager.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, health.NextBackup.IsZero(), "a running loop advertises its next run")

	require.NoError(t, manager.Stop())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.Error(t, manager.Stop(), "stopping a stopped loop is an error")
}

func TestStartTwice(t *testing.T) {
	manager := newTestBackupManager(t, newTestStore(t), "")
	manager.interval = time.Hour

	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(context.Background())
	}()
	require.Eventually(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return manager.running
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, manager.Start(context.Background()), "second Start must refuse")

	require.NoError(t, manager.Stop())
	<-errCh
}

func TestStartHonorsContext(t *testing.T) {
	manager := newTestBackupManager(t, newTestStore(t), "")
	manager.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(ctx)
	}()
	require.Eventually(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return manager.running
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestScheduledCycleTakesBackup(t *testing.T) {
	manager := newTestBackupManager(t, newTestStore(t), "")
	manager.interval = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		records, err := manager.ListBackups(context.Background(), "", 0)
		return err == nil && len(records) >= 1
	}, 5*time.Second, 10*time.Millisecond, "a cycle should produce a cataloged backup")

	records, err := manager.ListBackups(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, ScheduledBackupType(time.Now()), records[0].BackupType)

	require.NoError(t, manager.Stop())
	<-errCh
}
