package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/strata/internal/storage"
	"github.com/scrypster/strata/pkg/types"
)

// Manager is the snapshot/restore engine. It exports every vector store
// collection into a per-run directory (optionally compressed), copies
// reflection and auxiliary files alongside, records the run in the catalog,
// and sweeps expired snapshots per the retention policy.
type Manager struct {
	store          storage.VectorStore
	backupDir      string
	reflectionsDir string
	auxFiles       []string
	compress       bool
	interval       time.Duration
	catalog        *Catalog
	logger         *log.Logger

	mu             sync.Mutex
	retention      map[string]int
	running        bool
	stopCh         chan struct{}
	lastBackupTime time.Time
	nextBackupTime time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a backup manager, opening (or creating) its catalog
// under the backup directory.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("backup: vector store is required")
	}
	if cfg.BackupDir == "" {
		return nil, fmt.Errorf("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	catalogPath := cfg.CatalogPath
	if catalogPath == "" {
		catalogPath = filepath.Join(cfg.BackupDir, "catalog.db")
	}
	catalog, err := OpenCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	retention := make(map[string]int, len(cfg.Retention))
	for backupType, days := range cfg.Retention {
		retention[backupType] = days
	}

	return &Manager{
		store:          cfg.Store,
		backupDir:      cfg.BackupDir,
		reflectionsDir: cfg.ReflectionsDir,
		auxFiles:       append([]string(nil), cfg.AuxiliaryFiles...),
		compress:       cfg.Compress,
		interval:       cfg.Interval,
		retention:      retention,
		catalog:        catalog,
		logger:         log.Default(),
		stopCh:         make(chan struct{}),
		now:            time.Now,
	}, nil
}

// SetLogger replaces the manager's log destination.
func (m *Manager) SetLogger(logger *log.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Close stops nothing but releases the catalog. Call Stop first if the
// scheduled loop is running.
func (m *Manager) Close() error {
	return m.catalog.Close()
}

// SetRetentionPolicy sets the retention window for a backup type.
func (m *Manager) SetRetentionPolicy(backupType string, days int) error {
	if !types.IsValidBackupType(backupType) {
		return fmt.Errorf("%w: unknown backup type %q", types.ErrValidation, backupType)
	}
	if days < 1 {
		return fmt.Errorf("%w: retention days must be at least 1", types.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention[backupType] = days
	return nil
}

func (m *Manager) retentionFor(backupType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if days, ok := m.retention[backupType]; ok && days > 0 {
		return days
	}
	return DefaultRetentionDays
}

// CreateBackup snapshots every memory collection plus reflection/auxiliary
// files into a timestamped directory (zipped when compress is set), records
// the run in the catalog, and applies the retention policy. Failures are
// recorded with status failed and returned as an error result; partial files
// from a failed run are left for inspection, not rolled back.
func (m *Manager) CreateBackup(ctx context.Context, backupType, description string, compress bool) (*types.BackupResult, error) {
	start := m.now()
	if !types.IsValidBackupType(backupType) {
		err := fmt.Errorf("%w: unknown backup type %q", types.ErrValidation, backupType)
		return &types.BackupResult{OperationResult: errorResult(err.Error())}, err
	}

	name := fmt.Sprintf("%s_%s", backupType, start.Format("2006-01-02_15-04-05"))
	runDir := filepath.Join(m.backupDir, name)
	m.logger.Printf("backup: starting %s backup %s", backupType, name)

	counts, err := m.writeSnapshot(ctx, runDir, backupType, description, start)
	filename := name
	if err == nil && compress {
		if zerr := zipDir(runDir, runDir+".zip"); zerr != nil {
			err = zerr
		} else {
			filename = name + ".zip"
			if rerr := os.RemoveAll(runDir); rerr != nil {
				m.logger.Printf("backup: failed to remove uncompressed snapshot %s: %v", runDir, rerr)
			}
		}
	}

	if err != nil {
		rec := &types.BackupRecord{
			Timestamp:     start.UTC(),
			Filename:      filename,
			BackupType:    backupType,
			MemoryCounts:  counts,
			Description:   "Failed: " + err.Error(),
			Status:        types.BackupStatusFailed,
			RetentionDays: m.retentionFor(backupType),
		}
		if _, cerr := m.catalog.Insert(ctx, rec); cerr != nil {
			m.logger.Printf("backup: failed to record failed backup: %v", cerr)
		}
		m.logger.Printf("backup: %s backup failed: %v", backupType, err)
		return &types.BackupResult{OperationResult: errorResult(err.Error())}, err
	}

	size, serr := pathSize(filepath.Join(m.backupDir, filename))
	if serr != nil {
		m.logger.Printf("backup: failed to measure snapshot size: %v", serr)
	}

	rec := &types.BackupRecord{
		Timestamp:     start.UTC(),
		Filename:      filename,
		BackupType:    backupType,
		SizeBytes:     size,
		MemoryCounts:  counts,
		Description:   description,
		Status:        types.BackupStatusComplete,
		RetentionDays: m.retentionFor(backupType),
	}
	id, err := m.catalog.Insert(ctx, rec)
	if err != nil {
		return &types.BackupResult{OperationResult: errorResult(err.Error())}, err
	}

	m.mu.Lock()
	m.lastBackupTime = m.now()
	m.mu.Unlock()

	if _, err := m.ApplyRetention(ctx); err != nil {
		m.logger.Printf("backup: retention sweep failed: %v", err)
	}

	duration := m.now().Sub(start)
	m.logger.Printf("backup: %s backup %s complete: %d memories, %d bytes, %v",
		backupType, filename, rec.TotalMemories(), size, duration.Round(time.Millisecond))

	return &types.BackupResult{
		OperationResult: types.OperationResult{Status: types.StatusOK, Message: fmt.Sprintf("Backup %s created", filename)},
		BackupID:        id,
		Filename:        filename,
		BackupType:      backupType,
		SizeBytes:       size,
		Counts:          counts,
		Duration:        duration,
	}, nil
}

// writeSnapshot fills runDir with the collection exports, reflection copies,
// auxiliary files, and manifest.
func (m *Manager) writeSnapshot(ctx context.Context, runDir, backupType, description string, start time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(storage.Collections))
	for memoryType, collection := range storage.Collections {
		if err := m.store.Backup(ctx, collection, filepath.Join(runDir, collection)); err != nil {
			return counts, fmt.Errorf("failed to export %s: %w", collection, err)
		}
		n, err := m.store.Count(ctx, collection)
		if err != nil {
			return counts, fmt.Errorf("failed to count %s: %w", collection, err)
		}
		counts[memoryType] = n
	}

	if m.reflectionsDir != "" {
		if _, err := os.Stat(m.reflectionsDir); err == nil {
			if err := copyDir(m.reflectionsDir, filepath.Join(runDir, "reflections")); err != nil {
				return counts, fmt.Errorf("failed to copy reflections: %w", err)
			}
		}
	}

	for _, aux := range m.auxFiles {
		if _, err := os.Stat(aux); err != nil {
			continue // Missing auxiliary files are skipped.
		}
		dst := filepath.Join(runDir, "aux", filepath.Base(aux))
		if err := copyFile(aux, dst); err != nil {
			return counts, fmt.Errorf("failed to copy auxiliary file %s: %w", aux, err)
		}
	}

	manifest := Manifest{
		Timestamp:    start.UTC(),
		Date:         start.UTC().Format("2006-01-02"),
		BackupType:   backupType,
		Description:  description,
		MemoryCounts: counts,
	}
	for _, n := range counts {
		manifest.TotalMemories += n
	}
	data, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return counts, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, manifestName), data, 0o644); err != nil {
		return counts, fmt.Errorf("failed to write manifest: %w", err)
	}
	return counts, nil
}

// RestoreBackup replaces all live memory data with the named snapshot's
// contents. The argument is a catalog ID or a snapshot filename. Compressed
// snapshots are extracted to a temp directory and validated before any live
// data is touched; the temp directory is removed even on failure.
func (m *Manager) RestoreBackup(ctx context.Context, idOrFilename string) (*types.RestoreResult, error) {
	rec, err := m.lookup(ctx, idOrFilename)
	if err != nil {
		return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
	}
	if rec.Status != types.BackupStatusComplete {
		err := fmt.Errorf("%w: backup %s has status %s", ErrBackupNotFound, rec.Filename, rec.Status)
		return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
	}

	srcRoot := filepath.Join(m.backupDir, rec.Filename)
	if strings.HasSuffix(rec.Filename, ".zip") {
		tmp, err := os.MkdirTemp("", "strata-restore-")
		if err != nil {
			return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
		}
		defer os.RemoveAll(tmp)
		if err := unzip(srcRoot, tmp); err != nil {
			return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
		}
		srcRoot = tmp
	}

	// Validate before touching live data.
	if _, err := os.Stat(filepath.Join(srcRoot, manifestName)); err != nil {
		err = fmt.Errorf("backup: snapshot %s has no manifest: %w", rec.Filename, err)
		return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
	}

	counts := make(map[string]int, len(storage.Collections))
	for memoryType, collection := range storage.Collections {
		srcDir := filepath.Join(srcRoot, collection)
		if _, err := os.Stat(srcDir); err != nil {
			m.logger.Printf("backup: snapshot %s has no %s export, skipping", rec.Filename, collection)
			continue
		}
		if err := m.store.Restore(ctx, collection, srcDir); err != nil {
			err = fmt.Errorf("backup: failed to restore %s: %w", collection, err)
			return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
		}
		n, err := m.store.Count(ctx, collection)
		if err != nil {
			return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
		}
		counts[memoryType] = n
	}

	// Reflections are overwritten wholesale, never merged.
	reflections := filepath.Join(srcRoot, "reflections")
	if m.reflectionsDir != "" {
		if _, err := os.Stat(reflections); err == nil {
			if err := os.RemoveAll(m.reflectionsDir); err != nil {
				err = fmt.Errorf("backup: failed to clear reflections: %w", err)
				return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
			}
			if err := copyDir(reflections, m.reflectionsDir); err != nil {
				err = fmt.Errorf("backup: failed to restore reflections: %w", err)
				return &types.RestoreResult{OperationResult: errorResult(err.Error())}, err
			}
		}
	}

	m.logger.Printf("backup: restored snapshot %s", rec.Filename)
	return &types.RestoreResult{
		OperationResult: types.OperationResult{Status: types.StatusOK, Message: fmt.Sprintf("Restored from %s", rec.Filename)},
		Filename:        rec.Filename,
		Counts:          counts,
	}, nil
}

func (m *Manager) lookup(ctx context.Context, idOrFilename string) (*types.BackupRecord, error) {
	if id, err := strconv.ParseInt(idOrFilename, 10, 64); err == nil {
		return m.catalog.Get(ctx, id)
	}
	return m.catalog.GetByFilename(ctx, idOrFilename)
}

// ListBackups returns complete backups, newest first, optionally filtered by
// type.
func (m *Manager) ListBackups(ctx context.Context, backupType string, limit int) ([]*types.BackupRecord, error) {
	return m.catalog.List(ctx, backupType, limit)
}

// Run implements the memory manager's backup service interface: one backup
// with the manager's configured compression.
func (m *Manager) Run(ctx context.Context, backupType, description string) (*types.BackupResult, error) {
	return m.CreateBackup(ctx, backupType, description, m.compress)
}

// Restore implements the memory manager's backup service interface.
func (m *Manager) Restore(ctx context.Context, idOrFilename string) (*types.RestoreResult, error) {
	return m.RestoreBackup(ctx, idOrFilename)
}

// List implements the memory manager's backup service interface.
func (m *Manager) List(ctx context.Context, limit int) ([]*types.BackupRecord, error) {
	return m.ListBackups(ctx, "", limit)
}

// HealthCheck reports the manager's operational state.
func (m *Manager) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	m.mu.Lock()
	lastBackup := m.lastBackupTime
	nextBackup := m.nextBackupTime
	m.mu.Unlock()

	total, err := m.catalog.CountComplete(ctx)
	if err != nil {
		return nil, err
	}
	diskUsage, err := pathSize(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to calculate disk usage: %w", err)
	}

	status := &HealthStatus{
		Status:        "healthy",
		LastBackup:    lastBackup,
		NextBackup:    nextBackup,
		TotalBackups:  total,
		BackupDir:     m.backupDir,
		DiskSpaceUsed: diskUsage,
	}
	switch {
	case lastBackup.IsZero():
		status.Message = "No backups yet"
	case m.now().Sub(lastBackup) > m.interval*2:
		status.Status = "warning"
		status.Message = fmt.Sprintf("Backup overdue by %v", m.now().Sub(lastBackup)-m.interval)
	default:
		status.Message = fmt.Sprintf("Last backup: %v ago", m.now().Sub(lastBackup).Round(time.Minute))
	}
	return status, nil
}

func errorResult(message string) types.OperationResult {
	return types.OperationResult{Status: types.StatusError, Message: message}
}
