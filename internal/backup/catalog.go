package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/strata/pkg/types"
)

// catalogSchema creates the backups table. Applied idempotently at open.
const catalogSchema = `
CREATE TABLE IF NOT EXISTS backups (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp      INTEGER NOT NULL,
	filename       TEXT    NOT NULL,
	backup_type    TEXT    NOT NULL,
	size           INTEGER NOT NULL DEFAULT 0,
	memory_counts  TEXT    NOT NULL DEFAULT '{}',
	description    TEXT    NOT NULL DEFAULT '',
	status         TEXT    NOT NULL,
	retention_days INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backups_status ON backups(status);
CREATE INDEX IF NOT EXISTS idx_backups_timestamp ON backups(timestamp);
`

// Catalog is the embedded SQLite store of backup records. A single open
// connection serializes writers; the mutex guards multi-statement operations.
type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenCatalog opens (creating if needed) the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to open catalog: %w", err)
	}

	// SQLite supports one concurrent writer; a single connection serializes
	// writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("backup: failed to configure catalog (%s): %w", pragma, err)
		}
	}

	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("backup: failed to create catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the catalog's database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Insert records a backup and returns its catalog ID.
func (c *Catalog) Insert(ctx context.Context, rec *types.BackupRecord) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts, err := json.Marshal(rec.MemoryCounts)
	if err != nil {
		return 0, fmt.Errorf("backup: failed to marshal memory counts: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO backups (timestamp, filename, backup_type, size, memory_counts, description, status, retention_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Unix(), rec.Filename, rec.BackupType, rec.SizeBytes,
		string(counts), rec.Description, rec.Status, rec.RetentionDays)
	if err != nil {
		return 0, fmt.Errorf("backup: failed to insert catalog record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("backup: failed to read inserted catalog ID: %w", err)
	}
	rec.ID = id
	return id, nil
}

// Get returns the backup record with the given catalog ID.
// Returns ErrBackupNotFound when absent.
func (c *Catalog) Get(ctx context.Context, id int64) (*types.BackupRecord, error) {
	row := c.db.QueryRowContext(ctx, selectColumns+" FROM backups WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrBackupNotFound, id)
	}
	return rec, err
}

// GetByFilename returns the most recent backup record with the given
// filename. Returns ErrBackupNotFound when absent.
func (c *Catalog) GetByFilename(ctx context.Context, filename string) (*types.BackupRecord, error) {
	row := c.db.QueryRowContext(ctx,
		selectColumns+" FROM backups WHERE filename = ? ORDER BY timestamp DESC, id DESC LIMIT 1", filename)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: filename %s", ErrBackupNotFound, filename)
	}
	return rec, err
}

// List returns complete backups, newest first, optionally filtered by type.
// A non-positive limit returns all of them.
func (c *Catalog) List(ctx context.Context, backupType string, limit int) ([]*types.BackupRecord, error) {
	query := selectColumns + " FROM backups WHERE status = ?"
	args := []any{types.BackupStatusComplete}
	if backupType != "" {
		query += " AND backup_type = ?"
		args = append(args, backupType)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to list catalog records: %w", err)
	}
	defer rows.Close()

	var records []*types.BackupRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Expired returns complete backups whose retention window has elapsed at the
// given instant.
func (c *Catalog) Expired(ctx context.Context, now time.Time) ([]*types.BackupRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		selectColumns+` FROM backups
		WHERE status = ? AND timestamp + retention_days * 86400 < ?
		ORDER BY timestamp ASC`,
		types.BackupStatusComplete, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("backup: failed to query expired backups: %w", err)
	}
	defer rows.Close()

	var records []*types.BackupRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkDeleted transitions a record's status to deleted after the retention
// sweep removes its file.
func (c *Catalog) MarkDeleted(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "UPDATE backups SET status = ? WHERE id = ?",
		types.BackupStatusDeleted, id)
	if err != nil {
		return fmt.Errorf("backup: failed to mark backup %d deleted: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrBackupNotFound, id)
	}
	return nil
}

// CountComplete returns the number of complete backups in the catalog.
func (c *Catalog) CountComplete(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM backups WHERE status = ?", types.BackupStatusComplete).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("backup: failed to count backups: %w", err)
	}
	return n, nil
}

const selectColumns = "SELECT id, timestamp, filename, backup_type, size, memory_counts, description, status, retention_days"

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.BackupRecord, error) {
	var rec types.BackupRecord
	var ts int64
	var counts string
	err := row.Scan(&rec.ID, &ts, &rec.Filename, &rec.BackupType, &rec.SizeBytes,
		&counts, &rec.Description, &rec.Status, &rec.RetentionDays)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = time.Unix(ts, 0).UTC()
	if err := json.Unmarshal([]byte(counts), &rec.MemoryCounts); err != nil {
		return nil, fmt.Errorf("backup: failed to parse memory counts for backup %d: %w", rec.ID, err)
	}
	return &rec, nil
}
