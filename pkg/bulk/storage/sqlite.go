package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/holds/pkg/bulk"
)

// SQLiteArchive implements bulk.Archive using SQLite.
// Each status is stored as a JSON document next to the columns the retention
// pruner filters and orders on.
type SQLiteArchive struct {
	db               *sql.DB
	dbPath           string
	checkpointPeriod time.Duration
	done             chan struct{}
	mu               sync.RWMutex
	closeOnce        sync.Once

	saveStmt         *sql.Stmt
	loadStmt         *sql.Stmt
	deleteStmt       *sql.Stmt
	deleteExcessStmt *sql.Stmt
}

// SQLiteArchiveConfig configures the SQLite archive.
type SQLiteArchiveConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteArchive creates a SQLite archive with default settings.
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	return NewSQLiteArchiveWithConfig(SQLiteArchiveConfig{DBPath: dbPath})
}

// NewSQLiteArchiveWithConfig creates a SQLite archive with custom configuration.
func NewSQLiteArchiveWithConfig(cfg SQLiteArchiveConfig) (*SQLiteArchive, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	a := &SQLiteArchive{
		db:               db,
		dbPath:           cfg.DBPath,
		checkpointPeriod: cfg.CheckpointInterval,
		done:             make(chan struct{}),
	}

	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := a.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go a.checkpointLoop()

	return a, nil
}

func (a *SQLiteArchive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bulk_statuses (
		id TEXT PRIMARY KEY,
		hold_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		end_time INTEGER NOT NULL,
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bulk_statuses_end_time ON bulk_statuses(end_time);
	CREATE INDEX IF NOT EXISTS idx_bulk_statuses_hold ON bulk_statuses(hold_ref);
	`

	_, err := a.db.Exec(schema)
	return err
}

func (a *SQLiteArchive) prepareStatements() error {
	var err error

	a.saveStmt, err = a.db.Prepare(`
		INSERT INTO bulk_statuses (id, hold_ref, status, end_time, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			end_time = excluded.end_time,
			document = excluded.document
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	a.loadStmt, err = a.db.Prepare(`SELECT document FROM bulk_statuses WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	a.deleteStmt, err = a.db.Prepare(`DELETE FROM bulk_statuses WHERE end_time < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	a.deleteExcessStmt, err = a.db.Prepare(`
		DELETE FROM bulk_statuses
		WHERE id NOT IN (
			SELECT id FROM bulk_statuses ORDER BY end_time DESC LIMIT ?
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete excess statement: %w", err)
	}

	return nil
}

// Save stores a terminal status, replacing any previous entry with the same id.
func (a *SQLiteArchive) Save(ctx context.Context, status bulk.BulkStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}

	doc, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal bulk status: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err = a.saveStmt.ExecContext(ctx,
		status.ID,
		string(status.Hold),
		string(status.Status),
		status.EndTime.UnixNano(),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save bulk status: %w", err)
	}
	return nil
}

// Load returns the archived status for id.
func (a *SQLiteArchive) Load(ctx context.Context, id string) (bulk.BulkStatus, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var doc string
	err := a.loadStmt.QueryRowContext(ctx, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return bulk.BulkStatus{}, false, nil
	}
	if err != nil {
		return bulk.BulkStatus{}, false, fmt.Errorf("failed to load bulk status: %w", err)
	}

	var status bulk.BulkStatus
	if err := json.Unmarshal([]byte(doc), &status); err != nil {
		return bulk.BulkStatus{}, false, fmt.Errorf("failed to unmarshal bulk status: %w", err)
	}
	return status, true, nil
}

// Delete removes statuses that ended before olderThan.
func (a *SQLiteArchive) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.deleteStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete bulk statuses: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExcess removes the oldest statuses until at most keep remain.
func (a *SQLiteArchive) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.deleteExcessStmt.ExecContext(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete excess bulk statuses: %w", err)
	}
	return result.RowsAffected()
}

// Close releases the database. It is idempotent.
func (a *SQLiteArchive) Close() error {
	var closeErr error

	a.closeOnce.Do(func() {
		close(a.done)

		for _, stmt := range []*sql.Stmt{a.saveStmt, a.loadStmt, a.deleteStmt, a.deleteExcessStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if a.db != nil {
			_, _ = a.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = a.db.Close()
		}
	})

	return closeErr
}

func (a *SQLiteArchive) checkpointLoop() {
	ticker := time.NewTicker(a.checkpointPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = a.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-a.done:
			return
		}
	}
}
