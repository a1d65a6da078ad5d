package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"mercator-hq/holds/pkg/content"
)

// SQLiteConfig contains configuration for the SQLite content store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// TxRetryMaxElapsed bounds the total time spent retrying a transaction
	// that failed with SQLITE_BUSY or SQLITE_LOCKED.
	// Default: 10 seconds
	TxRetryMaxElapsed time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:              "data/content.db",
		MaxOpenConns:      10,
		MaxIdleConns:      5,
		WALMode:           true,
		BusyTimeout:       5 * time.Second,
		TxRetryMaxElapsed: 10 * time.Second,
	}
}

// querier is the subset of *sql.DB and *sql.Tx the store reads through.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements content.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) a SQLite content store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.TxRetryMaxElapsed == 0 {
		config.TxRetryMaxElapsed = 10 * time.Second
	}

	logger := slog.Default().With("component", "content.storage.sqlite")

	// Immediate transactions take the write lock up front so that two
	// writers never deadlock upgrading from a shared lock.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, content.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite content store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the schema and enables WAL mode.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return content.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return content.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return content.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return content.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return content.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// CreateNode inserts a node, deriving Ref and Path when they are empty.
func (s *SQLiteStore) CreateNode(ctx context.Context, node *content.Node) error {
	if !node.Kind.IsValid() {
		return fmt.Errorf("invalid node kind %q", node.Kind)
	}

	parentPath := "/"
	if !node.Parent.IsZero() {
		parent, err := readNode(ctx, s.db, node.Parent)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		parentPath = parent.Path
	}

	if node.Ref.IsZero() {
		node.Ref = content.NodeRef(uuid.New().String())
	}
	if node.Path == "" {
		node.Path = path.Join(parentPath, node.Name)
	}
	if node.CreatedTime.IsZero() {
		node.CreatedTime = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(node.Ref), node.Name, node.Path, string(node.Kind), nullRef(node.Parent),
		node.HeldBy, node.Inherited, nullInt(node.HeldChildren), node.CreatedTime,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("node %s at %s: %w", node.Ref, node.Path, content.ErrDuplicate)
		}
		return content.NewStorageError("sqlite", "create_node", err)
	}
	return nil
}

// Node returns the node identified by ref.
func (s *SQLiteStore) Node(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	return readNode(ctx, s.db, ref)
}

// Children returns the direct children of ref ordered by path.
func (s *SQLiteStore) Children(ctx context.Context, ref content.NodeRef) ([]*content.Node, error) {
	return readChildren(ctx, s.db, ref)
}

// List returns all nodes ordered by path.
func (s *SQLiteStore) List(ctx context.Context) ([]*content.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY path`)
	if err != nil {
		return nil, content.NewStorageError("sqlite", "list_nodes", err)
	}
	return scanNodes(rows)
}

// CreateHold inserts a hold.
func (s *SQLiteStore) CreateHold(ctx context.Context, hold *content.Hold) error {
	if hold.Ref.IsZero() {
		hold.Ref = content.NodeRef(uuid.New().String())
	}
	if hold.CreatedTime.IsZero() {
		hold.CreatedTime = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holds (ref, name, reason, created_time) VALUES (?, ?, ?, ?)`,
		string(hold.Ref), hold.Name, hold.Reason, hold.CreatedTime,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("hold %q: %w", hold.Name, content.ErrDuplicate)
		}
		return content.NewStorageError("sqlite", "create_hold", err)
	}
	return nil
}

// Hold returns the hold identified by ref.
func (s *SQLiteStore) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	return readHold(ctx, s.db, ref)
}

// Holds returns all holds ordered by name.
func (s *SQLiteStore) Holds(ctx context.Context) ([]*content.Hold, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ref, name, COALESCE(reason, ''), created_time FROM holds ORDER BY name`)
	if err != nil {
		return nil, content.NewStorageError("sqlite", "list_holds", err)
	}
	defer rows.Close()

	var out []*content.Hold
	for rows.Next() {
		var h content.Hold
		var ref string
		if err := rows.Scan(&ref, &h.Name, &h.Reason, &h.CreatedTime); err != nil {
			return nil, content.NewStorageError("sqlite", "scan_hold", err)
		}
		h.Ref = content.NodeRef(ref)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// HeldItems returns the items directly held by hold.
func (s *SQLiteStore) HeldItems(ctx context.Context, hold content.NodeRef) ([]content.NodeRef, error) {
	if _, err := readHold(ctx, s.db, hold); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_ref FROM hold_members WHERE hold_ref = ? ORDER BY item_ref`, string(hold))
	if err != nil {
		return nil, content.NewStorageError("sqlite", "held_items", err)
	}
	defer rows.Close()

	var out []content.NodeRef
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, content.NewStorageError("sqlite", "scan_held_item", err)
		}
		out = append(out, content.NodeRef(ref))
	}
	return out, rows.Err()
}

// RunInTransaction runs fn inside a database transaction. Transactions that
// fail with SQLITE_BUSY or SQLITE_LOCKED are retried with exponential backoff;
// any other error aborts immediately.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx content.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = s.config.TxRetryMaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := s.runTransactionOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			s.logger.Debug("transaction busy, retrying", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (s *SQLiteStore) runTransactionOnce(ctx context.Context, fn func(tx content.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.NewStorageError("sqlite", "begin", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return content.NewStorageError("sqlite", "commit", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements content.Tx on a *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Node(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	return readNode(ctx, t.tx, ref)
}

func (t *sqliteTx) Children(ctx context.Context, ref content.NodeRef) ([]*content.Node, error) {
	return readChildren(ctx, t.tx, ref)
}

func (t *sqliteTx) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	return readHold(ctx, t.tx, ref)
}

func (t *sqliteTx) AddHeld(ctx context.Context, hold, item content.NodeRef) (bool, error) {
	if err := t.checkMembershipRefs(ctx, hold, item); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO hold_members (hold_ref, item_ref, added_time) VALUES (?, ?, ?)`,
		string(hold), string(item), time.Now().UTC(),
	)
	if err != nil {
		return false, content.NewStorageError("sqlite", "add_held", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, content.NewStorageError("sqlite", "add_held", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) RemoveHeld(ctx context.Context, hold, item content.NodeRef) (bool, error) {
	if err := t.checkMembershipRefs(ctx, hold, item); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM hold_members WHERE hold_ref = ? AND item_ref = ?`, string(hold), string(item))
	if err != nil {
		return false, content.NewStorageError("sqlite", "remove_held", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, content.NewStorageError("sqlite", "remove_held", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) checkMembershipRefs(ctx context.Context, hold, item content.NodeRef) error {
	if _, err := readHold(ctx, t.tx, hold); err != nil {
		return err
	}
	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE ref = ?`, string(item)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %s: %w", item, content.ErrNodeNotFound)
	}
	if err != nil {
		return content.NewStorageError("sqlite", "lookup_node", err)
	}
	return nil
}

func (t *sqliteTx) SetFreezeState(ctx context.Context, ref content.NodeRef, heldBy int, inherited bool) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE nodes SET held_by = MAX(?, 0), inherited = ? WHERE ref = ?`, heldBy, inherited, string(ref))
	if err != nil {
		return content.NewStorageError("sqlite", "set_freeze_state", err)
	}
	return requireRow(res, ref)
}

func (t *sqliteTx) AdjustHeldChildren(ctx context.Context, container content.NodeRef, delta int64) (int64, error) {
	// A single UPDATE keeps the increment atomic with respect to every other
	// writer; the counter is never read into Go and written back.
	var next sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE nodes SET held_children = CASE
			WHEN held_children IS NULL AND ? <= 0 THEN NULL
			ELSE MAX(COALESCE(held_children, 0) + ?, 0)
		END
		WHERE ref = ?
		RETURNING held_children`,
		delta, delta, string(container),
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("node %s: %w", container, content.ErrNodeNotFound)
	}
	if err != nil {
		return 0, content.NewStorageError("sqlite", "adjust_held_children", err)
	}
	return next.Int64, nil
}

func (t *sqliteTx) SetHeldChildren(ctx context.Context, container content.NodeRef, n int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE nodes SET held_children = MAX(?, 0) WHERE ref = ?`, n, string(container))
	if err != nil {
		return content.NewStorageError("sqlite", "set_held_children", err)
	}
	return requireRow(res, container)
}

func readNode(ctx context.Context, q querier, ref content.NodeRef) (*content.Node, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE ref = ?`, string(ref))
	if err != nil {
		return nil, content.NewStorageError("sqlite", "get_node", err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNodeNotFound)
	}
	return nodes[0], nil
}

func readChildren(ctx context.Context, q querier, ref content.NodeRef) ([]*content.Node, error) {
	if _, err := readNode(ctx, q, ref); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent = ? ORDER BY path`, string(ref))
	if err != nil {
		return nil, content.NewStorageError("sqlite", "get_children", err)
	}
	return scanNodes(rows)
}

func readHold(ctx context.Context, q querier, ref content.NodeRef) (*content.Hold, error) {
	var h content.Hold
	var r string
	err := q.QueryRowContext(ctx,
		`SELECT ref, name, COALESCE(reason, ''), created_time FROM holds WHERE ref = ?`, string(ref),
	).Scan(&r, &h.Name, &h.Reason, &h.CreatedTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hold %s: %w", ref, content.ErrHoldNotFound)
	}
	if err != nil {
		return nil, content.NewStorageError("sqlite", "get_hold", err)
	}
	h.Ref = content.NodeRef(r)
	return &h, nil
}

func scanNodes(rows *sql.Rows) ([]*content.Node, error) {
	defer rows.Close()

	var out []*content.Node
	for rows.Next() {
		var (
			n            content.Node
			ref, kind    string
			parent       sql.NullString
			heldChildren sql.NullInt64
		)
		if err := rows.Scan(&ref, &n.Name, &n.Path, &kind, &parent,
			&n.HeldBy, &n.Inherited, &heldChildren, &n.CreatedTime); err != nil {
			return nil, content.NewStorageError("sqlite", "scan_node", err)
		}
		n.Ref = content.NodeRef(ref)
		n.Kind = content.Kind(kind)
		if parent.Valid {
			n.Parent = content.NodeRef(parent.String)
		}
		if heldChildren.Valid {
			v := heldChildren.Int64
			n.HeldChildren = &v
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, content.NewStorageError("sqlite", "scan_node", err)
	}
	return out, nil
}

func requireRow(res sql.Result, ref content.NodeRef) error {
	n, err := res.RowsAffected()
	if err != nil {
		return content.NewStorageError("sqlite", "rows_affected", err)
	}
	if n == 0 {
		return fmt.Errorf("node %s: %w", ref, content.ErrNodeNotFound)
	}
	return nil
}

func nullRef(ref content.NodeRef) sql.NullString {
	return sql.NullString{String: string(ref), Valid: !ref.IsZero()}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
