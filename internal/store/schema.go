// Package store provides SQLite-backed persistence for vault items and the
// link graph between them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS vault_items (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	para_category TEXT,
	folder_path   TEXT,
	tags          TEXT NOT NULL DEFAULT '[]',
	metadata      TEXT NOT NULL DEFAULT '{}',
	linked_items  TEXT NOT NULL DEFAULT '[]',
	created_by    TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	source_table  TEXT,
	source_id     TEXT
);

-- NULLs are distinct in SQLite unique indexes, so native items never collide.
CREATE UNIQUE INDEX IF NOT EXISTS idx_vault_items_source
	ON vault_items(source_table, source_id);
CREATE INDEX IF NOT EXISTS idx_vault_items_owner_updated
	ON vault_items(created_by, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_vault_items_owner_type
	ON vault_items(created_by, type);

CREATE TABLE IF NOT EXISTS vault_links (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	link_type  TEXT NOT NULL DEFAULT 'related',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vault_links_source ON vault_links(source_id);
CREATE INDEX IF NOT EXISTS idx_vault_links_target ON vault_links(target_id);
`

// driverName is go-sqlite3 registered with the vault's SQL helper functions.
const driverName = "sqlite3_kvault"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold_contains", foldContains, true)
		},
	})
}

// foldContains is a substring test under Unicode case folding. SQLite's own
// LIKE only folds ASCII.
func foldContains(haystack, needle string) bool {
	// A Caser keeps state, so each call gets its own.
	return strings.Contains(cases.Fold().String(haystack), cases.Fold().String(needle))
}

// DB wraps a sql.DB with item and link operations.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open(driverName, withParams(dsn, "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	db := &DB{conn: conn, now: time.Now}
	if err := db.Initialize(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// withParams appends connection parameters to dsn, keeping any query string
// it already carries.
func withParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Initialize applies the item and link schema. It is idempotent.
func (db *DB) Initialize(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Conn exposes the underlying connection for collaborators that read legacy
// tables living in the same database.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timestamp returns the current time truncated to what the schema stores.
func (db *DB) timestamp() time.Time {
	return time.Unix(0, db.now().UnixNano()).UTC()
}

// advance returns a timestamp strictly after prev.
func (db *DB) advance(prev time.Time) time.Time {
	next := db.timestamp()
	if !next.After(prev) {
		next = prev.Add(time.Nanosecond)
	}
	return next
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
