// Package testutil provides shared test helpers for vault databases,
// legacy tables and markdown export directories.
package testutil

import (
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/kvault/internal/store"
)

// TestDB creates a temporary vault database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "kvault-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(dbFile.Name() + suffix)
		}
	})

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// legacyDDL mirrors the feature tables the vault replaces.
var legacyDDL = []string{
	`CREATE TABLE notes (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, content TEXT,
		tags TEXT, para_category TEXT, folder_path TEXT, created_at TEXT)`,
	`CREATE TABLE thought_sessions (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, topic TEXT, summary TEXT)`,
	`CREATE TABLE thoughts (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, content TEXT, mood TEXT)`,
	`CREATE TABLE ideas (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, description TEXT, status TEXT, tags TEXT)`,
	`CREATE TABLE articles (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, content TEXT, url TEXT,
		is_research INTEGER DEFAULT 0, kind TEXT)`,
	`CREATE TABLE quotes (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, author TEXT, text TEXT)`,
	`CREATE TABLE words (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, word TEXT, definition TEXT, language TEXT)`,
	`CREATE TABLE sticky_notes (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, content TEXT, color TEXT)`,
	`CREATE TABLE tasks (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, title TEXT, description TEXT,
		done INTEGER DEFAULT 0, para_category TEXT)`,
	`CREATE TABLE pomodoro_sessions (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, label TEXT, task_title TEXT,
		notes TEXT, duration_minutes INTEGER)`,
}

// CreateLegacyTables creates every legacy feature table in conn.
func CreateLegacyTables(t *testing.T, conn *sql.DB) {
	t.Helper()
	for _, stmt := range legacyDDL {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("legacy ddl: %v", err)
		}
	}
}

// WriteFiles creates a temporary directory holding files (relative slash
// paths to content) and returns its path.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Logger discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
