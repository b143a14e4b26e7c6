package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/kvault/internal/models"
)

func TestFoldContains(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             bool
	}{
		{"Über Go", "über", true},
		{"Straße", "STRASSE", true},
		{"ΟΔΟΣ", "οδος", true},
		{"οδός", "ΟΔΌΣ", true},
		{"bad", "a", true},
		{"bad", " a ", false},
		{"100% sure", "100%", true},
		{"plain", "x", false},
	}
	for _, tc := range cases {
		if got := foldContains(tc.haystack, tc.needle); got != tc.want {
			t.Errorf("foldContains(%q, %q) = %v, want %v", tc.haystack, tc.needle, got, tc.want)
		}
	}
}

func TestWithParams(t *testing.T) {
	const params = "_journal_mode=WAL"
	for dsn, want := range map[string]string{
		"./kvault.db":            "./kvault.db?_journal_mode=WAL",
		"file:x.db?cache=shared": "file:x.db?cache=shared&_journal_mode=WAL",
		"file:x.db?mode=rwc&a=b": "file:x.db?mode=rwc&a=b&_journal_mode=WAL",
	} {
		if got := withParams(dsn, params); got != want {
			t.Errorf("withParams(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestOpen_DSNWithQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvault.db")
	db, err := Open("file:" + path + "?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var mode string
	if err := db.Conn().QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	if _, err := db.CreateItem(context.Background(), "u1", models.ItemDraft{Type: models.TypeNote, Title: "ok"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
}
