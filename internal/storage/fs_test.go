package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempSource(t *testing.T, files map[string]string) *FS {
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
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestRead(t *testing.T) {
	s := tempSource(t, map[string]string{"a/b/c.md": "deep"})
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempSource(t, map[string]string{
		"u1/b.md":          "b",
		"u1/sub/a.md":      "a",
		"u1/readme.txt":    "not md",
		"u1/.trash/old.md": "hidden",
		"u2/other.md":      "other owner",
	})

	items, err := s.List("u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	if items[0].Path != "u1/b.md" || items[1].Path != "u1/sub/a.md" {
		t.Errorf("paths = %q, %q", items[0].Path, items[1].Path)
	}
	if items[0].Checksum != Checksum([]byte("b")) {
		t.Errorf("checksum = %q", items[0].Checksum)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempSource(t, nil)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.List(p); err == nil {
			t.Errorf("expected error for list of %q", p)
		}
	}
}

func TestChecksumStable(t *testing.T) {
	a := Checksum([]byte("hello"))
	if a != Checksum([]byte("hello")) || len(a) != 64 {
		t.Errorf("checksum = %q", a)
	}
	if a == Checksum([]byte("hello!")) {
		t.Error("different input should differ")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "kvault-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
