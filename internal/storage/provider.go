// Package storage gives read-only access to directories of exported
// Markdown notes that feed the migration.
package storage

import "time"

// FileMeta describes one Markdown file found under a source root.
type FileMeta struct {
	Path     string // slash-separated, relative to the root
	Checksum string // hex SHA-256 of the content
	ModTime  time.Time
}

// Source is the interface for reading exported note files.
type Source interface {
	// List returns metadata for every .md file under dir (relative to root).
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
}
