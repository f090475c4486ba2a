// Package storage defines the read-only vault file-system abstraction.
package storage

import "github.com/starford/blockref/internal/models"

// Provider is the interface for vault file access.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Root returns the absolute vault directory.
	Root() string
}
