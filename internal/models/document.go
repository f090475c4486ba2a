// Package models defines the domain types shared by the extractor, the
// reference index, and the providers that feed them.
package models

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Document is a handle to one Markdown file in the vault. Key is the
// basename without the .md extension; links address documents by it.
type Document struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// NewDocument builds a handle for a vault-relative path.
func NewDocument(p string) Document {
	p = filepath.ToSlash(p)
	return Document{Path: p, Key: DocumentKey(p)}
}

// DocumentKey reduces a path or link target ("folder/Note.md") to the
// basename key ("Note").
func DocumentKey(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	return strings.TrimSuffix(path.Base(p), ".md")
}

// FileMeta is a lightweight representation returned by storage listings.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
