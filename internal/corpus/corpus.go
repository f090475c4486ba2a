// Package corpus joins vault storage with the Markdown parser to serve as
// the document and metadata provider for the reference index.
package corpus

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/blockref/internal/models"
	"github.com/starford/blockref/internal/parser"
	"github.com/starford/blockref/internal/storage"
)

// DefaultPreviewCacheSize bounds how many documents keep split lines cached.
const DefaultPreviewCacheSize = 256

// Corpus enumerates vault documents, parses their metadata on demand, and
// serves single source lines for reference previews.
type Corpus struct {
	store storage.Provider
	lines *lru.Cache[string, []string]
}

// New creates a corpus over store. cacheSize <= 0 uses the default.
func New(store storage.Provider, cacheSize int) (*Corpus, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPreviewCacheSize
	}
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("corpus: preview cache: %w", err)
	}
	return &Corpus{store: store, lines: cache}, nil
}

// Documents lists every Markdown document in the vault.
func (c *Corpus) Documents() ([]models.Document, error) {
	metas, err := c.store.List("")
	if err != nil {
		return nil, err
	}
	out := make([]models.Document, 0, len(metas))
	for _, m := range metas {
		out = append(out, models.NewDocument(m.Path))
	}
	return out, nil
}

// Metadata reads and parses doc. The read also refreshes the preview cache.
func (c *Corpus) Metadata(doc models.Document) (*models.Metadata, error) {
	data, err := c.store.Read(doc.Path)
	if err != nil {
		return nil, err
	}
	return c.Parse(doc, data), nil
}

// Parse parses bytes already read for doc and caches its lines.
func (c *Corpus) Parse(doc models.Document, data []byte) *models.Metadata {
	c.lines.Add(doc.Path, splitLines(data))
	return parser.Parse(data)
}

// Line returns line n (zero-based) of the document at path, trimmed.
// Out-of-range lines yield an empty string.
func (c *Corpus) Line(path string, n int) (string, error) {
	lines, ok := c.lines.Get(path)
	if !ok {
		data, err := c.store.Read(path)
		if err != nil {
			return "", err
		}
		lines = splitLines(data)
		c.lines.Add(path, lines)
	}
	if n < 0 || n >= len(lines) {
		return "", nil
	}
	return strings.TrimSpace(lines[n]), nil
}

// Invalidate drops cached lines for path.
func (c *Corpus) Invalidate(path string) {
	c.lines.Remove(path)
}

func splitLines(data []byte) []string {
	return strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
}
