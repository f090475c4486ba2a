package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/blockref/internal/models"
	"github.com/starford/blockref/internal/storage"
)

func testCorpus(t *testing.T, files map[string]string) (*Corpus, string) {
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
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(store, 4)
	if err != nil {
		t.Fatal(err)
	}
	return c, dir
}

func TestDocuments(t *testing.T) {
	c, _ := testCorpus(t, map[string]string{"A.md": "a", "sub/B.md": "b", "x.txt": "x"})
	docs, err := c.Documents()
	if err != nil {
		t.Fatal(err)
	}
	keys := map[string]string{}
	for _, d := range docs {
		keys[d.Path] = d.Key
	}
	if len(keys) != 2 || keys["A.md"] != "A" || keys["sub/B.md"] != "B" {
		t.Errorf("documents = %v", keys)
	}
}

func TestMetadata(t *testing.T) {
	c, _ := testCorpus(t, map[string]string{"A.md": "para ^abc123\n\nsee [[B#^x]]\n"})
	m, err := c.Metadata(models.NewDocument("A.md"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Blocks) != 1 || len(m.Links) != 1 {
		t.Errorf("metadata = %+v", m)
	}
	if _, err := c.Metadata(models.NewDocument("missing.md")); err == nil {
		t.Error("expected read error for missing document")
	}
}

func TestLineCachedAndInvalidated(t *testing.T) {
	c, dir := testCorpus(t, map[string]string{"A.md": "zero\n  one [[X#^y]]  \ntwo\n"})

	got, err := c.Line("A.md", 1)
	if err != nil || got != "one [[X#^y]]" {
		t.Fatalf("Line = %q, %v", got, err)
	}
	if got, _ := c.Line("A.md", 42); got != "" {
		t.Errorf("out of range line = %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "A.md"), []byte("changed\nnew one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Line("A.md", 1); got != "one [[X#^y]]" {
		t.Errorf("expected cached line before invalidation, got %q", got)
	}
	c.Invalidate("A.md")
	if got, _ := c.Line("A.md", 1); got != "new one" {
		t.Errorf("expected fresh line after invalidation, got %q", got)
	}
}
