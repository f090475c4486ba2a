package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/blockref/internal/testutil"
)

type recordingSink struct {
	mu      sync.Mutex
	known   map[string]bool
	changed []string
	deleted []string
}

func newRecordingSink(known ...string) *recordingSink {
	s := &recordingSink{known: make(map[string]bool)}
	for _, p := range known {
		s.known[p] = true
	}
	return s
}

func (s *recordingSink) FileChanged(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, path)
	s.known[path] = true
}

func (s *recordingSink) FileDeleted(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
	delete(s.known, path)
}

func (s *recordingSink) Known() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.known))
	for p := range s.known {
		out = append(out, p)
	}
	return out
}

func (s *recordingSink) sawChanged(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.changed, path)
}

func (s *recordingSink) sawDeleted(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.deleted, path)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatch(t *testing.T, sink Sink) string {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, store, sink, quietLogger()); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return vaultDir
}

func TestWatch_NewFileReported(t *testing.T) {
	sink := newRecordingSink()
	vaultDir := startWatch(t, sink)

	testutil.WriteFile(t, vaultDir, "new.md", "Para ^abc")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawChanged("new.md")
	}, "new file not reported")
}

func TestWatch_NonMarkdownIgnored(t *testing.T) {
	sink := newRecordingSink()
	vaultDir := startWatch(t, sink)

	testutil.WriteFile(t, vaultDir, "image.png", "png")
	testutil.WriteFile(t, vaultDir, "note.md", "x")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawChanged("note.md")
	}, "markdown file not reported")
	if sink.sawChanged("image.png") {
		t.Error("non-markdown file reported")
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	sink := newRecordingSink()
	vaultDir := startWatch(t, sink)

	if err := os.MkdirAll(filepath.Join(vaultDir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	testutil.WriteFile(t, vaultDir, "subdir/deep.md", "# Deep")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawChanged("subdir/deep.md")
	}, "file in new subdir not reported")
}

func TestWatch_HiddenDirIgnored(t *testing.T) {
	sink := newRecordingSink()
	vaultDir := startWatch(t, sink)

	testutil.WriteFile(t, vaultDir, ".obsidian/workspace.md", "x")
	testutil.WriteFile(t, vaultDir, "visible.md", "x")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawChanged("visible.md")
	}, "visible file not reported")
	if sink.sawChanged(".obsidian/workspace.md") {
		t.Error("file in hidden dir reported")
	}
}

func TestWatch_DeleteReported(t *testing.T) {
	sink := newRecordingSink("del.md")
	vaultDir := startWatch(t, sink)
	testutil.WriteFile(t, vaultDir, "del.md", "x")
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(filepath.Join(vaultDir, "del.md")); err != nil {
		t.Fatal(err)
	}

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawDeleted("del.md")
	}, "delete not reported")
}

func TestWatch_RenameReconciles(t *testing.T) {
	sink := newRecordingSink()
	vaultDir := startWatch(t, sink)
	testutil.WriteFile(t, vaultDir, "old.md", "# Rename")
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawChanged("old.md")
	}, "precondition: old.md reported")

	if err := os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md")); err != nil {
		t.Fatal(err)
	}

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.sawDeleted("old.md") && sink.sawChanged("renamed.md")
	}, "rename reconciliation failed: old path should be removed and new path reported")
}
