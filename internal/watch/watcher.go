// Package watch turns file system events in the vault into change
// notifications for the reference service.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/blockref/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Sink receives change notifications. Known reports the paths the sink
// currently tracks and is used to reconcile after renames.
type Sink interface {
	FileChanged(path string)
	FileDeleted(path string)
	Known() []string
}

// Watch starts an fsnotify watcher on the vault root and forwards events to
// sink until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and their
// documents announced. Rename events remove the old path right away and
// schedule a reconciliation pass that catches paths fsnotify did not report.
func Watch(ctx context.Context, store storage.Provider, sink Sink, logger *slog.Logger) error {
	root := store.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(store, sink, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hiddenPath(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					announceDir(store, rel, sink, logger)
					continue
				}
			}

			if !strings.HasSuffix(rel, ".md") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				logger.Debug("watcher: changed", slog.String("path", rel))
				sink.FileChanged(rel)

			case ev.Op&fsnotify.Remove != 0:
				logger.Debug("watcher: deleted", slog.String("path", rel))
				sink.FileDeleted(rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new
				// path usually follows as a Create.
				logger.Debug("watcher: renamed away", slog.String("path", rel))
				sink.FileDeleted(rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares what the sink tracks with the documents on disk,
// deleting vanished paths and announcing untracked ones.
func reconcile(store storage.Provider, sink Sink, logger *slog.Logger) {
	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	known := make(map[string]struct{})
	for _, p := range sink.Known() {
		known[p] = struct{}{}
		if _, ok := disk[p]; !ok {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			sink.FileDeleted(p)
		}
	}

	for p := range disk {
		if _, ok := known[p]; !ok {
			logger.Debug("reconcile: found new", slog.String("path", p))
			sink.FileChanged(p)
		}
	}
}

// announceDir reports every document already present in a new directory.
func announceDir(store storage.Provider, dir string, sink Sink, logger *slog.Logger) {
	metas, err := store.List(dir)
	if err != nil {
		logger.Warn("watcher: list new dir failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	for _, m := range metas {
		logger.Debug("watcher: found in new dir", slog.String("path", m.Path))
		sink.FileChanged(m.Path)
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hiddenPath(rel string) bool {
	for part := range strings.SplitSeq(filepath.ToSlash(rel), "/") {
		if storage.IsHidden(part) && part != "." && part != ".." {
			return true
		}
	}
	return false
}
