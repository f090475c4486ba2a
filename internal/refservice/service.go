// Package refservice connects host change notifications to the reference
// index: it gates triggers by configuration, defers work through the
// scheduler, and applies updates without losing state on read failures.
package refservice

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/blockref/internal/apperr"
	"github.com/starford/blockref/internal/checksum"
	"github.com/starford/blockref/internal/corpus"
	"github.com/starford/blockref/internal/models"
	"github.com/starford/blockref/internal/refindex"
	"github.com/starford/blockref/internal/scheduler"
	"github.com/starford/blockref/internal/sse"
	"github.com/starford/blockref/internal/storage"
)

// unverified marks a tracked document whose current bytes were not indexed.
// It never equals a real checksum, so the next trigger re-reads it.
const unverified = ""

// Publisher receives a notification after each applied change.
type Publisher interface {
	PublishDocumentEvent(c sse.DocumentChange)
}

// Triggers selects which host events schedule incremental updates.
type Triggers struct {
	OnFileOpen     bool
	OnFileChange   bool
	OnLayoutChange bool
}

// Options configures a Service.
type Options struct {
	Debounce   time.Duration
	TypingIdle time.Duration
	Triggers   Triggers
}

// Service owns the index lifecycle for one vault.
type Service struct {
	store    storage.Provider
	corpus   *corpus.Corpus
	index    *refindex.Index
	pub      Publisher
	triggers Triggers
	logger   *slog.Logger
	sched    *scheduler.Scheduler

	// applyMu serializes Sync, Refresh and Apply so a rebuild never
	// interleaves with an incremental update.
	applyMu sync.Mutex

	mu        sync.Mutex
	checksums map[string]string
}

// New creates a service and starts its scheduler. pub may be nil.
func New(store storage.Provider, c *corpus.Corpus, ix *refindex.Index, pub Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		corpus:    c,
		index:     ix,
		pub:       pub,
		triggers:  opts.Triggers,
		logger:    logger,
		checksums: make(map[string]string),
	}
	s.sched = scheduler.New(opts.Debounce, opts.TypingIdle, s.Apply)
	return s
}

// Index exposes the underlying index for queries.
func (s *Service) Index() *refindex.Index {
	return s.index
}

// Corpus exposes the document provider for previews.
func (s *Service) Corpus() *corpus.Corpus {
	return s.corpus
}

// Close stops the scheduler. Pending updates are discarded.
func (s *Service) Close() {
	s.sched.Close()
}

// Sync rebuilds the whole index from the vault. Per-document failures are
// logged and returned joined; the rest of the vault is still indexed and
// the failed documents are retried on their next trigger.
func (s *Service) Sync() error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	start := time.Now()
	metas, err := s.store.List("")
	if err != nil {
		return err
	}
	docs := make([]models.Document, 0, len(metas))
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		docs = append(docs, models.NewDocument(m.Path))
		sums[m.Path] = m.Checksum
	}

	rebuildErr := s.index.RebuildAll(docs)
	for _, p := range refindex.FailedPaths(rebuildErr) {
		sums[p] = unverified
	}

	s.mu.Lock()
	s.checksums = sums
	s.mu.Unlock()

	st := s.index.Stats()
	s.logger.Info("sync: done",
		slog.Int("documents", st.Documents),
		slog.Int("anchors", st.Anchors),
		slog.Int("references", st.References),
		slog.Int("resolved", st.Resolved),
		slog.Duration("took", time.Since(start)))
	if rebuildErr != nil {
		s.logger.Warn("sync: some documents failed", slog.String("error", rebuildErr.Error()))
	}
	return rebuildErr
}

// Refresh re-reads one document and re-indexes it regardless of its
// checksum. A missing document is removed and reported as not found; any
// other failure leaves the previous state in place.
func (s *Service) Refresh(path string) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	doc := models.NewDocument(path)
	if err := s.index.Reindex(doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.remove(doc)
			return fmt.Errorf("document %s: %w", path, apperr.ErrNotFound)
		}
		return err
	}

	// The bytes that were parsed are not visible here; the next trigger
	// records their checksum.
	s.mu.Lock()
	s.checksums[doc.Path] = unverified
	s.mu.Unlock()

	s.publish(sse.KindIndexed, doc)
	return nil
}

// Apply performs a scheduled task right away. A document that can no
// longer be found is removed; any other read failure leaves the index
// unchanged so the next trigger retries.
func (s *Service) Apply(t scheduler.Task) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	doc := models.NewDocument(t.Path)
	if t.Op == scheduler.OpRemove {
		s.remove(doc)
		return
	}

	data, err := s.store.Read(doc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.remove(doc)
			return
		}
		s.logger.Warn("refservice: read failed, keeping previous state",
			slog.String("path", doc.Path), slog.String("error", err.Error()))
		return
	}

	sum := checksum.Sum(data)
	s.mu.Lock()
	prev, known := s.checksums[doc.Path]
	s.mu.Unlock()
	if known && prev == sum {
		s.logger.Debug("refservice: unchanged", slog.String("path", doc.Path))
		return
	}

	s.index.UpdateOne(doc, s.corpus.Parse(doc, data))

	s.mu.Lock()
	s.checksums[doc.Path] = sum
	s.mu.Unlock()

	s.logger.Debug("refservice: indexed", slog.String("path", doc.Path))
	s.publish(sse.KindIndexed, doc)
}

func (s *Service) remove(doc models.Document) {
	s.index.RemoveOne(doc)
	s.corpus.Invalidate(doc.Path)

	s.mu.Lock()
	_, known := s.checksums[doc.Path]
	delete(s.checksums, doc.Path)
	s.mu.Unlock()

	if !known {
		return
	}
	s.logger.Debug("refservice: removed", slog.String("path", doc.Path))
	s.publish(sse.KindRemoved, doc)
}

func (s *Service) publish(kind string, doc models.Document) {
	if s.pub == nil {
		return
	}
	c := sse.DocumentChange{Kind: kind, Path: doc.Path, Stats: s.index.Stats()}
	if dv, ok := s.index.QueryPath(doc.Path); ok {
		c.Anchors = len(dv.Anchors)
		c.References = len(dv.References)
	}
	s.pub.PublishDocumentEvent(c)
}

// Known lists the paths currently tracked, in no particular order.
func (s *Service) Known() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.checksums))
	for p := range s.checksums {
		out = append(out, p)
	}
	return out
}

// FileOpened schedules an update for a document the user opened.
func (s *Service) FileOpened(path string) {
	if s.triggers.OnFileOpen {
		s.sched.Schedule(scheduler.OpUpdate, path)
	}
}

// FileChanged schedules an update for a modified or created document.
func (s *Service) FileChanged(path string) {
	if s.triggers.OnFileChange {
		s.sched.Schedule(scheduler.OpUpdate, path)
	}
}

// LayoutChanged schedules updates for the documents now visible.
func (s *Service) LayoutChanged(paths []string) {
	if !s.triggers.OnLayoutChange {
		return
	}
	for _, p := range paths {
		s.sched.Schedule(scheduler.OpUpdate, p)
	}
}

// FileDeleted schedules removal of a document. Deletions are not gated by
// triggers.
func (s *Service) FileDeleted(path string) {
	s.sched.Schedule(scheduler.OpRemove, path)
}

// Typed records a keystroke; scheduled work waits for the typing idle period.
func (s *Service) Typed() {
	s.sched.Typed()
}

// Flush applies all scheduled work now.
func (s *Service) Flush() {
	s.sched.Flush()
}
