// Package refindex aggregates per-document extraction results into a
// corpus-wide mapping from anchors to the references that target them.
package refindex

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/starford/blockref/internal/extract"
	"github.com/starford/blockref/internal/models"
)

// yieldEvery is how many documents RebuildAll extracts before yielding the
// processor.
const yieldEvery = 64

// MetadataProvider supplies raw structural metadata for a document. A nil
// result with a nil error means the document has no metadata.
type MetadataProvider interface {
	Metadata(doc models.Document) (*models.Metadata, error)
}

// Index is the reference resolution index. Queries read an immutable
// snapshot and never block on writers; writers are serialized and replace
// the snapshot as a unit.
type Index struct {
	provider MetadataProvider
	logger   *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New creates an empty index. provider is used by RebuildAll and Reindex.
func New(provider MetadataProvider, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{provider: provider, logger: logger}
	ix.snap.Store(emptySnapshot())
	return ix
}

// DocumentError reports a metadata provider failure for one document.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("refindex: metadata %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// FailedPaths returns the paths of every DocumentError in err, including
// those joined by RebuildAll.
func FailedPaths(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, FailedPaths(e)...)
		}
		return out
	}
	var de *DocumentError
	if errors.As(err, &de) {
		return []string{de.Path}
	}
	return nil
}

// RebuildAll discards all state and re-extracts every document in docs.
// A provider failure for one document does not stop the rebuild: the
// document keeps its previous extraction (or none) and the failures are
// returned joined as *DocumentError once the new state is in place.
func (ix *Index) RebuildAll(docs []models.Document) error {
	if ix.provider == nil {
		return errors.New("refindex: rebuild: no metadata provider")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev := ix.snap.Load()
	next := make(map[string]*extract.Result, len(docs))
	var errs []error
	for i, doc := range docs {
		if i > 0 && i%yieldEvery == 0 {
			runtime.Gosched()
		}
		meta, err := ix.provider.Metadata(doc)
		if err != nil {
			errs = append(errs, &DocumentError{Path: doc.Path, Err: err})
			if old, ok := prev.docs[doc.Path]; ok {
				next[doc.Path] = old
			} else {
				next[doc.Path] = extract.Empty(doc)
			}
			continue
		}
		next[doc.Path] = ix.extract(doc, meta)
	}

	s := aggregate(next)
	ix.snap.Store(s)
	ix.logger.Info("refindex: rebuilt",
		slog.Int("documents", len(s.docs)),
		slog.Int("anchors", len(s.entries)),
		slog.Int("resolved", s.hits))
	return errors.Join(errs...)
}

// UpdateOne replaces everything doc contributed with the extraction of meta.
func (ix *Index) UpdateOne(doc models.Document, meta *models.Metadata) {
	res := ix.extract(doc, meta)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs := maps.Clone(ix.snap.Load().docs)
	docs[doc.Path] = res
	ix.snap.Store(aggregate(docs))
	ix.logger.Debug("refindex: updated", slog.String("path", doc.Path),
		slog.Int("anchors", len(res.Anchors)),
		slog.Int("references", len(res.References)))
}

// Reindex fetches fresh metadata for doc and applies it. On provider
// failure the previous state for doc is left untouched and the error is
// returned so the caller can retry on the next trigger.
func (ix *Index) Reindex(doc models.Document) error {
	if ix.provider == nil {
		return errors.New("refindex: reindex: no metadata provider")
	}
	meta, err := ix.provider.Metadata(doc)
	if err != nil {
		return &DocumentError{Path: doc.Path, Err: err}
	}
	ix.UpdateOne(doc, meta)
	return nil
}

// RemoveOne purges every anchor and reference contributed by doc.
func (ix *Index) RemoveOne(doc models.Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	if _, ok := cur.docs[doc.Path]; !ok {
		return
	}
	docs := maps.Clone(cur.docs)
	delete(docs, doc.Path)
	ix.snap.Store(aggregate(docs))
	ix.logger.Debug("refindex: removed", slog.String("path", doc.Path))
}

// extract never fails: malformed metadata is logged and yields an empty
// extraction for that document.
func (ix *Index) extract(doc models.Document, meta *models.Metadata) *extract.Result {
	res, err := extract.Extract(doc, meta)
	if err != nil {
		ix.logger.Warn("refindex: extraction failed", slog.String("path", doc.Path), slog.String("error", err.Error()))
		return extract.Empty(doc)
	}
	return res
}

// Query looks up an anchor by document key and anchor key. A key starting
// with "^" only matches blocks; otherwise a block id is tried first, then
// the normalized heading text.
func (ix *Index) Query(documentKey, anchorKey string) (Entry, bool) {
	s := ix.snap.Load()
	if id, ok := strings.CutPrefix(anchorKey, "^"); ok {
		return s.lookup(AnchorID{DocumentKey: documentKey, Kind: extract.KindBlock, Key: id})
	}
	if e, ok := s.lookup(AnchorID{DocumentKey: documentKey, Kind: extract.KindBlock, Key: anchorKey}); ok {
		return e, true
	}
	return s.lookup(AnchorID{DocumentKey: documentKey, Kind: extract.KindHeading, Key: extract.NormalizeHeading(anchorKey)})
}

// QueryAnchor looks up an entry by its composite key.
func (ix *Index) QueryAnchor(id AnchorID) (Entry, bool) {
	if id.Kind == extract.KindHeading {
		id.Key = extract.NormalizeHeading(id.Key)
	}
	return ix.snap.Load().lookup(id)
}

func (s *snapshot) lookup(id AnchorID) (Entry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// QueryDocument returns the anchors and references local to the document
// with the given key, grouped by section. When several paths share the key
// the first in path order is used.
func (ix *Index) QueryDocument(documentKey string) (*DocumentView, bool) {
	s := ix.snap.Load()
	paths := s.byKey[documentKey]
	if len(paths) == 0 {
		return nil, false
	}
	return s.view(paths[0]), true
}

// QueryPath is QueryDocument addressed by vault-relative path.
func (ix *Index) QueryPath(path string) (*DocumentView, bool) {
	s := ix.snap.Load()
	if _, ok := s.docs[path]; !ok {
		return nil, false
	}
	return s.view(path), true
}

// Documents lists indexed documents in path order.
func (ix *Index) Documents() []models.Document {
	s := ix.snap.Load()
	out := make([]models.Document, 0, len(s.docs))
	for _, p := range slices.Sorted(maps.Keys(s.docs)) {
		out = append(out, s.docs[p].Document)
	}
	return out
}

// Stats reports current index sizes.
func (ix *Index) Stats() Stats {
	s := ix.snap.Load()
	return Stats{
		Documents:  len(s.docs),
		Anchors:    len(s.entries),
		References: s.refs,
		Resolved:   s.hits,
	}
}

func (s *snapshot) view(path string) *DocumentView {
	res := s.docs[path]
	v := &DocumentView{
		Document:   res.Document,
		Anchors:    make([]AnchorView, 0, len(res.Anchors)),
		References: make([]ReferenceView, 0, len(res.References)),
		Sections:   make([]SectionView, len(res.Sections)),
	}
	for i, sec := range res.Sections {
		sec.Items = slices.Clone(sec.Items)
		v.Sections[i] = SectionView{Section: sec}
	}

	for _, a := range res.Anchors {
		id := anchorID(a)
		av := AnchorView{ID: id, Anchor: a}
		if e, ok := s.entries[id]; ok && e.Owner.Path == path {
			av.References = slices.Clone(e.References)
		}
		v.Anchors = append(v.Anchors, av)
		if i := extract.Innermost(res.Sections, a.Position.Start); i >= 0 {
			v.Sections[i].Anchors = append(v.Sections[i].Anchors, av)
		}
	}

	resolved := s.resolved[path]
	for i, r := range res.References {
		rv := ReferenceView{Reference: r}
		if i < len(resolved) && resolved[i].ok {
			rv.Resolved = true
			rv.Target = resolved[i].id
			rv.References = slices.Clone(s.entries[rv.Target].References)
		}
		v.References = append(v.References, rv)
		if j := extract.Innermost(res.Sections, r.Line); j >= 0 {
			v.Sections[j].References = append(v.Sections[j].References, rv)
		}
	}
	return v
}
