package refservice

import (
	"fmt"

	"github.com/starford/blockref/internal/apperr"
	"github.com/starford/blockref/internal/refindex"
	"github.com/starford/blockref/internal/view"
)

// Anchor resolves an anchor by document key and anchor key.
func (s *Service) Anchor(documentKey, anchorKey string) (refindex.Entry, error) {
	e, ok := s.index.Query(documentKey, anchorKey)
	if !ok {
		return refindex.Entry{}, fmt.Errorf("anchor %s#%s: %w", documentKey, anchorKey, apperr.ErrNotFound)
	}
	return e, nil
}

// Document returns the indexed view of the document with the given key.
func (s *Service) Document(documentKey string) (*refindex.DocumentView, error) {
	dv, ok := s.index.QueryDocument(documentKey)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentKey, apperr.ErrNotFound)
	}
	return dv, nil
}

// Render builds the reference counters for the document at path. Line
// previews are included when previews is true.
func (s *Service) Render(path string, settings view.Settings, previews bool) (*view.Document, error) {
	dv, ok := s.index.QueryPath(path)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", path, apperr.ErrNotFound)
	}
	var lines view.LineReader
	if previews {
		lines = s.corpus
	}
	return view.Build(dv, settings, lines), nil
}
