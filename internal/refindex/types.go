package refindex

import (
	"slices"

	"github.com/starford/blockref/internal/extract"
	"github.com/starford/blockref/internal/models"
)

// AnchorID is the composite key of an index entry. Heading keys are stored
// normalized.
type AnchorID struct {
	DocumentKey string       `json:"document_key"`
	Kind        extract.Kind `json:"kind"`
	Key         string       `json:"key"`
}

// Member is one reference in an anchor's reference set. Members are unique
// by source path and line.
type Member struct {
	Source models.Document `json:"source"`
	Line   int             `json:"line"`
	Embed  bool            `json:"embed"`
}

// Entry is the resolved aggregate for one anchor. Anchor is the most
// specific occurrence; Anchors lists every occurrence folded into the
// bucket (repeated heading text).
type Entry struct {
	ID         AnchorID         `json:"id"`
	Owner      models.Document  `json:"owner"`
	Anchor     extract.Anchor   `json:"anchor"`
	Anchors    []extract.Anchor `json:"anchors"`
	References []Member         `json:"references"`
}

// Count is the size of the reference set.
func (e Entry) Count() int {
	return len(e.References)
}

func (e *Entry) clone() Entry {
	out := *e
	out.Anchors = slices.Clone(e.Anchors)
	out.References = slices.Clone(e.References)
	return out
}

// AnchorView is an anchor local to a queried document with its resolved
// reference set. References is empty when another document with the same
// key owns the bucket.
type AnchorView struct {
	ID         AnchorID       `json:"id"`
	Anchor     extract.Anchor `json:"anchor"`
	References []Member       `json:"references"`
}

// ReferenceView is a reference occurring in a queried document. When it
// resolves, Target names the anchor and References is that anchor's whole
// reference set.
type ReferenceView struct {
	Reference  extract.Reference `json:"reference"`
	Resolved   bool              `json:"resolved"`
	Target     AnchorID          `json:"target"`
	References []Member          `json:"references,omitempty"`
}

// SectionView groups the anchors and references whose line falls inside a
// section. Each record lands in the smallest enclosing section only.
type SectionView struct {
	Section    extract.Section `json:"section"`
	Anchors    []AnchorView    `json:"anchors,omitempty"`
	References []ReferenceView `json:"references,omitempty"`
}

// DocumentView is everything the renderer needs for one document.
type DocumentView struct {
	Document   models.Document `json:"document"`
	Anchors    []AnchorView    `json:"anchors"`
	References []ReferenceView `json:"references"`
	Sections   []SectionView   `json:"sections"`
}

// Stats summarizes the index contents.
type Stats struct {
	Documents  int `json:"documents"`
	Anchors    int `json:"anchors"`
	References int `json:"references"`
	Resolved   int `json:"resolved"`
}
