// Package extract turns one document's raw structural metadata into
// normalized anchor and reference records.
package extract

import (
	"fmt"
	"strings"

	"github.com/starford/blockref/internal/apperr"
	"github.com/starford/blockref/internal/models"
)

// Kind distinguishes block anchors from heading anchors.
type Kind string

const (
	KindBlock   Kind = "block"
	KindHeading Kind = "heading"
)

// Anchor is a resolvable target inside a document. For headings Key is the
// normalized heading text and Text keeps the heading as written.
type Anchor struct {
	Kind        Kind        `json:"kind"`
	Key         string      `json:"key"`
	Text        string      `json:"text,omitempty"`
	DocumentKey string      `json:"document_key"`
	Path        string      `json:"path"`
	Position    models.Span `json:"position"`
}

// Reference is a link or embed occurrence that names an anchor.
// TargetAnchorKey is kept as written; resolution normalizes heading keys.
type Reference struct {
	Source            models.Document `json:"source"`
	Line              int             `json:"line"`
	TargetDocumentKey string          `json:"target_document_key"`
	TargetAnchorKey   string          `json:"target_anchor_key"`
	Kind              Kind            `json:"kind"`
	Embed             bool            `json:"embed"`
	Original          string          `json:"original,omitempty"`
	DisplayText       string          `json:"display_text,omitempty"`
}

// ResolvedDocument returns the target document key, falling back to the
// source document for same-document links.
func (r Reference) ResolvedDocument() string {
	if r.TargetDocumentKey == "" {
		return r.Source.Key
	}
	return r.TargetDocumentKey
}

// Section is a render-time grouping of lines. List sections carry the list
// items they contain, in document order.
type Section struct {
	Type     models.SectionType    `json:"type"`
	ID       string                `json:"id,omitempty"`
	Position models.Span           `json:"position"`
	Items    []models.ListItemMeta `json:"items,omitempty"`
}

// Innermost returns the index of the smallest section containing line, or
// -1 when none does.
func Innermost(sections []Section, line int) int {
	best := -1
	for i, sec := range sections {
		if !sec.Position.Contains(line) {
			continue
		}
		if best < 0 || sec.Position.Len() < sections[best].Position.Len() {
			best = i
		}
	}
	return best
}

// Result is the extraction output for one document.
type Result struct {
	Document   models.Document `json:"document"`
	Anchors    []Anchor        `json:"anchors"`
	References []Reference     `json:"references"`
	Sections   []Section       `json:"sections"`
}

// Empty returns a result with no records for doc.
func Empty(doc models.Document) *Result {
	return &Result{Document: doc}
}

// Extract converts raw metadata into anchors, references, and sections.
// A nil meta yields an empty result. Invalid metadata is rejected as a
// whole; meta is never modified.
func Extract(doc models.Document, meta *models.Metadata) (*Result, error) {
	res := Empty(doc)
	if meta == nil {
		return res, nil
	}
	if err := meta.Validate(); err != nil {
		return res, fmt.Errorf("extract %s: %w: %w", doc.Path, apperr.ErrInvalidMetadata, err)
	}

	for _, b := range meta.Blocks {
		res.Anchors = append(res.Anchors, Anchor{
			Kind:        KindBlock,
			Key:         b.ID,
			DocumentKey: doc.Key,
			Path:        doc.Path,
			Position:    b.Position,
		})
	}
	for _, h := range meta.Headings {
		key := NormalizeHeading(h.Heading)
		if key == "" {
			continue
		}
		res.Anchors = append(res.Anchors, Anchor{
			Kind:        KindHeading,
			Key:         key,
			Text:        h.Heading,
			DocumentKey: doc.Key,
			Path:        doc.Path,
			Position:    h.Position,
		})
	}

	res.References = appendReferences(res.References, doc, meta.Embeds)
	res.References = appendReferences(res.References, doc, meta.Links)
	res.Sections = listSections(meta.Sections, meta.ListItems)
	return res, nil
}

func appendReferences(out []Reference, doc models.Document, items []models.LinkMeta) []Reference {
	for _, item := range items {
		t, ok := ParseTarget(item.Link)
		if !ok {
			continue
		}
		out = append(out, Reference{
			Source:            doc,
			Line:              item.Position.Start,
			TargetDocumentKey: t.Document,
			TargetAnchorKey:   t.Anchor,
			Kind:              t.Kind,
			Embed:             strings.HasPrefix(item.Original, "!"),
			Original:          item.Original,
			DisplayText:       item.DisplayText,
		})
	}
	return out
}

func listSections(sections []models.SectionMeta, items []models.ListItemMeta) []Section {
	if len(sections) == 0 {
		return nil
	}
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		sec := Section{Type: s.Type, ID: s.ID, Position: s.Position}
		if s.Type == models.SectionList {
			for _, item := range items {
				if s.Position.Contains(item.Position.Start) {
					sec.Items = append(sec.Items, item)
				}
			}
		}
		out = append(out, sec)
	}
	return out
}
