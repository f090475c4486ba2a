// Package view turns an indexed document into the reference counters a
// renderer attaches to sections, list items and link occurrences.
package view

import (
	"cmp"
	"slices"

	"github.com/starford/blockref/internal/extract"
	"github.com/starford/blockref/internal/models"
	"github.com/starford/blockref/internal/refindex"
)

// Role says where a counter is shown.
type Role string

const (
	// RoleAnchor counters sit on the referenced block or heading.
	RoleAnchor Role = "anchor"
	// RoleReference counters sit on each link or embed to an anchor.
	RoleReference Role = "reference"
)

// Settings are the display options. The zero value shows nothing.
type Settings struct {
	OnParents  bool `json:"display_on_parents"`
	OnChildren bool `json:"display_on_children"`
	Blocks     bool `json:"display_blocks"`
	Headings   bool `json:"display_headings"`
	Links      bool `json:"display_links"`
	Embeds     bool `json:"display_embeds"`
}

// DefaultSettings enables every counter.
func DefaultSettings() Settings {
	return Settings{OnParents: true, OnChildren: true, Blocks: true, Headings: true, Links: true, Embeds: true}
}

// LineReader returns one source line for previews.
type LineReader interface {
	Line(path string, n int) (string, error)
}

// Row is one entry of a counter's reference table.
type Row struct {
	Path    string `json:"path"`
	Key     string `json:"key"`
	Line    int    `json:"line"`
	Embed   bool   `json:"embed"`
	Preview string `json:"preview,omitempty"`
}

// Counter is a reference count shown at one location of the document.
// Section indexes DocumentView.Sections and ListItem indexes that section's
// items; both are -1 when not applicable.
type Counter struct {
	Role       Role              `json:"role"`
	Kind       extract.Kind      `json:"kind"`
	Embed      bool              `json:"embed,omitempty"`
	Target     refindex.AnchorID `json:"target"`
	Line       int               `json:"line"`
	Section    int               `json:"section"`
	ListItem   int               `json:"list_item"`
	Count      int               `json:"count"`
	References []Row             `json:"references"`
}

// Document is the render data for one document.
type Document struct {
	Document models.Document `json:"document"`
	Counters []Counter       `json:"counters"`
}

// Build derives counters from dv. Anchors and references with an empty
// reference set get no counter. lines may be nil to skip previews.
func Build(dv *refindex.DocumentView, s Settings, lines LineReader) *Document {
	out := &Document{Document: dv.Document, Counters: []Counter{}}
	sections := make([]extract.Section, len(dv.Sections))
	for i, sv := range dv.Sections {
		sections[i] = sv.Section
	}

	if s.OnParents {
		for _, av := range dv.Anchors {
			if len(av.References) == 0 || !s.showAnchor(av.Anchor.Kind) {
				continue
			}
			line := av.Anchor.Position.Start
			sec, item := locate(sections, line)
			out.Counters = append(out.Counters, Counter{
				Role:       RoleAnchor,
				Kind:       av.Anchor.Kind,
				Target:     av.ID,
				Line:       line,
				Section:    sec,
				ListItem:   item,
				Count:      len(av.References),
				References: rows(av.References, lines),
			})
		}
	}

	if s.OnChildren {
		for _, rv := range dv.References {
			if !rv.Resolved || len(rv.References) == 0 || !s.showReference(rv.Reference.Embed) {
				continue
			}
			sec, item := locate(sections, rv.Reference.Line)
			out.Counters = append(out.Counters, Counter{
				Role:       RoleReference,
				Kind:       rv.Reference.Kind,
				Embed:      rv.Reference.Embed,
				Target:     rv.Target,
				Line:       rv.Reference.Line,
				Section:    sec,
				ListItem:   item,
				Count:      len(rv.References),
				References: rows(rv.References, lines),
			})
		}
	}

	slices.SortStableFunc(out.Counters, func(a, b Counter) int {
		return cmp.Or(cmp.Compare(a.Line, b.Line), cmp.Compare(a.Role, b.Role))
	})
	return out
}

func (s Settings) showAnchor(k extract.Kind) bool {
	if k == extract.KindHeading {
		return s.Headings
	}
	return s.Blocks
}

func (s Settings) showReference(embed bool) bool {
	if embed {
		return s.Embeds
	}
	return s.Links
}

func rows(members []refindex.Member, lines LineReader) []Row {
	out := make([]Row, 0, len(members))
	for _, m := range members {
		r := Row{Path: m.Source.Path, Key: m.Source.Key, Line: m.Line, Embed: m.Embed}
		if lines != nil {
			// Previews are best effort; a missing line leaves the cell empty.
			r.Preview, _ = lines.Line(m.Source.Path, m.Line)
		}
		out = append(out, r)
	}
	return out
}

// locate returns the innermost section containing line and, for list
// sections, the index of the item holding it.
func locate(sections []extract.Section, line int) (section, item int) {
	section, item = extract.Innermost(sections, line), -1
	if section < 0 {
		return section, item
	}
	for j, li := range sections[section].Items {
		if li.Position.Contains(line) {
			item = j
		}
	}
	return section, item
}
