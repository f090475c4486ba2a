package models

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SectionType tags a structural grouping of lines.
type SectionType string

// Section types produced by the metadata provider.
const (
	SectionParagraph  SectionType = "paragraph"
	SectionList       SectionType = "list"
	SectionHeading    SectionType = "heading"
	SectionBlockquote SectionType = "blockquote"
	SectionCode       SectionType = "code"
	SectionYAML       SectionType = "yaml"
)

var blockIDRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Span is an inclusive, zero-based line range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Line returns a single-line span.
func Line(n int) Span {
	return Span{Start: n, End: n}
}

// Contains reports whether line n falls inside the span.
func (s Span) Contains(n int) bool {
	return n >= s.Start && n <= s.End
}

// Len is the number of lines covered.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Validate validates the span.
func (s Span) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Start, validation.Min(0)),
		validation.Field(&s.End, validation.By(func(any) error {
			if s.End < s.Start {
				return errors.New("must not precede start")
			}
			return nil
		})),
	)
}

// BlockMeta is a raw named-block anchor ("^id") and the lines it labels.
type BlockMeta struct {
	ID       string `json:"id"`
	Position Span   `json:"position"`
}

// Validate validates the block anchor.
func (b BlockMeta) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required, validation.Match(blockIDRe)),
		validation.Field(&b.Position),
	)
}

// HeadingMeta is a raw heading as written, without the leading hashes.
type HeadingMeta struct {
	Heading  string `json:"heading"`
	Level    int    `json:"level"`
	Position Span   `json:"position"`
}

// Validate validates the heading.
func (h HeadingMeta) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Level, validation.Min(0), validation.Max(6)),
		validation.Field(&h.Position),
	)
}

// LinkMeta is a raw link or embed occurrence. Link is the target text
// without alias; Original is the token as it appears in the source.
type LinkMeta struct {
	Link        string `json:"link"`
	Original    string `json:"original"`
	DisplayText string `json:"display_text,omitempty"`
	Position    Span   `json:"position"`
}

// Validate validates the link position. Unusable link text is not a
// validation failure; the extractor drops it.
func (l LinkMeta) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Position),
	)
}

// SectionMeta is a raw section: a typed line range with an optional block id.
type SectionMeta struct {
	Type     SectionType `json:"type"`
	ID       string      `json:"id,omitempty"`
	Position Span        `json:"position"`
}

// Validate validates the section.
func (s SectionMeta) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.In(
			SectionParagraph, SectionList, SectionHeading, SectionBlockquote, SectionCode, SectionYAML,
		)),
		validation.Field(&s.ID, validation.Match(blockIDRe)),
		validation.Field(&s.Position),
	)
}

// ListItemMeta is a raw list item with an optional block id.
type ListItemMeta struct {
	ID       string `json:"id,omitempty"`
	Position Span   `json:"position"`
}

// Validate validates the list item.
func (li ListItemMeta) Validate() error {
	return validation.ValidateStruct(&li,
		validation.Field(&li.ID, validation.Match(blockIDRe)),
		validation.Field(&li.Position),
	)
}

// Metadata is the structural summary of one document as supplied by a
// metadata provider. Any field may be empty.
type Metadata struct {
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Blocks      []BlockMeta    `json:"blocks,omitempty"`
	Headings    []HeadingMeta  `json:"headings,omitempty"`
	Links       []LinkMeta     `json:"links,omitempty"`
	Embeds      []LinkMeta     `json:"embeds,omitempty"`
	Sections    []SectionMeta  `json:"sections,omitempty"`
	ListItems   []ListItemMeta `json:"list_items,omitempty"`
}

// Validate validates every record in the metadata.
func (m Metadata) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Blocks),
		validation.Field(&m.Headings),
		validation.Field(&m.Links),
		validation.Field(&m.Embeds),
		validation.Field(&m.Sections),
		validation.Field(&m.ListItems),
	)
}
