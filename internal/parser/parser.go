// Package parser scans Markdown into the structural metadata consumed by
// the extractor: frontmatter, headings, sections, list items, "^id" block
// anchors, and link/embed occurrences with their line numbers.
package parser

import (
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/blockref/internal/models"
)

var (
	wikilinkRe   = regexp.MustCompile(`(!?)\[\[([^\[\]]+?)\]\]`)
	mdLinkRe     = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\s]+)(?:\s+"[^"]*")?\)`)
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*?)(?:\s+#+)?\s*$`)
	listItemRe   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])(?:\s+|$)`)
	blockIDRe    = regexp.MustCompile(`(?:^|\s)\^([A-Za-z0-9-]+)\s*$`)
	fenceRe      = regexp.MustCompile("^\\s*(```+|~~~+)")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
)

// Parse builds metadata for one document. Line numbers are zero-based and
// count frontmatter lines. Invalid frontmatter is treated as body text.
func Parse(data []byte) *models.Metadata {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	meta := &models.Metadata{}
	s := &scanner{meta: meta, lines: lines}

	start := s.frontmatter()
	for i := start; i < len(lines); i++ {
		s.line(i)
	}
	s.flush()
	return meta
}

// section is the block currently being accumulated.
type section struct {
	typ   models.SectionType
	start int
	last  int // last non-blank line
	id    string
	items []*item
	fence string
}

type item struct {
	id    string
	start int
	last  int
}

type scanner struct {
	meta  *models.Metadata
	lines []string
	cur   *section
	prev  *section // most recently flushed section
}

// frontmatter consumes a leading YAML block and returns the first body line.
func (s *scanner) frontmatter() int {
	if len(s.lines) == 0 || strings.TrimSpace(s.lines[0]) != "---" {
		return 0
	}
	for end := 1; end < len(s.lines); end++ {
		if strings.TrimSpace(s.lines[end]) != "---" {
			continue
		}
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(s.lines[1:end], "\n")), &fm); err != nil {
			return 0
		}
		s.meta.Frontmatter = fm
		s.meta.Sections = append(s.meta.Sections, models.SectionMeta{
			Type:     models.SectionYAML,
			Position: models.Span{Start: 0, End: end},
		})
		return end + 1
	}
	return 0
}

func (s *scanner) line(i int) {
	raw := s.lines[i]
	trimmed := strings.TrimSpace(raw)

	if s.cur != nil && s.cur.typ == models.SectionCode {
		s.cur.last = i
		if strings.HasPrefix(trimmed, s.cur.fence) {
			s.flush()
		}
		return
	}
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		s.flush()
		s.cur = &section{typ: models.SectionCode, start: i, last: i, fence: m[1]}
		return
	}

	if trimmed == "" {
		if s.cur != nil && s.cur.typ == models.SectionList && s.listContinues(i) {
			return
		}
		s.flush()
		return
	}

	if s.cur == nil && s.prev != nil && s.prev.typ != models.SectionHeading && s.prev.typ != models.SectionYAML {
		if m := blockIDRe.FindStringSubmatch(trimmed); m != nil && strings.HasPrefix(trimmed, "^") {
			s.attachStandaloneID(m[1])
			return
		}
	}

	if m := headingRe.FindStringSubmatch(trimmed); m != nil && !startsIndentedCode(raw) {
		s.flush()
		s.meta.Headings = append(s.meta.Headings, models.HeadingMeta{
			Heading:  m[2],
			Level:    len(m[1]),
			Position: models.Line(i),
		})
		s.cur = &section{typ: models.SectionHeading, start: i, last: i}
		s.links(i)
		s.flush()
		return
	}

	switch {
	case listItemRe.MatchString(raw) && (s.cur == nil || s.cur.typ != models.SectionBlockquote):
		if s.cur == nil || s.cur.typ != models.SectionList {
			s.flush()
			s.cur = &section{typ: models.SectionList, start: i}
		}
		s.cur.items = append(s.cur.items, &item{start: i, last: i})
	case strings.HasPrefix(trimmed, ">"):
		if s.cur == nil || s.cur.typ != models.SectionBlockquote {
			s.flush()
			s.cur = &section{typ: models.SectionBlockquote, start: i}
		}
	case s.cur == nil:
		s.cur = &section{typ: models.SectionParagraph, start: i}
	}

	s.cur.last = i
	if s.cur.typ == models.SectionList {
		it := s.cur.items[len(s.cur.items)-1]
		it.last = i
		if m := blockIDRe.FindStringSubmatch(trimmed); m != nil {
			it.id = m[1]
		}
	} else if m := blockIDRe.FindStringSubmatch(trimmed); m != nil {
		s.cur.id = m[1]
	}
	s.links(i)
}

// listContinues reports whether the list survives a blank line at i: the
// next non-blank line is another item or indented continuation.
func (s *scanner) listContinues(i int) bool {
	for j := i + 1; j < len(s.lines); j++ {
		next := s.lines[j]
		if strings.TrimSpace(next) == "" {
			continue
		}
		return listItemRe.MatchString(next) || strings.HasPrefix(next, " ") || strings.HasPrefix(next, "\t")
	}
	return false
}

// attachStandaloneID labels the previous section with an id written on its
// own line after it.
func (s *scanner) attachStandaloneID(id string) {
	p := s.prev
	p.id = id
	span := models.Span{Start: p.start, End: p.last}
	s.meta.Blocks = append(s.meta.Blocks, models.BlockMeta{ID: id, Position: span})
	for k := len(s.meta.Sections) - 1; k >= 0; k-- {
		if s.meta.Sections[k].Position == span {
			s.meta.Sections[k].ID = id
			break
		}
	}
	s.prev = nil
}

func (s *scanner) flush() {
	c := s.cur
	if c == nil {
		return
	}
	s.cur = nil
	span := models.Span{Start: c.start, End: c.last}
	s.meta.Sections = append(s.meta.Sections, models.SectionMeta{Type: c.typ, ID: c.id, Position: span})
	if c.id != "" {
		s.meta.Blocks = append(s.meta.Blocks, models.BlockMeta{ID: c.id, Position: span})
	}
	for _, it := range c.items {
		itemSpan := models.Span{Start: it.start, End: it.last}
		s.meta.ListItems = append(s.meta.ListItems, models.ListItemMeta{ID: it.id, Position: itemSpan})
		if it.id != "" {
			s.meta.Blocks = append(s.meta.Blocks, models.BlockMeta{ID: it.id, Position: itemSpan})
		}
	}
	s.prev = c
}

// links records wikilinks, embeds, and local Markdown links on line i.
// Inline code spans are ignored.
func (s *scanner) links(i int) {
	text := inlineCodeRe.ReplaceAllStringFunc(s.lines[i], func(m string) string {
		return strings.Repeat(" ", len(m))
	})

	for _, m := range wikilinkRe.FindAllStringSubmatch(text, -1) {
		target, display, _ := strings.Cut(m[2], "|")
		s.add(m[1] == "!", models.LinkMeta{
			Link:        strings.TrimSpace(target),
			Original:    m[0],
			DisplayText: strings.TrimSpace(display),
			Position:    models.Line(i),
		})
	}
	for _, m := range mdLinkRe.FindAllStringSubmatch(text, -1) {
		target := m[3]
		if strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") {
			continue
		}
		if decoded, err := url.PathUnescape(target); err == nil {
			target = decoded
		}
		s.add(m[1] == "!", models.LinkMeta{
			Link:        target,
			Original:    m[0],
			DisplayText: m[2],
			Position:    models.Line(i),
		})
	}
}

func (s *scanner) add(embed bool, l models.LinkMeta) {
	if embed {
		s.meta.Embeds = append(s.meta.Embeds, l)
		return
	}
	s.meta.Links = append(s.meta.Links, l)
}

// startsIndentedCode reports four-space indented text, which is never a heading.
func startsIndentedCode(raw string) bool {
	return strings.HasPrefix(raw, "    ") || strings.HasPrefix(raw, "\t")
}
