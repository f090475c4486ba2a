package parser

import (
	"testing"

	"github.com/starford/blockref/internal/models"
)

func TestParse_FrontmatterOffsetsLines(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n---\n# Hello\nBody text ^intro\n")
	m := Parse(input)
	if m.Frontmatter["title"] != "Hello" {
		t.Errorf("frontmatter = %v", m.Frontmatter)
	}
	if len(m.Headings) != 1 || m.Headings[0].Position.Start != 5 || m.Headings[0].Heading != "Hello" {
		t.Errorf("headings = %+v", m.Headings)
	}
	if len(m.Blocks) != 1 || m.Blocks[0].ID != "intro" || m.Blocks[0].Position != models.Line(6) {
		t.Errorf("blocks = %+v", m.Blocks)
	}
	if m.Sections[0].Type != models.SectionYAML || m.Sections[0].Position != (models.Span{Start: 0, End: 4}) {
		t.Errorf("first section = %+v", m.Sections[0])
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	m := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if m.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	for _, s := range m.Sections {
		if s.Type == models.SectionYAML {
			t.Errorf("invalid frontmatter should not produce a yaml section")
		}
	}
}

func TestParse_ParagraphBlockSpan(t *testing.T) {
	m := Parse([]byte("first line\nsecond line ^abc123\n\nnext paragraph\n"))
	if len(m.Blocks) != 1 {
		t.Fatalf("blocks = %+v", m.Blocks)
	}
	if m.Blocks[0].Position != (models.Span{Start: 0, End: 1}) {
		t.Errorf("block span = %+v", m.Blocks[0].Position)
	}
	if len(m.Sections) != 2 || m.Sections[0].ID != "abc123" || m.Sections[1].ID != "" {
		t.Errorf("sections = %+v", m.Sections)
	}
}

func TestParse_ListItems(t *testing.T) {
	input := "- one\n- two [[A#^x]] ^li2\n  continued\n\n- three\n\nafter\n"
	m := Parse([]byte(input))

	if len(m.ListItems) != 3 {
		t.Fatalf("list items = %+v", m.ListItems)
	}
	if m.ListItems[1].ID != "li2" || m.ListItems[1].Position != (models.Span{Start: 1, End: 2}) {
		t.Errorf("second item = %+v", m.ListItems[1])
	}
	if m.ListItems[2].Position.Start != 4 {
		t.Errorf("loose list item = %+v", m.ListItems[2])
	}
	if m.Sections[0].Type != models.SectionList || m.Sections[0].Position != (models.Span{Start: 0, End: 4}) {
		t.Errorf("list section = %+v", m.Sections[0])
	}
	if len(m.Blocks) != 1 || m.Blocks[0].ID != "li2" || m.Blocks[0].Position.Start != 1 {
		t.Errorf("blocks = %+v", m.Blocks)
	}
	if len(m.Links) != 1 || m.Links[0].Position.Start != 1 {
		t.Errorf("links = %+v", m.Links)
	}
}

func TestParse_LinksAndEmbeds(t *testing.T) {
	input := "See [[A#^abc|alias]] and ![[B#Heading]].\nAlso [label](notes/C.md#Some%20Heading) and [web](https://x.io/#a).\n`[[Ignored#^code]]`\n"
	m := Parse([]byte(input))

	if len(m.Links) != 2 {
		t.Fatalf("links = %+v", m.Links)
	}
	if l := m.Links[0]; l.Link != "A#^abc" || l.DisplayText != "alias" || l.Original != "[[A#^abc|alias]]" {
		t.Errorf("wikilink = %+v", l)
	}
	if l := m.Links[1]; l.Link != "notes/C.md#Some Heading" || l.Position.Start != 1 {
		t.Errorf("markdown link = %+v", l)
	}
	if len(m.Embeds) != 1 || m.Embeds[0].Original != "![[B#Heading]]" {
		t.Errorf("embeds = %+v", m.Embeds)
	}
}

func TestParse_CodeBlockWithStandaloneID(t *testing.T) {
	input := "```go\nx := \"[[A#^nope]]\"\n# not a heading\n```\n^code1\n\n## Real\n"
	m := Parse([]byte(input))

	if len(m.Links) != 0 {
		t.Errorf("links inside code should be ignored: %+v", m.Links)
	}
	if len(m.Headings) != 1 || m.Headings[0].Heading != "Real" || m.Headings[0].Level != 2 {
		t.Errorf("headings = %+v", m.Headings)
	}
	if len(m.Blocks) != 1 || m.Blocks[0].ID != "code1" || m.Blocks[0].Position != (models.Span{Start: 0, End: 3}) {
		t.Errorf("blocks = %+v", m.Blocks)
	}
	if m.Sections[0].Type != models.SectionCode || m.Sections[0].ID != "code1" {
		t.Errorf("code section = %+v", m.Sections[0])
	}
}

func TestParse_Blockquote(t *testing.T) {
	m := Parse([]byte("> quoted\n> more ^q1\n"))
	if len(m.Sections) != 1 || m.Sections[0].Type != models.SectionBlockquote {
		t.Fatalf("sections = %+v", m.Sections)
	}
	if len(m.Blocks) != 1 || m.Blocks[0].Position != (models.Span{Start: 0, End: 1}) {
		t.Errorf("blocks = %+v", m.Blocks)
	}
}

func TestParse_HeadingClosingHashes(t *testing.T) {
	m := Parse([]byte("## Learn C#\n### Title ###\n#tag line\n"))
	if len(m.Headings) != 2 {
		t.Fatalf("headings = %+v", m.Headings)
	}
	if m.Headings[0].Heading != "Learn C#" || m.Headings[1].Heading != "Title" {
		t.Errorf("headings = %+v", m.Headings)
	}
}

func TestParse_Empty(t *testing.T) {
	m := Parse(nil)
	if len(m.Blocks)+len(m.Headings)+len(m.Links)+len(m.Sections) != 0 {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}
