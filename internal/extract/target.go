package extract

import (
	"strings"

	"github.com/starford/blockref/internal/models"
)

// Target is the parsed destination of a link. An empty Document means the
// link points into its own document.
type Target struct {
	Document string
	Anchor   string
	Kind     Kind
}

// ParseTarget splits link text into a target document key and anchor.
// Block targets use "^": "Note#^id", "Note^id", "#^id". Heading targets use
// "#": "Note#Heading", "#Heading"; for nested headings the last fragment
// wins. It returns false for links that name no anchor, or whose anchor
// fragment is empty.
func ParseTarget(link string) (Target, bool) {
	link = strings.TrimSpace(link)
	if i := strings.Index(link, "|"); i >= 0 {
		link = link[:i]
	}
	if link == "" {
		return Target{}, false
	}

	if note, id, ok := strings.Cut(link, "^"); ok {
		id = strings.TrimSpace(id)
		if id == "" {
			return Target{}, false
		}
		doc, _, _ := strings.Cut(note, "#")
		return Target{Document: models.DocumentKey(doc), Anchor: id, Kind: KindBlock}, true
	}

	i := strings.LastIndex(link, "#")
	if i < 0 {
		return Target{}, false
	}
	heading := strings.TrimSpace(link[i+1:])
	if heading == "" {
		return Target{}, false
	}
	doc, _, _ := strings.Cut(link, "#")
	return Target{Document: models.DocumentKey(doc), Anchor: heading, Kind: KindHeading}, true
}
