package extract

import (
	"strings"
	"unicode"
)

var headingMarkup = strings.NewReplacer(
	"[", "", "]", "", "#", "", "*", "", "(", "", ")", "",
	"|", " ",
)

// NormalizeHeading reduces heading text, or the heading fragment of a link,
// to its anchor key: markup characters removed, alias pipes folded, then all
// whitespace and punctuation dropped and the rest lower-cased. It is
// idempotent, so raw and already-normalized inputs compare equal.
func NormalizeHeading(s string) string {
	s = headingMarkup.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
