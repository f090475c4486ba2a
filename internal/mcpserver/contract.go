package mcpserver

// ReferenceSyntax documents the link forms the index resolves, for LLM
// consumers composing queries or new references.
const ReferenceSyntax = `# Block Reference Syntax

Anchors are places inside a document that other documents can point at.

## Anchors

- **Block**: any paragraph, list item, quote or code block ending in ` + "`" + ` ^id` + "`" + `.
  Ids use letters, digits and dashes. An id on its own line labels the block above it.
- **Heading**: every Markdown heading (` + "`" + `# Title` + "`" + ` to ` + "`" + `###### Title` + "`" + `).

## References

| Form | Target |
|------|--------|
| ` + "`" + `[[Doc#^id]]` + "`" + ` | block ` + "`" + `id` + "`" + ` in Doc |
| ` + "`" + `[[Doc#Heading]]` + "`" + ` | heading in Doc |
| ` + "`" + `[[#^id]]` + "`" + `, ` + "`" + `[[#Heading]]` + "`" + ` | anchor in the same document |
| ` + "`" + `![[Doc#^id]]` + "`" + ` | embed of the block |
| ` + "`" + `[[Doc#^id|label]]` + "`" + ` | alias; the label is display text only |
| ` + "`" + `[label](Doc.md#^id)` + "`" + ` | Markdown link, resolved like a wikilink |

## Resolution rules

1. Doc is the file name without ` + "`" + `.md` + "`" + `; folders are ignored (` + "`" + `[[notes/Doc#^id]]` + "`" + ` targets Doc).
2. Heading matching ignores case, whitespace and punctuation: ` + "`" + `My Heading!` + "`" + ` matches ` + "`" + `myheading` + "`" + `.
3. Several references on the same line to the same anchor count once.
4. Links without a ` + "`" + `#` + "`" + ` fragment point at whole documents and are not counted.
`
