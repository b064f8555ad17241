// Package render turns a structured document tree into an HTML
// fragment. The walk is pure and total: malformed or unrecognized
// nodes render to nothing so one bad node never takes down a page.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"fieldnotes/pkg/models"
)

// Catalog resolves photo ids referenced from document nodes.
type Catalog map[string]models.Photo

// NewCatalog builds a Catalog from a story's photo list. Later entries
// with a duplicate id win.
func NewCatalog(photos []models.Photo) Catalog {
	c := make(Catalog, len(photos))
	for _, p := range photos {
		if p.ID != "" {
			c[p.ID] = p
		}
	}
	return c
}

// ParseDocument decodes a stored story body into its node tree.
func ParseDocument(raw json.RawMessage) (models.Node, error) {
	var n models.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return models.Node{}, fmt.Errorf("invalid document body: %w", err)
	}
	return n, nil
}

// HTML renders a document tree against a photo catalog. It never
// fails: unknown node types and unresolvable photo references emit
// nothing while their siblings render normally.
func HTML(doc models.Node, cat Catalog) string {
	var b strings.Builder
	renderNode(&b, doc, cat)
	return b.String()
}

func renderNode(b *strings.Builder, n models.Node, cat Catalog) {
	switch n.Type {
	case models.NodeDocument:
		renderChildren(b, n, cat)
	case models.NodeParagraph:
		wrap(b, "p", n, cat)
	case models.NodeText:
		b.WriteString(renderText(n))
	case models.NodeHeading:
		tag := "h" + strconv.Itoa(n.HeadingLevel())
		wrap(b, tag, n, cat)
	case models.NodeBulletList:
		wrap(b, "ul", n, cat)
	case models.NodeOrderedList:
		wrap(b, "ol", n, cat)
	case models.NodeListItem:
		wrap(b, "li", n, cat)
	case models.NodeBlockquote:
		wrap(b, "blockquote", n, cat)
	case models.NodeHorizontalRule:
		b.WriteString("<hr/>")
	case models.NodeHardBreak:
		b.WriteString("<br/>")
	case models.NodePhoto:
		renderPhoto(b, n, cat)
	default:
		// unknown node type: emit nothing, keep walking siblings
	}
}

func renderChildren(b *strings.Builder, n models.Node, cat Catalog) {
	for _, c := range n.Content {
		renderNode(b, c, cat)
	}
}

func wrap(b *strings.Builder, tag string, n models.Node, cat Catalog) {
	b.WriteString("<" + tag + ">")
	renderChildren(b, n, cat)
	b.WriteString("</" + tag + ">")
}

// markTags maps mark types to their wrapper elements.
var markTags = map[string]string{
	models.MarkBold:   "strong",
	models.MarkItalic: "em",
	models.MarkStrike: "s",
	models.MarkCode:   "code",
}

// renderText emits escaped literal text with its marks applied. Marks
// are walked in node order and each newly-seen wrapper nests around
// the accumulated result, so [bold, italic] yields
// <em><strong>text</strong></em>. Repeated and unknown marks are
// skipped, which keeps the result independent of duplicates.
func renderText(n models.Node) string {
	out := html.EscapeString(n.Text)
	seen := map[string]bool{}
	for _, m := range n.Marks {
		tag, ok := markTags[m.Type]
		if !ok || seen[m.Type] {
			continue
		}
		seen[m.Type] = true
		out = "<" + tag + ">" + out + "</" + tag + ">"
	}
	return out
}

// renderPhoto resolves the node's id against the catalog. A missing or
// unknown id emits nothing; the rest of the document still renders.
func renderPhoto(b *strings.Builder, n models.Node, cat Catalog) {
	id := n.AttrString("id")
	if id == "" {
		return
	}
	p, ok := cat[id]
	if !ok {
		return
	}
	b.WriteString(`<figure><img src="` + html.EscapeString(p.RelativePath) + `" alt="` + html.EscapeString(p.Alt) + `"/>`)
	if p.Caption != "" || p.Credit != "" {
		b.WriteString("<figcaption>")
		if p.Caption != "" {
			b.WriteString(html.EscapeString(p.Caption))
		}
		if p.Credit != "" {
			if p.Caption != "" {
				b.WriteString(" ")
			}
			b.WriteString("<cite>" + html.EscapeString(p.Credit) + "</cite>")
		}
		b.WriteString("</figcaption>")
	}
	b.WriteString("</figure>")
}
