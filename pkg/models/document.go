package models

import "encoding/json"

// Node types understood by the renderer. Anything else falls through
// the renderer's default case and produces no output.
const (
	NodeDocument       = "doc"
	NodeParagraph      = "paragraph"
	NodeText           = "text"
	NodeHeading        = "heading"
	NodeBulletList     = "bulletList"
	NodeOrderedList    = "orderedList"
	NodeListItem       = "listItem"
	NodeBlockquote     = "blockquote"
	NodeHorizontalRule = "horizontalRule"
	NodeHardBreak      = "hardBreak"
	NodePhoto          = "photo"
)

// Mark types applied to text nodes.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkStrike = "strike"
	MarkCode   = "code"
)

// Node is one element of a structured document tree. Text nodes carry
// Text and optionally Marks but never Content; container nodes carry
// Content but no Text.
type Node struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
}

// Mark is an inline formatting attribute on a text node.
type Mark struct {
	Type string `json:"type"`
}

// nodeAlias avoids UnmarshalJSON recursion.
type nodeAlias Node

// UnmarshalJSON accepts a `content` field holding either an array of
// nodes or a single node object; a single node is treated as a
// one-element sequence.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		nodeAlias
		Content json.RawMessage `json:"content,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node(raw.nodeAlias)
	n.Content = nil
	if len(raw.Content) == 0 {
		return nil
	}
	trimmed := firstNonSpace(raw.Content)
	if trimmed == '{' {
		var single Node
		if err := json.Unmarshal(raw.Content, &single); err != nil {
			return err
		}
		n.Content = []Node{single}
		return nil
	}
	if trimmed == 'n' { // null
		return nil
	}
	var many []Node
	if err := json.Unmarshal(raw.Content, &many); err != nil {
		return err
	}
	n.Content = many
	return nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		return c
	}
	return 0
}

// HeadingLevel returns the integer `level` attribute of a heading node,
// defaulting to 2 when absent or outside h1..h6.
func (n *Node) HeadingLevel() int {
	v, ok := n.Attrs["level"]
	if !ok {
		return 2
	}
	var lvl int
	switch t := v.(type) {
	case float64:
		lvl = int(t)
	case int:
		lvl = t
	default:
		return 2
	}
	if lvl < 1 || lvl > 6 {
		return 2
	}
	return lvl
}

// AttrString returns a string attribute or "" when missing.
func (n *Node) AttrString(name string) string {
	if v, ok := n.Attrs[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
