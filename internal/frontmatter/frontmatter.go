// Package frontmatter reads and rewrites the YAML block at the top of a note.
//
// A block starts at the very first byte of the text with a line containing
// exactly "---" and ends at the next such line. Everything after the closing
// line is the body and is never modified.
package frontmatter

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// ErrEmptyValue is returned for an empty-value token YAML would not read back
// as null.
var ErrEmptyValue = errors.New("frontmatter: unsupported empty value token")

// ParseError reports an existing block that is not a valid YAML mapping.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "frontmatter: invalid front matter: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// block holds byte offsets into the text for a located block.
type block struct {
	yamlStart int // first byte after the opening line
	yamlEnd   int // first byte of the closing line
	closeEnd  int // first byte after the closing "---"
	bodyStart int // first byte after the closing line's newline
}

func locate(text string) (block, bool) {
	var b block
	switch {
	case strings.HasPrefix(text, delim+"\n"):
		b.yamlStart = len(delim) + 1
	case strings.HasPrefix(text, delim+"\r\n"):
		b.yamlStart = len(delim) + 2
	default:
		return b, false
	}

	pos := b.yamlStart
	for pos <= len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		lineEnd := len(text)
		next := len(text)
		if end >= 0 {
			lineEnd = pos + end
			next = lineEnd + 1
		}
		if strings.TrimSuffix(text[pos:lineEnd], "\r") == delim {
			b.yamlEnd = pos
			b.closeEnd = pos + len(delim)
			b.bodyStart = next
			return b, true
		}
		if end < 0 {
			break
		}
		pos = next
	}
	return block{}, false
}

// Split separates the front matter of text from its body. When text has no
// block, ok is false and body is text.
func Split(text string) (yamlText, body string, ok bool) {
	b, ok := locate(text)
	if !ok {
		return "", text, false
	}
	return text[b.yamlStart:b.yamlEnd], text[b.bodyStart:], true
}

// Decode returns the front matter of text as a map. It returns nil when text
// has no block and an empty map when the block is empty.
func Decode(text string) (map[string]any, error) {
	yamlText, _, ok := Split(text)
	if !ok {
		return nil, nil
	}
	doc, err := parse(yamlText)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if m := mappingOf(doc); m != nil {
		if err := m.Decode(&out); err != nil {
			return nil, &ParseError{Err: err}
		}
	}
	return out, nil
}

// parse reads the block into a document node whose content, if any, is a
// mapping.
func parse(yamlText string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.DocumentNode, HeadComment: comments(yamlText)}, nil
	}

	root := doc.Content[0]
	switch {
	case root.Kind == yaml.MappingNode:
	case root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null":
		doc.Content = nil
	default:
		return nil, &ParseError{Err: errors.New("root is not a mapping")}
	}
	return &doc, nil
}

func mappingOf(doc *yaml.Node) *yaml.Node {
	if len(doc.Content) == 0 {
		return nil
	}
	return doc.Content[0]
}

// comments returns the comment lines of a block that holds nothing else.
func comments(yamlText string) string {
	var lines []string
	for _, line := range strings.Split(yamlText, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ensureMapping returns the root mapping of doc, creating it when the block
// was empty. Comments of an empty block move onto the new mapping.
func ensureMapping(doc *yaml.Node) *yaml.Node {
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map", HeadComment: doc.HeadComment}}
		doc.HeadComment = ""
	}
	return doc.Content[0]
}

// detach prepares gone to leave doc: every alias in doc that points into
// gone is replaced by a copy of the aliased node. Merge keys are aliases too.
func detach(doc, gone *yaml.Node) {
	anchored := map[*yaml.Node]bool{}
	collectAnchors(gone, anchored)
	if len(anchored) == 0 {
		return
	}
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		for i, child := range n.Content {
			if child.Kind == yaml.AliasNode && anchored[child.Alias] {
				child = inline(child.Alias)
				n.Content[i] = child
			}
			walk(child)
		}
	}
	walk(doc)
}

func collectAnchors(n *yaml.Node, anchored map[*yaml.Node]bool) {
	if n.Anchor != "" {
		anchored[n] = true
	}
	for _, child := range n.Content {
		collectAnchors(child, anchored)
	}
}

// inline deep-copies n without anchors. Aliases inside the copy are kept and
// resolved by the caller's walk.
func inline(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.HeadComment, c.LineComment, c.FootComment = "", "", ""
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		c.Content[i] = inline(child)
	}
	return &c
}

// keyIndex returns the index of the key node for key in a mapping's content,
// or -1.
func keyIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// rewrite re-serializes doc into text. A document without keys removes the
// block.
func rewrite(text string, b block, found bool, doc *yaml.Node) (string, error) {
	m := mappingOf(doc)
	if m == nil || len(m.Content) == 0 {
		if !found {
			return text, nil
		}
		return text[b.bodyStart:], nil
	}

	out, err := serialize(doc)
	if err != nil {
		return "", err
	}
	if _, err := parse(out); err != nil {
		return "", fmt.Errorf("frontmatter: rewritten block does not parse: %w", err)
	}
	if !found {
		return delim + "\n" + out + delim + "\n\n" + text, nil
	}
	return delim + "\n" + out + delim + text[b.closeEnd:], nil
}

// load locates and parses the block of text, returning an empty document
// when there is none.
func load(text string) (block, bool, *yaml.Node, error) {
	b, found := locate(text)
	if !found {
		return b, false, &yaml.Node{Kind: yaml.DocumentNode}, nil
	}
	doc, err := parse(text[b.yamlStart:b.yamlEnd])
	if err != nil {
		return b, true, nil, err
	}
	return b, true, doc, nil
}
