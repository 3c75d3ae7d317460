package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/projects/internal/data"
)

// EmptyValues lists the tokens accepted by WithEmptyValue.
var EmptyValues = []string{"", "~", "null"}

type options struct {
	emptyValue string
}

// Option configures how values are serialized.
type Option func(*options)

// WithEmptyValue sets the token written for a key that is present but has no
// value. The default writes nothing after the colon.
func WithEmptyValue(token string) Option {
	return func(o *options) {
		o.emptyValue = token
	}
}

func newOptions(opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	for _, v := range EmptyValues {
		if o.emptyValue == v {
			return o, nil
		}
	}
	return o, fmt.Errorf("%w: %q", ErrEmptyValue, o.emptyValue)
}

// Encode merges patch into the front matter of text and returns the updated
// text. Keys in patch replace existing keys in place; new keys are appended in
// sorted order. A nil value writes an empty key. When the merged mapping is
// empty the block is removed. The body is never modified.
//
// An existing block that cannot be parsed yields a *ParseError and text is not
// rewritten.
func Encode(text string, patch map[string]any, opts ...Option) (string, error) {
	o, err := newOptions(opts)
	if err != nil {
		return "", err
	}
	b, found, doc, err := load(text)
	if err != nil {
		return "", err
	}

	if len(patch) > 0 {
		m := ensureMapping(doc)
		var added []string
		for key := range patch {
			if keyIndex(m, key) < 0 {
				added = append(added, key)
			}
		}
		sort.Strings(added)

		for key, value := range patch {
			i := keyIndex(m, key)
			if i < 0 {
				continue
			}
			n, err := valueNode(value, o)
			if err != nil {
				return "", fmt.Errorf("frontmatter: encode %q: %w", key, err)
			}
			old := m.Content[i+1]
			n.LineComment = old.LineComment
			m.Content[i+1] = n
			detach(doc, old)
		}
		for _, key := range added {
			n, err := valueNode(patch[key], o)
			if err != nil {
				return "", fmt.Errorf("frontmatter: encode %q: %w", key, err)
			}
			m.Content = append(m.Content, keyNode(key), n)
		}
	}

	return rewrite(text, b, found, doc)
}

// Remove deletes keys from the front matter of text.
func Remove(text string, keys ...string) (string, error) {
	b, found, doc, err := load(text)
	if err != nil || !found {
		return text, err
	}
	m := mappingOf(doc)
	if m == nil {
		return text, nil
	}

	changed := false
	for _, key := range keys {
		if i := keyIndex(m, key); i >= 0 {
			old := m.Content[i+1]
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			detach(doc, old)
			changed = true
		}
	}
	if !changed {
		return text, nil
	}
	return rewrite(text, b, found, doc)
}

// Rename moves the value of key from to key to, keeping its position. An
// existing key named to is replaced.
func Rename(text, from, to string) (string, error) {
	b, found, doc, err := load(text)
	if err != nil || !found || from == to {
		return text, err
	}
	m := mappingOf(doc)
	if m == nil {
		return text, nil
	}
	i := keyIndex(m, from)
	if i < 0 {
		return text, nil
	}

	m.Content[i].Value = to
	for j := 0; j+1 < len(m.Content); j += 2 {
		if j != i && m.Content[j].Value == to {
			old := m.Content[j+1]
			m.Content = append(m.Content[:j], m.Content[j+2:]...)
			detach(doc, old)
			break
		}
	}
	return rewrite(text, b, found, doc)
}

// StringifyYAML serializes v the way Encode serializes front matter.
func StringifyYAML(v any, opts ...Option) (string, error) {
	o, err := newOptions(opts)
	if err != nil {
		return "", err
	}

	var root *yaml.Node
	if m, ok := v.(map[string]any); ok {
		root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n, err := valueNode(m[k], o)
			if err != nil {
				return "", fmt.Errorf("frontmatter: stringify %q: %w", k, err)
			}
			root.Content = append(root.Content, keyNode(k), n)
		}
	} else {
		root, err = valueNode(v, o)
		if err != nil {
			return "", fmt.Errorf("frontmatter: stringify: %w", err)
		}
	}
	return serialize(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

func valueNode(v any, o options) (*yaml.Node, error) {
	if data.IsOptional(v) {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: o.emptyValue}, nil
	}
	n := new(yaml.Node)
	if err := n.Encode(normalize(v)); err != nil {
		return nil, err
	}
	if n.Kind == yaml.SequenceNode && scalars(n.Content) {
		n.Style = yaml.FlowStyle
	}
	return n, nil
}

func scalars(nodes []*yaml.Node) bool {
	for _, n := range nodes {
		if n.Kind != yaml.ScalarNode || strings.Contains(n.Value, "\n") {
			return false
		}
	}
	return true
}

func normalize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	}
	return data.EncodeValue(v)
}

func serialize(doc *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("frontmatter: serialize: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: serialize: %w", err)
	}
	return postprocess(buf.String()), nil
}

var (
	quotedProperty = regexp.MustCompile(`(?m)^([^\s#'"\-][^\n]*?): ("(?:[^"\\\n]|\\.)*"|'(?:[^'\n]|'')*')$`)
	ambiguous      = regexp.MustCompile(`[:|\-]\s`)
)

// postprocess removes quotes from top-level single-line string values when
// the plain form reads back as the same string.
func postprocess(out string) string {
	return quotedProperty.ReplaceAllStringFunc(out, func(line string) string {
		m := quotedProperty.FindStringSubmatch(line)
		if s, ok := unquote(m[2]); ok {
			return m[1] + ": " + s
		}
		return line
	})
}

func unquote(quoted string) (string, bool) {
	var before map[string]any
	if err := yaml.Unmarshal([]byte("v: "+quoted), &before); err != nil {
		return "", false
	}
	s, ok := before["v"].(string)
	if !ok || s == "" || strings.TrimSpace(s) != s || strings.ContainsAny(s, "\r\n") || ambiguous.MatchString(s) {
		return "", false
	}

	var after map[string]any
	if err := yaml.Unmarshal([]byte("v: "+s), &after); err != nil {
		return "", false
	}
	if plain, ok := after["v"].(string); !ok || plain != s {
		return "", false
	}
	return s, true
}
