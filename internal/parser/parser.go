// Package parser extracts front matter, wikilinks, tags and a title from
// Markdown content.
package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/projects/internal/frontmatter"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
	// Malformed is set when the note starts with a front matter block that
	// could not be parsed. The whole content is then treated as body.
	Malformed error
}

// Parse extracts front matter, body, wikilinks, and tags from raw Markdown
// bytes. A malformed front matter block is not an error here; it is reported
// in Result.Malformed.
func Parse(data []byte) (*Result, error) {
	content := string(data)
	r := &Result{Body: content}

	fm, err := frontmatter.Decode(content)
	var pe *frontmatter.ParseError
	switch {
	case errors.As(err, &pe):
		r.Malformed = pe
	case err != nil:
		return nil, err
	case fm != nil:
		_, body, _ := frontmatter.Split(content)
		r.Frontmatter = fm
		r.Body = body
	}

	r.Links = extractLinks(r.Body)
	r.Tags = extractTags(r.Body, r.Frontmatter)
	r.Title = deriveTitle(r.Frontmatter, r.Body)
	return r, nil
}

// extractLinks returns deduplicated wikilink targets, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		// [[Target|Alias]] → Target.
		target, _, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects #tags from body and from the front matter "tags" field.
// Front matter tags may be a list or a single string and may carry a leading #.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s == "" {
			return
		}
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		add(v)
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the front matter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}

	source := []byte(body)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level == 1 {
			title = strings.TrimSpace(string(n.Text(source)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}
