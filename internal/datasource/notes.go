package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/frontmatter"
	"github.com/starford/projects/internal/metrics"
	"github.com/starford/projects/internal/project"
)

// Derived fields every note-backed record carries.
const (
	FieldPath = "path"
	FieldName = "name"
)

func derivedFields() []data.Field {
	return []data.Field{
		{Name: FieldPath, Type: data.TypeString, Identifier: true, Derived: true},
		{Name: FieldName, Type: data.TypeString, Derived: true},
	}
}

// notes builds frames from note front matter. The kinds embed it and decide
// which paths to load.
type notes struct {
	def  project.Definition
	deps Deps

	mu      sync.RWMutex
	members map[string]struct{}
}

func (n *notes) Project() project.Definition { return n.def }

func (n *notes) kind() string { return string(n.def.DataSource.Kind) }

func (n *notes) isMember(p string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.members[p]
	return ok
}

func (n *notes) setMembers(paths []string) {
	members := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		members[p] = struct{}{}
	}
	n.mu.Lock()
	n.members = members
	n.mu.Unlock()
}

func (n *notes) setMember(p string, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ok {
		n.members[p] = struct{}{}
	} else {
		delete(n.members, p)
	}
}

// extra holds values a source adds to a record beyond its front matter.
type extra struct {
	fields []data.Field
	values map[string]map[string]any // by path
}

// load reads paths into a frame. hints type the values of known fields;
// unknown fields are detected from the values read. Notes that fail to load
// are logged, counted and reported once through the notifier.
func (n *notes) load(ctx context.Context, op string, paths []string, hints []data.Field, ex extra) (frame data.Frame, err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery(n.kind(), op, start, err) }()

	fixed := append(derivedFields(), ex.fields...)
	reserved := make(map[string]struct{}, len(fixed))
	for _, f := range fixed {
		reserved[f.Name] = struct{}{}
	}
	types := make(map[string]data.FieldType, len(hints))
	for _, f := range hints {
		types[f.Name] = f.Type
	}

	var (
		records []data.Record
		props   []data.Record
		skipped []string
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return data.Frame{}, err
		}

		fm, err := n.readFrontMatter(p)
		if err != nil {
			n.deps.Logger.Warn("datasource: skipping note",
				slog.String("project", n.def.ID),
				slog.String("path", p),
				slog.String("error", err.Error()))
			metrics.SkippedNotes.WithLabelValues(n.kind()).Inc()
			skipped = append(skipped, p)
			continue
		}

		values := map[string]any{
			FieldPath: p,
			FieldName: strings.TrimSuffix(path.Base(p), ".md"),
		}
		own := make(map[string]any, len(fm))
		for k, raw := range fm {
			if _, ok := reserved[k]; ok {
				continue
			}
			v := data.ParseValue(raw, types[k], p)
			values[k] = v
			own[k] = v
		}
		for k, v := range ex.values[p] {
			values[k] = v
		}

		records = append(records, data.Record{ID: p, Values: values})
		props = append(props, data.Record{ID: p, Values: own})
	}

	if len(skipped) > 0 {
		n.deps.Notifier.Notify(slog.LevelWarn, skippedMessage(n.def.Name, skipped))
	}

	fields := data.Frame{Fields: fixed}.WithFields(hints).WithFields(data.DetectFields(props)).Fields
	if records == nil {
		records = []data.Record{}
	}
	return data.Frame{Fields: fields, Records: records}, nil
}

// readFrontMatter returns the decoded front matter of the note at p. A note
// without a block has no values.
func (n *notes) readFrontMatter(p string) (map[string]any, error) {
	content, err := n.deps.Store.Read(p)
	if err != nil {
		return nil, err
	}
	fm, err := frontmatter.Decode(string(content))
	if err != nil {
		return nil, err
	}
	return fm, nil
}

func skippedMessage(project string, paths []string) string {
	if len(paths) == 1 {
		return fmt.Sprintf("%s: skipped %s", project, paths[0])
	}
	return fmt.Sprintf("%s: skipped %d notes, first %s", project, len(paths), paths[0])
}

// emptyFrame is the result of QueryOne for a file outside the project.
func emptyFrame(fields []data.Field) data.Frame {
	f := data.Frame{Fields: fields, Records: []data.Record{}}
	if f.Fields == nil {
		f.Fields = derivedFields()
	}
	return f
}
