// Package viewapi writes view edits back into note front matter.
package viewapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/datasource"
	"github.com/starford/projects/internal/frontmatter"
	"github.com/starford/projects/internal/metrics"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/storage"
	"github.com/starford/projects/internal/view"
)

// ErrDerivedField is returned when an edit targets a derived field.
var ErrDerivedField = errors.New("viewapi: field is derived")

// Indexer keeps the note index current after a write. Writes reported here
// are known to come from this process.
type Indexer interface {
	NoteWritten(path string, data []byte) error
	NoteDeleted(path string) error
}

// Service implements view.API for one project's data source.
type Service struct {
	source datasource.DataSource
	store  storage.Provider
	index  Indexer
	logger *slog.Logger
	opts   []frontmatter.Option
}

var _ view.API = (*Service)(nil)

// New creates a write-back service. index may be nil.
func New(source datasource.DataSource, store storage.Provider, index Indexer, logger *slog.Logger, opts ...frontmatter.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, store: store, index: index, logger: logger, opts: opts}
}

// AddRecord creates a note for a new record and returns its path. An empty
// name falls back to the project's default name; the path is made unique.
func (s *Service) AddRecord(ctx context.Context, name string, values map[string]any) (id string, err error) {
	defer func() { observe("add_record", err) }()
	if err := s.writable(ctx); err != nil {
		return "", err
	}

	def := s.source.Project()
	if name = sanitizeName(name); name == "" {
		name = sanitizeName(def.DefaultName)
	}
	if name == "" {
		name = "Untitled"
	}

	patch := make(map[string]any, len(values)+1)
	for k, v := range values {
		if k == datasource.FieldPath || k == datasource.FieldName {
			continue
		}
		patch[k] = v
	}
	if def.DataSource.Kind == project.KindTag {
		patch["tags"] = withTag(patch["tags"], def.DataSource.Config.Tag)
	}

	dir := ""
	if def.DataSource.Kind == project.KindFolder {
		dir = strings.Trim(def.DataSource.Config.Path, "/")
	}
	p, err := s.uniquePath(dir, name)
	if err != nil {
		return "", err
	}

	content, err := frontmatter.Encode("", patch, s.opts...)
	if err != nil {
		return "", fmt.Errorf("viewapi: add record: %w", err)
	}
	if err := s.write(p, content); err != nil {
		return "", err
	}
	return p, nil
}

// UpdateRecord merges the record's non-derived values into its note's front
// matter. Keys missing from the record are left untouched.
func (s *Service) UpdateRecord(ctx context.Context, record data.Record, fields []data.Field) (err error) {
	defer func() { observe("update_record", err) }()
	if err := s.writable(ctx); err != nil {
		return err
	}

	derived := derivedNames(fields)
	patch := make(map[string]any, len(record.Values))
	for k, v := range record.Values {
		if !derived[k] {
			patch[k] = v
		}
	}
	if len(patch) == 0 {
		return nil
	}

	return s.rewrite(record.ID, func(text string) (string, error) {
		return frontmatter.Encode(text, patch, s.opts...)
	})
}

// PatchRecord merges patch into the front matter of the note id. Unlike
// UpdateRecord, a patch naming a derived field is refused with
// ErrDerivedField and nothing is written.
func (s *Service) PatchRecord(ctx context.Context, id string, patch map[string]any, fields []data.Field) error {
	derived := derivedNames(fields)
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if derived[k] {
			observe("update_record", ErrDerivedField)
			return fmt.Errorf("%w: %s", ErrDerivedField, k)
		}
	}
	return s.UpdateRecord(ctx, data.Record{ID: id, Values: patch}, fields)
}

func derivedNames(fields []data.Field) map[string]bool {
	derived := map[string]bool{datasource.FieldPath: true, datasource.FieldName: true}
	for _, f := range fields {
		if f.Derived {
			derived[f.Name] = true
		}
	}
	return derived
}

// DeleteRecord removes the record's note.
func (s *Service) DeleteRecord(ctx context.Context, id string) (err error) {
	defer func() { observe("delete_record", err) }()
	if err := s.writable(ctx); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.NoteDeleted(id); err != nil {
			s.logger.Warn("viewapi: index delete failed", slog.String("path", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

// UpdateField renames a front matter key in every note of the project.
func (s *Service) UpdateField(ctx context.Context, from, to string) (err error) {
	defer func() { observe("update_field", err) }()
	if from == to {
		return nil
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("viewapi: update field: empty name")
	}
	return s.eachNote(ctx, []string{from, to}, func(text string) (string, error) {
		return frontmatter.Rename(text, from, to)
	})
}

// DeleteField removes a front matter key from every note of the project.
func (s *Service) DeleteField(ctx context.Context, name string) (err error) {
	defer func() { observe("delete_field", err) }()
	return s.eachNote(ctx, []string{name}, func(text string) (string, error) {
		return frontmatter.Remove(text, name)
	})
}

func (s *Service) writable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.source.Readonly() {
		return apperr.ErrReadonly
	}
	return nil
}

// eachNote applies edit to every note of the project. names must not be
// derived fields.
func (s *Service) eachNote(ctx context.Context, names []string, edit func(string) (string, error)) error {
	if err := s.writable(ctx); err != nil {
		return err
	}
	frame, err := s.source.QueryAll(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if f, ok := frame.Field(name); ok && f.Derived {
			return fmt.Errorf("%w: %s", ErrDerivedField, name)
		}
	}

	var errs []error
	for _, r := range frame.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.rewrite(r.ID, edit); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// rewrite applies edit to the note at p and writes it back when it changed.
func (s *Service) rewrite(p string, edit func(string) (string, error)) error {
	content, err := s.store.Read(p)
	if err != nil {
		return err
	}
	updated, err := edit(string(content))
	if err != nil {
		return fmt.Errorf("viewapi: %s: %w", p, err)
	}
	if updated == string(content) {
		return nil
	}
	return s.write(p, updated)
}

func (s *Service) write(p, content string) error {
	if err := s.store.Write(p, []byte(content)); err != nil {
		return err
	}
	if s.index == nil {
		return nil
	}
	if err := s.index.NoteWritten(p, []byte(content)); err != nil {
		// The watcher picks the note up again; the write itself succeeded.
		s.logger.Warn("viewapi: index update failed", slog.String("path", p), slog.String("error", err.Error()))
	}
	return nil
}

func (s *Service) uniquePath(dir, name string) (string, error) {
	for i := 0; ; i++ {
		base := name
		if i > 0 {
			base = name + " " + strconv.Itoa(i)
		}
		p := path.Join(dir, base+".md")
		_, err := s.store.Stat(p)
		if errors.Is(err, apperr.ErrNotFound) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
	}
}

var unsafeName = regexp.MustCompile(`[\\/:*?"<>|#^\[\]]+`)

func sanitizeName(name string) string {
	return strings.Join(strings.Fields(unsafeName.ReplaceAllString(name, " ")), " ")
}

func withTag(v any, tag string) any {
	tag = strings.TrimPrefix(tag, "#")
	tags, _ := data.ParseValue(v, data.TypeList, "").([]string)
	for _, t := range tags {
		if strings.EqualFold(strings.TrimPrefix(t, "#"), tag) {
			return tags
		}
	}
	return append(tags, tag)
}

func observe(op string, err error) {
	metrics.RecordWrites.WithLabelValues(op, metrics.Result(err)).Inc()
}
