package datasource

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/storage"
)

// folderSource holds the notes of one vault folder.
type folderSource struct {
	*notes
	dir       string // "" for the vault root
	recursive bool
}

func cleanDir(dir string) string {
	return strings.Trim(path.Clean("/"+strings.ReplaceAll(dir, `\`, "/")), "/")
}

func (s *folderSource) Includes(p string) bool {
	if !strings.HasSuffix(p, ".md") {
		return false
	}
	rel := p
	if s.dir != "" {
		var ok bool
		rel, ok = strings.CutPrefix(p, s.dir+"/")
		if !ok {
			return false
		}
	}
	return s.recursive || !strings.Contains(rel, "/")
}

func (s *folderSource) Readonly() bool { return false }

func (s *folderSource) QueryAll(ctx context.Context) (data.Frame, error) {
	files, err := s.deps.Store.List(s.dir, s.recursive)
	if errors.Is(err, apperr.ErrNotFound) {
		// The folder may not exist until the first note is added.
		files, err = nil, nil
	}
	if err != nil {
		return data.Frame{}, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return s.load(ctx, "query_all", paths, nil, extra{})
}

func (s *folderSource) QueryOne(ctx context.Context, file storage.File, fields []data.Field) (data.Frame, error) {
	if !s.Includes(file.Path) {
		return emptyFrame(fields), nil
	}
	return s.load(ctx, "query_one", []string{file.Path}, fields, extra{})
}

// tagSource holds the notes carrying a tag.
type tagSource struct {
	*notes
	tag string
}

// Includes reports whether path carried the tag when last queried.
func (s *tagSource) Includes(p string) bool { return s.isMember(p) }

func (s *tagSource) Readonly() bool { return false }

func (s *tagSource) QueryAll(ctx context.Context) (data.Frame, error) {
	paths, err := s.deps.Index.PathsWithTag(s.tag)
	if err != nil {
		return data.Frame{}, err
	}
	s.setMembers(paths)
	return s.load(ctx, "query_all", paths, nil, extra{})
}

func (s *tagSource) QueryOne(ctx context.Context, file storage.File, fields []data.Field) (data.Frame, error) {
	paths, err := s.deps.Index.PathsWithTag(s.tag)
	if err != nil {
		return data.Frame{}, err
	}
	ok := slices.Contains(paths, file.Path)
	s.setMember(file.Path, ok)
	if !ok {
		return emptyFrame(fields), nil
	}
	return s.load(ctx, "query_one", []string{file.Path}, fields, extra{})
}

// Search fields. Both are derived from the index.
const (
	FieldTitle   = "title"
	FieldSnippet = "snippet"
)

// searchSource holds the notes matching a full-text query. Its records mix
// index data with front matter, so it is read-only.
type searchSource struct {
	*notes
	query string
	limit int
}

func (s *searchSource) Includes(p string) bool { return s.isMember(p) }

func (s *searchSource) Readonly() bool { return true }

func (s *searchSource) search() ([]string, extra, error) {
	results, err := s.deps.Index.Search(s.query, s.limit)
	if err != nil {
		return nil, extra{}, err
	}
	ex := extra{
		fields: []data.Field{
			{Name: FieldTitle, Type: data.TypeString, Derived: true},
			{Name: FieldSnippet, Type: data.TypeString, Derived: true},
		},
		values: make(map[string]map[string]any, len(results)),
	}
	paths := make([]string, 0, len(results))
	for _, r := range results {
		if _, dup := ex.values[r.Path]; dup {
			continue
		}
		paths = append(paths, r.Path)
		ex.values[r.Path] = map[string]any{FieldTitle: r.Title, FieldSnippet: r.Snippet}
	}
	return paths, ex, nil
}

func (s *searchSource) QueryAll(ctx context.Context) (data.Frame, error) {
	paths, ex, err := s.search()
	if err != nil {
		return data.Frame{}, err
	}
	s.setMembers(paths)
	return s.load(ctx, "query_all", paths, nil, ex)
}

func (s *searchSource) QueryOne(ctx context.Context, file storage.File, fields []data.Field) (data.Frame, error) {
	paths, ex, err := s.search()
	if err != nil {
		return data.Frame{}, err
	}
	ok := slices.Contains(paths, file.Path)
	s.setMember(file.Path, ok)
	if !ok {
		return emptyFrame(fields), nil
	}
	return s.load(ctx, "query_one", []string{file.Path}, fields, ex)
}
