// Package datasource turns a project's notes into data frames.
//
// A DataSource is built once per project activation from the project's data
// source definition. Each query derives a fresh frame; sources keep no record
// state beyond the set of paths they last matched.
package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/storage"
)

// DataSource produces the frame of one project.
type DataSource interface {
	// Project returns the definition the source was built for.
	Project() project.Definition
	// QueryAll derives the frame of every note in the project. Notes that
	// fail to load are skipped and reported; only store-level failures are
	// returned as errors.
	QueryAll(ctx context.Context) (data.Frame, error)
	// QueryOne derives a single-record frame for file, typing values by the
	// fields already known. The frame has no records when the file no longer
	// belongs to the project.
	QueryOne(ctx context.Context, file storage.File, fields []data.Field) (data.Frame, error)
	// Includes reports whether path belongs to the project. It does no I/O.
	Includes(path string) bool
	// Readonly reports whether records can't be written back.
	Readonly() bool
}

// Notifier reports problems to the user.
type Notifier interface {
	Notify(level slog.Level, msg string)
}

// Index is the part of the note index data sources query.
type Index interface {
	PathsWithTag(tag string) ([]string, error)
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Deps are the collaborators shared by every data source.
type Deps struct {
	Store    storage.Provider
	Index    Index
	Logger   *slog.Logger
	Notifier Notifier
}

// New returns the data source for def's kind.
func New(def project.Definition, deps Deps) (DataSource, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = discard{}
	}
	n := &notes{def: def, deps: deps, members: map[string]struct{}{}}

	switch def.DataSource.Kind {
	case project.KindFolder:
		return &folderSource{notes: n, dir: cleanDir(def.DataSource.Config.Path), recursive: def.DataSource.Config.Recursive}, nil
	case project.KindTag:
		if deps.Index == nil {
			return nil, fmt.Errorf("datasource: %s source needs an index", def.DataSource.Kind)
		}
		return &tagSource{notes: n, tag: def.DataSource.Config.Tag}, nil
	case project.KindSearch:
		if deps.Index == nil {
			return nil, fmt.Errorf("datasource: %s source needs an index", def.DataSource.Kind)
		}
		return &searchSource{notes: n, query: def.DataSource.Config.Query, limit: def.DataSource.Config.Limit}, nil
	}
	return nil, fmt.Errorf("datasource: unknown kind %q", def.DataSource.Kind)
}

type discard struct{}

func (discard) Notify(slog.Level, string) {}
