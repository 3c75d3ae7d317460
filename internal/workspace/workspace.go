// Package workspace hosts the active project and its view.
//
// A Workspace owns one view Controller bound to an in-memory Surface. It
// builds a data source when a project is activated, keeps the current frame
// and feeds it to the controller as notes change.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/datasource"
	"github.com/starford/projects/internal/frontmatter"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/view"
	"github.com/starford/projects/internal/viewapi"
)

// Projects resolves project definitions and persists view configs.
type Projects interface {
	Project(id string) (project.Definition, error)
	SaveViewConfig(projectID, viewID string, cfg map[string]any) error
}

// Publisher is told about record changes in the active project.
type Publisher interface {
	PublishRecordEvent(kind, projectID, recordID string)
}

// Config holds the collaborators of a Workspace.
type Config struct {
	Projects    Projects
	Sources     datasource.Deps
	Indexer     viewapi.Indexer
	Registry    view.Registry
	Publisher   Publisher
	Frontmatter []frontmatter.Option
	Logger      *slog.Logger
}

// session is the state of one activated project.
type session struct {
	def    project.Definition
	view   project.ViewDefinition
	source datasource.DataSource
	api    *viewapi.Service

	mu    sync.Mutex
	frame data.Frame
}

func (s *session) currentFrame() data.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Workspace is safe for concurrent use.
type Workspace struct {
	cfg     Config
	logger  *slog.Logger
	surface *view.Surface
	ctrl    *view.Controller
	flight  singleflight.Group

	mu     sync.Mutex
	active *session
	closed bool
}

// New creates a workspace with nothing active.
func New(cfg Config) *Workspace {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sources.Logger == nil {
		cfg.Sources.Logger = cfg.Logger
	}
	surface := &view.Surface{}
	return &Workspace{
		cfg:     cfg,
		logger:  cfg.Logger,
		surface: surface,
		ctrl:    view.NewController(surface, cfg.Registry, cfg.Logger),
	}
}

// Activate makes projectID the active project and viewID its view. An empty
// viewID selects the project's first view. The data source is rebuilt only
// when the project changes. A failing query is reported and leaves the view
// with an empty frame.
func (w *Workspace) Activate(ctx context.Context, projectID, viewID string) error {
	def, err := w.cfg.Projects.Project(projectID)
	if err != nil {
		return err
	}
	vd, err := pickView(def, viewID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	prev, closed := w.active, w.closed
	w.mu.Unlock()
	if closed {
		return errors.New("workspace: closed")
	}

	var s *session
	if prev != nil && prev.def.ID == def.ID {
		s = &session{def: def, view: vd, source: prev.source, api: prev.api, frame: prev.currentFrame()}
	} else {
		s, err = w.open(def, vd)
		if err != nil {
			return err
		}
	}

	if prev == nil || prev.def.ID != def.ID {
		frame, err := s.source.QueryAll(ctx)
		if err != nil {
			w.report(def, err)
			frame = data.EmptyFrame()
		}
		s.frame = frame
	}

	w.mu.Lock()
	w.active = s
	w.mu.Unlock()

	w.ctrl.Update(w.props(s))
	w.logger.Info("workspace: activated", slog.String("project", def.ID), slog.String("view", vd.ID))
	return nil
}

func pickView(def project.Definition, viewID string) (project.ViewDefinition, error) {
	if viewID == "" {
		if len(def.Views) == 0 {
			return project.ViewDefinition{}, fmt.Errorf("workspace: project %s has no views: %w", def.ID, apperr.ErrNotFound)
		}
		return def.Views[0], nil
	}
	vd, ok := def.View(viewID)
	if !ok {
		return project.ViewDefinition{}, fmt.Errorf("workspace: view %s: %w", viewID, apperr.ErrNotFound)
	}
	return vd, nil
}

func (w *Workspace) open(def project.Definition, vd project.ViewDefinition) (*session, error) {
	source, err := datasource.New(def, w.cfg.Sources)
	if err != nil {
		return nil, err
	}
	api := viewapi.New(source, w.cfg.Sources.Store, w.cfg.Indexer, w.logger, w.cfg.Frontmatter...)
	return &session{def: def, view: vd, source: source, api: api}, nil
}

func (w *Workspace) props(s *session) view.Props {
	projectID, viewID := s.def.ID, s.view.ID
	return view.Props{
		View:      s.view,
		DataProps: view.DataQueryResult{Data: s.currentFrame()},
		Config:    s.view.Config,
		OnConfigChange: func(cfg map[string]any) {
			if err := w.cfg.Projects.SaveViewConfig(projectID, viewID, cfg); err != nil {
				w.logger.Error("workspace: save view config failed",
					slog.String("project", projectID),
					slog.String("view", viewID),
					slog.String("error", err.Error()))
			}
		},
		ViewAPI:  s.api,
		Readonly: s.source.Readonly(),
		Project:  s.def,
	}
}

func (w *Workspace) current() *session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Refresh re-queries the active project. Concurrent calls share one query.
// The result is dropped if the view changed while the query ran.
func (w *Workspace) Refresh(ctx context.Context) error {
	s := w.current()
	if s == nil {
		return nil
	}
	gen := w.ctrl.Generation()

	_, err, _ := w.flight.Do(s.def.ID, func() (any, error) {
		frame, err := s.source.QueryAll(ctx)
		if err != nil {
			w.report(s.def, err)
			return nil, err
		}
		s.mu.Lock()
		s.frame = frame
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return err
	}
	if w.current() == s {
		w.ctrl.Deliver(gen, view.DataQueryResult{Data: s.currentFrame()})
	}
	return nil
}

// HandleNoteEvent applies a watcher event to the active frame. kind is one of
// index.EventCreated, index.EventUpdated or index.EventDeleted.
func (w *Workspace) HandleNoteEvent(ctx context.Context, kind, path string) {
	s := w.current()
	if s == nil || !strings.HasSuffix(path, ".md") {
		return
	}
	gen := w.ctrl.Generation()

	var one data.Frame
	if kind != index.EventDeleted {
		file, err := w.cfg.Sources.Store.Stat(path)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			kind = index.EventDeleted
		case err != nil:
			w.report(s.def, err)
			return
		default:
			one, err = s.source.QueryOne(ctx, file, s.currentFrame().Fields)
			if err != nil {
				w.report(s.def, err)
				return
			}
		}
	}

	s.mu.Lock()
	_, had := s.frame.Record(path)
	switch {
	case kind != index.EventDeleted && len(one.Records) > 0:
		s.frame = s.frame.WithFields(one.Fields).WithRecord(one.Records[0])
		if !had {
			kind = index.EventCreated
		}
	case had:
		s.frame = s.frame.WithoutRecord(path)
		kind = index.EventDeleted
	default:
		s.mu.Unlock()
		return
	}
	frame := s.frame
	s.mu.Unlock()

	if w.current() != s {
		return
	}
	w.ctrl.Deliver(gen, view.DataQueryResult{Data: frame})
	if w.cfg.Publisher != nil {
		w.cfg.Publisher.PublishRecordEvent(kind, s.def.ID, path)
	}
}

// source returns the data source and write-back service for projectID,
// reusing the active ones when projectID is active.
func (w *Workspace) source(projectID string) (*session, error) {
	if s := w.current(); s != nil && s.def.ID == projectID {
		return s, nil
	}
	def, err := w.cfg.Projects.Project(projectID)
	if err != nil {
		return nil, err
	}
	return w.open(def, project.ViewDefinition{})
}

// Query returns the frame of projectID. The active project answers from its
// current frame.
func (w *Workspace) Query(ctx context.Context, projectID string) (data.Frame, error) {
	if s := w.current(); s != nil && s.def.ID == projectID {
		return s.currentFrame(), nil
	}
	s, err := w.source(projectID)
	if err != nil {
		return data.Frame{}, err
	}
	return s.source.QueryAll(ctx)
}

// AddRecord creates a record in projectID and returns its id.
func (w *Workspace) AddRecord(ctx context.Context, projectID, name string, values map[string]any) (string, error) {
	s, err := w.source(projectID)
	if err != nil {
		return "", err
	}
	id, err := s.api.AddRecord(ctx, name, values)
	if err != nil {
		return "", err
	}
	w.HandleNoteEvent(ctx, index.EventCreated, id)
	return id, nil
}

// UpdateRecord merges patch into the front matter of recordID. A patch naming
// a derived field fails with viewapi.ErrDerivedField.
func (w *Workspace) UpdateRecord(ctx context.Context, projectID, recordID string, patch map[string]any) error {
	s, err := w.source(projectID)
	if err != nil {
		return err
	}
	if err := w.checkMember(s, recordID); err != nil {
		return err
	}
	if err := s.api.PatchRecord(ctx, recordID, patch, s.currentFrame().Fields); err != nil {
		return err
	}
	w.HandleNoteEvent(ctx, index.EventUpdated, recordID)
	return nil
}

// DeleteRecord deletes the note behind recordID.
func (w *Workspace) DeleteRecord(ctx context.Context, projectID, recordID string) error {
	s, err := w.source(projectID)
	if err != nil {
		return err
	}
	if err := w.checkMember(s, recordID); err != nil {
		return err
	}
	if err := s.api.DeleteRecord(ctx, recordID); err != nil {
		return err
	}
	w.HandleNoteEvent(ctx, index.EventDeleted, recordID)
	return nil
}

func (w *Workspace) checkMember(s *session, recordID string) error {
	if s.def.DataSource.Kind != project.KindFolder {
		return nil
	}
	if !s.source.Includes(recordID) {
		return fmt.Errorf("workspace: %s is not in project %s: %w", recordID, s.def.ID, apperr.ErrNotFound)
	}
	return nil
}

// Active returns the active project and view ids.
func (w *Workspace) Active() (projectID, viewID string, ok bool) {
	s := w.current()
	if s == nil {
		return "", "", false
	}
	return s.def.ID, s.view.ID, true
}

// Render returns what the active view last rendered.
func (w *Workspace) Render() string {
	return w.surface.String()
}

// Close detaches the view. The workspace can't be activated again.
func (w *Workspace) Close() {
	w.ctrl.Detach()
	w.mu.Lock()
	w.active = nil
	w.closed = true
	w.mu.Unlock()
}

func (w *Workspace) report(def project.Definition, err error) {
	w.logger.Error("workspace: query failed", slog.String("project", def.ID), slog.String("error", err.Error()))
	if w.cfg.Sources.Notifier != nil {
		w.cfg.Sources.Notifier.Notify(slog.LevelError, fmt.Sprintf("%s: %v", def.Name, err))
	}
}
