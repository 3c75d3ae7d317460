package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/projects/internal/checksum"
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
)

// Workspace is the part of the workspace the API drives.
type Workspace interface {
	Activate(ctx context.Context, projectID, viewID string) error
	Active() (projectID, viewID string, ok bool)
	Render() string
	Refresh(ctx context.Context) error
	Query(ctx context.Context, projectID string) (data.Frame, error)
	AddRecord(ctx context.Context, projectID, name string, values map[string]any) (string, error)
	UpdateRecord(ctx context.Context, projectID, recordID string, patch map[string]any) error
	DeleteRecord(ctx context.Context, projectID, recordID string) error
}

// ProjectLister returns the configured projects.
type ProjectLister interface {
	Settings() project.Settings
}

// Searcher runs full-text queries.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	ws       Workspace
	projects ProjectLister
	search   Searcher
}

// NewHandler creates a new Handler. search may be nil.
func NewHandler(ws Workspace, projects ProjectLister, search Searcher) *Handler {
	return &Handler{ws: ws, projects: projects, search: search}
}

const maxBody = 10 << 20

// recordPath extracts the record id from the URL (everything after
// /records/). Supports encoded slashes from OpenAPI clients.
func recordPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List configured projects and their views
//	@Tags			projects
//	@Produce		json
//	@Success		200	{object}	ProjectListResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	settings := h.projects.Settings()
	out := make([]ProjectSummary, len(settings.Projects))
	for i, p := range settings.Projects {
		out[i] = summarize(p)
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: out})
}

// GetFrame handles GET /api/projects/{id}/frame.
//
//	@Summary		Query all records of a project
//	@Description	The response carries an ETag; a matching If-None-Match yields 304.
//	@Tags			projects
//	@Produce		json
//	@Param			id				path		string	true	"Project id"
//	@Param			If-None-Match	header		string	false	"ETag of a cached frame"
//	@Success		200				{object}	FrameResponse
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/frame [get]
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frame, err := h.ws.Query(r.Context(), id)
	if err != nil {
		writeError(w, "query project", err, slog.String("project", id))
		return
	}

	body, err := json.Marshal(FrameResponse{Project: id, Fields: frame.Fields, Records: frame.Records})
	if err != nil {
		writeError(w, "encode frame", err, slog.String("project", id))
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// AddRecord handles POST /api/projects/{id}/records.
//
//	@Summary		Create a record as a new note
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Project id"
//	@Param			body	body		AddRecordRequest	true	"Record"
//	@Success		201		{object}	AddRecordResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/records [post]
func (h *Handler) AddRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	id := chi.URLParam(r, "id")

	var req AddRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	recordID, err := h.ws.AddRecord(r.Context(), id, req.Name, req.Values)
	if err != nil {
		writeError(w, "add record", err, slog.String("project", id))
		return
	}
	writeJSON(w, http.StatusCreated, AddRecordResponse{ID: recordID})
}

// UpdateRecord handles PATCH /api/projects/{id}/records/*.
//
//	@Summary		Merge values into a record's front matter
//	@Description	The body is a JSON object of field values. A null value empties the field.
//	@Tags			records
//	@Accept			json
//	@Param			id		path	string			true	"Project id"
//	@Param			path	path	string			true	"Record path"
//	@Param			body	body	map[string]any	true	"Field values"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/records/{path} [patch]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	id, p := chi.URLParam(r, "id"), recordPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := h.ws.UpdateRecord(r.Context(), id, p, patch); err != nil {
		writeError(w, "update record", err, slog.String("project", id), slog.String("path", p))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecord handles DELETE /api/projects/{id}/records/*.
//
//	@Summary		Delete a record's note
//	@Tags			records
//	@Param			id		path	string	true	"Project id"
//	@Param			path	path	string	true	"Record path"
//	@Success		204
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{id}/records/{path} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, p := chi.URLParam(r, "id"), recordPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.ws.DeleteRecord(r.Context(), id, p); err != nil {
		writeError(w, "delete record", err, slog.String("project", id), slog.String("path", p))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWorkspace handles GET /api/workspace.
//
//	@Summary		Show the active project and view
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceResponse
//	@Security		BearerAuth
//	@Router			/workspace [get]
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	projectID, viewID, ok := h.ws.Active()
	writeJSON(w, http.StatusOK, WorkspaceResponse{Active: ok, Project: projectID, View: viewID})
}

// Activate handles POST /api/workspace/activate.
//
//	@Summary		Switch the active project and view
//	@Tags			workspace
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActivateRequest	true	"Project and view"
//	@Success		200		{object}	WorkspaceResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/workspace/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if req.Project == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("project is required"))
		return
	}
	if err := h.ws.Activate(r.Context(), req.Project, req.View); err != nil {
		writeError(w, "activate", err, slog.String("project", req.Project))
		return
	}
	h.GetWorkspace(w, r)
}

// Refresh handles POST /api/workspace/refresh. The active project is
// queried again and the view receives the new frame.
//
//	@Summary		Re-query the active project
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceResponse
//	@Security		BearerAuth
//	@Router			/workspace/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Refresh(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	h.GetWorkspace(w, r)
}

// Render handles GET /api/workspace/render.
//
//	@Summary		Render the active view as text
//	@Tags			workspace
//	@Produce		plain
//	@Success		200	{string}	string
//	@Security		BearerAuth
//	@Router			/workspace/render [get]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.ws.Render()))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q parameter is required"))
		return
	}
	if h.search == nil {
		writeJSON(w, http.StatusOK, SearchResponse{Results: []SearchResult{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	results, err := h.search.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Path: res.Path, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}
