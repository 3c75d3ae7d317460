package api

import (
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/project"
)

// ProjectSummary describes a project in a listing.
type ProjectSummary struct {
	ID    string        `json:"id" example:"b7c1..." validate:"required"`
	Name  string        `json:"name" example:"Tasks" validate:"required"`
	Kind  project.Kind  `json:"kind" example:"folder" validate:"required"`
	Views []ViewSummary `json:"views" validate:"required"`
}

// ViewSummary describes a view of a project.
type ViewSummary struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" example:"Board" validate:"required"`
	Type string `json:"type" example:"table" validate:"required"`
}

// ProjectListResponse wraps the project listing.
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects" validate:"required"`
}

// FrameResponse is the frame of one project.
type FrameResponse struct {
	Project string        `json:"project" validate:"required"`
	Fields  []data.Field  `json:"fields" validate:"required"`
	Records []data.Record `json:"records" validate:"required"`
}

// AddRecordRequest is the request body for creating a record.
type AddRecordRequest struct {
	Name   string         `json:"name" example:"Write docs"`
	Values map[string]any `json:"values"`
}

// AddRecordResponse is returned after a record was created.
type AddRecordResponse struct {
	ID string `json:"id" example:"Tasks/Write docs.md" validate:"required"`
}

// ActivateRequest selects the active project and view.
type ActivateRequest struct {
	Project string `json:"project" validate:"required"`
	View    string `json:"view,omitempty"`
}

// WorkspaceResponse describes the active project and view.
type WorkspaceResponse struct {
	Active  bool   `json:"active"`
	Project string `json:"project,omitempty"`
	View    string `json:"view,omitempty"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

func summarize(def project.Definition) ProjectSummary {
	views := make([]ViewSummary, len(def.Views))
	for i, v := range def.Views {
		views[i] = ViewSummary{ID: v.ID, Name: v.Name, Type: v.Type}
	}
	return ProjectSummary{ID: def.ID, Name: def.Name, Kind: def.DataSource.Kind, Views: views}
}
