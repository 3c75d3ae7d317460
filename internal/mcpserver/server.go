// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes project tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/view/table"
)

const contractURI = "projects://frontmatter-format"

// Projects resolves configured projects.
type Projects interface {
	Settings() project.Settings
	Find(query string) (project.Definition, error)
}

// Records queries and edits project records.
type Records interface {
	Query(ctx context.Context, projectID string) (data.Frame, error)
	UpdateRecord(ctx context.Context, projectID, recordID string, patch map[string]any) error
}

// Index answers vault-wide queries.
type Index interface {
	Search(query string, limit int) ([]index.SearchResult, error)
	Backlinks(target string) ([]string, error)
}

// Server wraps the MCP server with project tools.
type Server struct {
	mcp      *server.MCPServer
	projects Projects
	records  Records
	index    Index
}

// New creates a new MCP server with all tools registered.
func New(projects Projects, records Records, idx Index) *Server {
	s := &Server{projects: projects, records: records, index: idx}

	s.mcp = server.NewMCPServer(
		"Projects",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List configured projects with their data source kind and views."),
	), s.listProjects)

	s.mcp.AddTool(mcp.NewTool("query_project",
		mcp.WithDescription("Return the records of a project. Projects are matched by id, then name, then fuzzy name."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or name")),
		mcp.WithString("format", mcp.Description("Output format"), mcp.Enum("json", "table")),
	), s.queryProject)

	s.mcp.AddTool(mcp.NewTool("update_record",
		mcp.WithDescription("Merge field values into the front matter of one record. "+
			"Read the contract first via get_frontmatter_contract or the "+contractURI+" resource."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or name")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Record path (e.g. Tasks/note.md)")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values; null empties a field")),
	), s.updateRecord)

	s.mcp.AddTool(mcp.NewTool("get_frontmatter_contract",
		mcp.WithDescription("Returns how note front matter maps to record fields. "+
			"Call this before updating records."),
	), s.getContract)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Front Matter Format",
			mcp.WithResourceDescription("How note front matter is read into typed record fields and written back."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type projectInfo struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Views []string `json:"views"`
}

func (s *Server) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings := s.projects.Settings()
	out := make([]projectInfo, len(settings.Projects))
	for i, p := range settings.Projects {
		views := make([]string, len(p.Views))
		for j, v := range p.Views {
			views[j] = fmt.Sprintf("%s (%s)", v.Name, v.Type)
		}
		out[i] = projectInfo{ID: p.ID, Name: p.Name, Kind: string(p.DataSource.Kind), Views: views}
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) queryProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	def, err := s.projects.Find(query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", query)), nil
	}
	frame, err := s.records.Query(ctx, def.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetString("format", "json") == "table" {
		return mcp.NewToolResultText(table.Render(frame, nil, "", false)), nil
	}
	b, err := json.MarshalIndent(frame, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) updateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, ok := req.GetArguments()["values"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("values must be an object"), nil
	}

	def, err := s.projects.Find(query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", query)), nil
	}
	if err := s.records.UpdateRecord(ctx, def.ID, path, values); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("record not found in %s: %s", def.Name, path)), nil
		case errors.Is(err, apperr.ErrReadonly):
			return mcp.NewToolResultError(fmt.Sprintf("project %s is read-only", def.Name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", path)), nil
}

func (s *Server) getContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FrontmatterContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     FrontmatterContract,
		},
	}, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.index.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.index.Backlinks(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}
