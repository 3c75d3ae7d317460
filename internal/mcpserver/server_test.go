package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/datasource"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/storage"
	"github.com/starford/projects/internal/testutil"
	"github.com/starford/projects/internal/view"
	"github.com/starford/projects/internal/workspace"
)

const settingsYAML = `projects:
  - id: tasks
    name: Team Tasks
    dataSource:
      kind: folder
      config:
        path: Tasks
    views:
      - id: list
        name: List
        type: table
  - id: found
    name: Found
    dataSource:
      kind: search
      config:
        query: alpha
    views:
      - id: list
        name: List
        type: table
`

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	_, store := testutil.TestVault(t)
	testutil.WriteNotes(t, store, map[string]string{
		"Tasks/a.md": "---\nstatus: todo\n---\nalpha, see [[b]]\n",
		"Tasks/b.md": "---\nstatus: done\n---\n",
	})
	db := testutil.TestDB(t)
	if err := index.Sync(db, store, testutil.Logger()); err != nil {
		t.Fatal(err)
	}

	settingsPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(settingsPath, []byte(settingsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	projects, err := project.Open(settingsPath)
	if err != nil {
		t.Fatal(err)
	}

	ws := workspace.New(workspace.Config{
		Projects: projects,
		Sources:  datasource.Deps{Store: store, Index: db, Logger: testutil.Logger()},
		Indexer:  db,
		Registry: view.NewMapRegistry(),
		Logger:   testutil.Logger(),
	})
	t.Cleanup(ws.Close)

	return New(projects, ws, db), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_projects":
		result, err = srv.listProjects(ctx, req)
	case "query_project":
		result, err = srv.queryProject(ctx, req)
	case "update_record":
		result, err = srv.updateRecord(ctx, req)
	case "get_frontmatter_contract":
		result, err = srv.getContract(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListProjects(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_projects", map[string]any{})
	var got []projectInfo
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[0].ID != "tasks" || got[0].Kind != "folder" {
		t.Errorf("projects = %+v", got)
	}
	if len(got[0].Views) != 1 || got[0].Views[0] != "List (table)" {
		t.Errorf("views = %v", got[0].Views)
	}
}

func TestQueryProject(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "query_project", map[string]any{"project": "team tasks"})
	if r.IsError {
		t.Fatalf("query failed: %s", resultText(r))
	}
	var frame data.Frame
	if err := json.Unmarshal([]byte(resultText(r)), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(frame.Records) != 2 {
		t.Errorf("records = %d, want 2", len(frame.Records))
	}

	r = callTool(t, srv, "query_project", map[string]any{"project": "tasks", "format": "table"})
	text := resultText(r)
	if !strings.Contains(text, "status") || !strings.Contains(text, "done") {
		t.Errorf("table = %q", text)
	}
}

func TestQueryProject_Unknown(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "query_project", map[string]any{"project": "zzzzzz"})
	if !r.IsError {
		t.Error("expected error for unknown project")
	}
}

func TestUpdateRecord(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "update_record", map[string]any{
		"project": "tasks",
		"path":    "Tasks/a.md",
		"values":  map[string]any{"status": "done"},
	})
	if text := resultText(r); text != "updated: Tasks/a.md" {
		t.Fatalf("update result = %q", text)
	}
	content, err := store.Read("Tasks/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(content), "---\nstatus: done\n---\nalpha, see [[b]]\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestUpdateRecord_Errors(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing values", map[string]any{"project": "tasks", "path": "Tasks/a.md"}, "values must be an object"},
		{"missing note", map[string]any{"project": "tasks", "path": "Tasks/x.md", "values": map[string]any{"x": 1}}, "record not found"},
		{"read-only", map[string]any{"project": "found", "path": "Tasks/a.md", "values": map[string]any{"x": 1}}, "read-only"},
		{"derived field", map[string]any{"project": "tasks", "path": "Tasks/a.md", "values": map[string]any{"path": "y.md"}}, "field is derived"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, srv, "update_record", tt.args)
			if !r.IsError {
				t.Fatal("expected error")
			}
			if !strings.Contains(resultText(r), tt.want) {
				t.Errorf("error = %q, want it to contain %q", resultText(r), tt.want)
			}
		})
	}
}

func TestGetContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_frontmatter_contract", map[string]any{})
	if !strings.HasPrefix(resultText(r), "# Front Matter Format") {
		t.Errorf("contract = %q", resultText(r))
	}

	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != contractURI {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestSearchAndBacklinks(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_notes", map[string]any{"query": "alpha"})
	if !strings.Contains(resultText(r), "Tasks/a.md") {
		t.Errorf("search = %q", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"path": "b"})
	if text := resultText(r); text != "Tasks/a.md" {
		t.Errorf("backlinks = %q, want Tasks/a.md", text)
	}
}
