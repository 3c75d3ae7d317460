package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/projects/internal/datasource"
	"github.com/starford/projects/internal/index"
	"github.com/starford/projects/internal/project"
	"github.com/starford/projects/internal/storage"
	"github.com/starford/projects/internal/testutil"
	"github.com/starford/projects/internal/view"
	"github.com/starford/projects/internal/view/table"
	"github.com/starford/projects/internal/workspace"
)

const settingsYAML = `projects:
  - id: tasks
    name: Tasks
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

var seedNotes = map[string]string{
	"Tasks/a.md":   "---\nstatus: todo\n---\nalpha body\n",
	"Tasks/bad.md": "---\nstatus: [broken\n---\n",
	"Other/o.md":   "---\nstatus: todo\n---\n",
}

type apiEnv struct {
	router http.Handler
	store  *storage.FS
	ws     *workspace.Workspace
}

// testEnv sets up a temp vault, SQLite DB, project settings, workspace and
// router. An empty token disables auth.
func testEnv(t *testing.T, token string) *apiEnv {
	t.Helper()
	return testEnvWithSSE(t, token, nil)
}

func testEnvWithSSE(t *testing.T, token string, sse http.Handler) *apiEnv {
	t.Helper()
	_, store := testutil.TestVault(t)
	testutil.WriteNotes(t, store, seedNotes)

	db := testutil.TestDB(t)
	if err := index.Sync(db, store, testutil.Logger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	settingsPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(settingsPath, []byte(settingsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	projects, err := project.Open(settingsPath)
	if err != nil {
		t.Fatalf("project.Open: %v", err)
	}

	reg := view.NewMapRegistry()
	reg.Register(table.Type, table.New)

	ws := workspace.New(workspace.Config{
		Projects: projects,
		Sources:  datasource.Deps{Store: store, Index: db, Logger: testutil.Logger()},
		Indexer:  db,
		Registry: reg,
		Logger:   testutil.Logger(),
	})
	t.Cleanup(ws.Close)

	h := NewHandler(ws, projects, db)
	return &apiEnv{router: NewRouter(h, token != "", token, sse), store: store, ws: ws}
}

func (e *apiEnv) do(method, target string, body any, token string) *httptest.ResponseRecorder {
	var r *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestListProjects(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/projects", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ProjectListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(resp.Projects))
	}
	if resp.Projects[0].ID != "tasks" || resp.Projects[0].Kind != project.KindFolder {
		t.Errorf("first project = %+v", resp.Projects[0])
	}
	if len(resp.Projects[0].Views) != 1 || resp.Projects[0].Views[0].Type != table.Type {
		t.Errorf("views = %+v", resp.Projects[0].Views)
	}
}

func TestGetFrame(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/projects/tasks/frame", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FrameResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Records) != 1 || resp.Records[0].ID != "Tasks/a.md" {
		t.Fatalf("records = %+v, want only Tasks/a.md", resp.Records)
	}
	if resp.Records[0].Values["status"] != "todo" {
		t.Errorf("status = %v", resp.Records[0].Values["status"])
	}
}

func TestGetFrame_ETag(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/projects/tasks/frame", nil, "")
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/projects/tasks/frame", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("cached frame = %d, want 304", w.Code)
	}

	if w := e.do(http.MethodPatch, "/projects/tasks/records/Tasks/a.md", map[string]any{"status": "done"}, ""); w.Code != http.StatusNoContent {
		t.Fatalf("patch = %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/projects/tasks/frame", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("changed frame = %d, want 200", w.Code)
	}
}

func TestGetFrame_UnknownProject(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/projects/nope/frame", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAddRecord(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPost, "/projects/tasks/records",
		AddRecordRequest{Name: "Write docs", Values: map[string]any{"status": "todo"}}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AddRecordResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID != "Tasks/Write docs.md" {
		t.Errorf("id = %q", resp.ID)
	}
	content, err := e.store.Read(resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "status: todo") {
		t.Errorf("content = %q", content)
	}
}

func TestAddRecord_InvalidJSON(t *testing.T) {
	e := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/projects/tasks/records", strings.NewReader("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateRecord(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPatch, "/projects/tasks/records/Tasks/a.md", map[string]any{"status": "done", "points": 3}, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	content, err := e.store.Read("Tasks/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(content), "---\nstatus: done\npoints: 3\n---\nalpha body\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestUpdateRecord_EncodedPath(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPatch, "/projects/tasks/records/Tasks%2Fa.md", map[string]any{"status": "done"}, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestUpdateRecord_Errors(t *testing.T) {
	e := testEnv(t, "")
	patch := map[string]any{"status": "done"}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"outside project", "/projects/tasks/records/Other/o.md", http.StatusNotFound},
		{"missing note", "/projects/tasks/records/Tasks/ghost.md", http.StatusNotFound},
		{"unknown project", "/projects/nope/records/Tasks/a.md", http.StatusNotFound},
		{"malformed front matter", "/projects/tasks/records/Tasks/bad.md", http.StatusUnprocessableEntity},
		{"read-only project", "/projects/found/records/Tasks/a.md", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPatch, tt.target, patch, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	content, err := e.store.Read("Tasks/bad.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != seedNotes["Tasks/bad.md"] {
		t.Errorf("malformed note was rewritten: %q", content)
	}
}

func TestUpdateRecord_DerivedField(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPatch, "/projects/tasks/records/Tasks/a.md", map[string]any{"status": "done", "path": "x.md"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
	content, err := e.store.Read("Tasks/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != seedNotes["Tasks/a.md"] {
		t.Errorf("note rewritten: %q", content)
	}
}

func TestDeleteRecord(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodDelete, "/projects/tasks/records/Tasks/a.md", nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := e.store.Stat("Tasks/a.md"); err == nil {
		t.Error("note still exists")
	}

	w = e.do(http.MethodDelete, "/projects/tasks/records/Tasks/a.md", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}

	w = e.do(http.MethodDelete, "/projects/found/records/Other/o.md", nil, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("read-only delete = %d, want 403", w.Code)
	}
}

func TestWorkspaceActivateAndRender(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/workspace", nil, "")
	var ws WorkspaceResponse
	_ = json.Unmarshal(w.Body.Bytes(), &ws)
	if ws.Active {
		t.Errorf("workspace active before activation: %+v", ws)
	}

	w = e.do(http.MethodPost, "/workspace/activate", ActivateRequest{Project: "tasks"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &ws)
	if !ws.Active || ws.Project != "tasks" || ws.View != "list" {
		t.Errorf("workspace = %+v", ws)
	}

	w = e.do(http.MethodGet, "/workspace/render", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "todo") {
		t.Errorf("render = %q, want the status column", w.Body.String())
	}
}

func TestWorkspaceRefresh(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(http.MethodPost, "/workspace/refresh", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("refresh with nothing active = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(http.MethodPost, "/workspace/activate", ActivateRequest{Project: "tasks"}, ""); w.Code != http.StatusOK {
		t.Fatalf("activate = %d", w.Code)
	}

	// Written behind the workspace's back: no note event reaches it.
	if err := e.store.Write("Tasks/c.md", []byte("---\nstatus: fresh\n---\n")); err != nil {
		t.Fatal(err)
	}
	if w := e.do(http.MethodGet, "/workspace/render", nil, ""); strings.Contains(w.Body.String(), "fresh") {
		t.Fatalf("render shows the new note before refresh: %q", w.Body.String())
	}

	w := e.do(http.MethodPost, "/workspace/refresh", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body = %s", w.Code, w.Body.String())
	}
	var ws WorkspaceResponse
	_ = json.Unmarshal(w.Body.Bytes(), &ws)
	if !ws.Active || ws.Project != "tasks" {
		t.Errorf("workspace = %+v", ws)
	}
	if w := e.do(http.MethodGet, "/workspace/render", nil, ""); !strings.Contains(w.Body.String(), "fresh") {
		t.Errorf("render = %q, want the refreshed note", w.Body.String())
	}
}

func TestWorkspaceActivate_Errors(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(http.MethodPost, "/workspace/activate", ActivateRequest{}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing project = %d, want 400", w.Code)
	}
	if w := e.do(http.MethodPost, "/workspace/activate", ActivateRequest{Project: "nope"}, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown project = %d, want 404", w.Code)
	}
	if w := e.do(http.MethodPost, "/workspace/activate", ActivateRequest{Project: "tasks", View: "nope"}, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown view = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/search?q=alpha", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) == 0 || resp.Results[0].Path != "Tasks/a.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/search", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(http.MethodGet, "/projects", nil, "secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(http.MethodGet, "/projects", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(http.MethodPatch, "/projects/tasks/records/Tasks/a.md", map[string]any{"status": "x"}, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	content, _ := e.store.Read("Tasks/a.md")
	if string(content) != seedNotes["Tasks/a.md"] {
		t.Errorf("unauthorized request modified the note: %q", content)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/projects", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// Minimal SSE handler stub that writes headers and blocks until the
// request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, "secret", sseStub)

	w := e.do(http.MethodGet, "/events", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	e := testEnv(t, "secret123")

	if w := e.do(http.MethodGet, "/projects?access_token=secret123", nil, ""); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	if w := e.do(http.MethodDelete, "/projects/tasks/records/Tasks/a.md?access_token=secret123", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("DELETE with query token = %d, want 401", w.Code)
	}
}
