package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"devloop/pkg/config"
	"devloop/pkg/logx"
	"devloop/pkg/persistence"
)

func newTestServer(t *testing.T) (*Server, *persistence.Store) {
	t.Helper()

	tempDir := t.TempDir()
	if err := config.Load(tempDir); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	store, err := persistence.Open(filepath.Join(tempDir, "devloop.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	return NewServer(store, reg), store
}

func seedProject(t *testing.T, store *persistence.Store, name string) *persistence.Project {
	t.Helper()
	p := &persistence.Project{Name: name, Version: "0.1.0", Priority: 5}
	if err := store.CreateProject(p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func seedRequest(t *testing.T, store *persistence.Store, projectID int64, name string) *persistence.Request {
	t.Helper()
	r := &persistence.Request{
		ProjectID: projectID,
		Name:      name,
		Type:      persistence.TypeNewFeature,
		Prompt:    "add a thing",
	}
	if err := store.CreateRequest(r); err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	return r
}

func serve(server *Server, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandleProjects(t *testing.T) {
	server, store := newTestServer(t)
	seedProject(t, store, "alpha")
	seedProject(t, store, "beta")

	w := serve(server, http.MethodGet, "/api/projects")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Expected application/json, got %s", ct)
	}

	var projects []*persistence.Project
	if err := json.Unmarshal(w.Body.Bytes(), &projects); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("Expected 2 projects, got %d", len(projects))
	}
	if projects[0].Name != "alpha" || projects[1].Name != "beta" {
		t.Fatalf("Unexpected project order: %s, %s", projects[0].Name, projects[1].Name)
	}
}

func TestHandleRequestsProjectFilter(t *testing.T) {
	server, store := newTestServer(t)
	p1 := seedProject(t, store, "alpha")
	p2 := seedProject(t, store, "beta")
	seedRequest(t, store, p1.ID, "feature-a")
	seedRequest(t, store, p2.ID, "feature-b")

	w := serve(server, http.MethodGet, "/api/requests")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var all []*persistence.Request
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(all))
	}

	w = serve(server, http.MethodGet, "/api/requests?project="+itoa(p2.ID))
	var filtered []*persistence.Request
	if err := json.Unmarshal(w.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "feature-b" {
		t.Fatalf("Expected only feature-b, got %+v", filtered)
	}

	w = serve(server, http.MethodGet, "/api/requests?project=bogus")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad project param, got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	server, store := newTestServer(t)
	p := seedProject(t, store, "alpha")
	seedRequest(t, store, p.ID, "feature-a")

	w := serve(server, http.MethodGet, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var status struct {
		Running      bool           `json:"running"`
		Paused       bool           `json:"paused"`
		StatusCounts map[string]int `json:"status_counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.StatusCounts[persistence.StatusTBD] != 1 {
		t.Fatalf("Expected 1 tbd request, got %+v", status.StatusCounts)
	}
}

func TestHandleLogs(t *testing.T) {
	server, _ := newTestServer(t)

	logger := logx.NewLogger("webui-test")
	logger.Info("dashboard probe entry")

	w := serve(server, http.MethodGet, "/api/logs")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var entries []logx.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	found := false
	for i := range entries {
		if strings.Contains(entries[i].Message, "dashboard probe entry") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected probe entry in %d log entries", len(entries))
	}

	// A future cutoff excludes everything logged so far.
	since := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	w = serve(server, http.MethodGet, "/api/logs?since="+since)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected no entries after future cutoff, got %d", len(entries))
	}

	w = serve(server, http.MethodGet, "/api/logs?since=not-a-time")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad since param, got %d", w.Code)
	}
}

func TestHandleDashboardPage(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "devloop") {
		t.Fatalf("Expected dashboard page to mention devloop")
	}

	w = serve(server, http.MethodGet, "/api/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown API path, got %d", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	server, _ := newTestServer(t)

	w := serve(server, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	for _, target := range []string{"/api/projects", "/api/requests", "/api/status", "/api/logs"} {
		w := serve(server, http.MethodPost, target)
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("Expected 405 for POST %s, got %d", target, w.Code)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
