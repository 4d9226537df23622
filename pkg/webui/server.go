// Package webui provides a read-only web dashboard for monitoring the
// development loop: projects, requests, daemon status, recent logs, and
// Prometheus metrics.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"devloop/pkg/logx"
	"devloop/pkg/loop"
	"devloop/pkg/persistence"
)

//go:embed web/*.html
var templateFS embed.FS

// Server represents the dashboard HTTP server.
type Server struct {
	store     *persistence.Store
	gatherer  prometheus.Gatherer
	logger    *logx.Logger
	templates *template.Template
}

// NewServer creates a dashboard server backed by the given store. The
// gatherer feeds /metrics; pass the registry the daemon metrics were
// registered with, or nil to disable the endpoint.
func NewServer(store *persistence.Store, gatherer prometheus.Gatherer) *Server {
	templates, err := template.ParseFS(templateFS, "web/*.html")
	if err != nil {
		// Templates are embedded at compile time, so this cannot fail
		// outside of a broken build.
		panic(fmt.Sprintf("failed to parse embedded templates: %v", err))
	}

	return &Server{
		store:     store,
		gatherer:  gatherer,
		logger:    logx.NewLogger("webui"),
		templates: templates,
	}
}

// RegisterRoutes sets up HTTP routes for the dashboard and API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleDashboard)

	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/requests", s.handleRequests)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/healthz", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// handleDashboard serves the dashboard page. Any unclaimed path lands here,
// so unknown /api paths return 404 instead of HTML.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	data := map[string]interface{}{
		"Title": "devloop",
	}
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error("Failed to render dashboard template: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// handleProjects implements GET /api/projects.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	projects, err := s.store.ListProjects()
	if err != nil {
		s.logger.Error("Failed to list projects: %v", err)
		http.Error(w, "Failed to list projects", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, projects)
}

// handleRequests implements GET /api/requests. An optional ?project=ID
// parameter restricts the list to one project.
func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var projectID int64
	if raw := r.URL.Query().Get("project"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid project parameter", http.StatusBadRequest)
			return
		}
		projectID = id
	}

	requests, err := s.store.ListRequests(projectID)
	if err != nil {
		s.logger.Error("Failed to list requests: %v", err)
		http.Error(w, "Failed to list requests", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, requests)
}

// handleStatus implements GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := loop.CurrentStatus(s.store)
	if err != nil {
		s.logger.Error("Failed to assemble status: %v", err)
		http.Error(w, "Failed to assemble status", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, status)
}

// handleLogs implements GET /api/logs. An optional ?since=RFC3339 parameter
// restricts the result to entries newer than the given time.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	s.writeJSON(w, logx.RecentEntries(since))
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// StartServer starts the dashboard server on addr and shuts it down
// gracefully when ctx is cancelled. Non-blocking.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting dashboard server on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down dashboard server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one.
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Dashboard server shutdown failed: %v", err)
		}
	}()

	return nil
}
