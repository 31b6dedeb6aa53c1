package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes health, readiness, metrics and the published artifacts.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	dir        string
	files      map[string]bool
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /data/{name} routes. Only the listed file names are served from dir.
func NewServer(addr string, ready sharedobs.ReadinessChecker, dir string, files []string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		dir:    dir,
		files:  make(map[string]bool, len(files)),
	}
	for _, f := range files {
		s.files[f] = true
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /data/{name}", s.handleData)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleData serves a published artifact. Files are replaced by rename, so
// an open handle always sees one complete version.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.files[name] {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "unknown artifact"})
		return
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not published yet"})
		return
	}
	if err != nil {
		s.logger.Error("open artifact failed", "file", name, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "artifact unavailable"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.logger.Error("stat artifact failed", "file", name, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "artifact unavailable"})
		return
	}

	w.Header().Set("Cache-Control", "must-revalidate")
	w.Header().Set("Content-Type", contentType(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	case ".sz":
		return "application/x-snappy-framed"
	default:
		return "application/octet-stream"
	}
}
