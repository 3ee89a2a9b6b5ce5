// Package api serves the persisted yields document and the run audit trail
// over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/history"
	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/store"
)

// DocumentSource loads the current output document.
type DocumentSource interface {
	Load() *history.Document
}

// Config holds server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Server is the read-only HTTP API.
type Server struct {
	router chi.Router
	server *http.Server
	docs   DocumentSource
	runs   store.Store
}

// New creates a Server. runs may be nil when the audit store is disabled.
func New(cfg Config, docs DocumentSource, runs store.Store) *Server {
	s := &Server{
		router: chi.NewRouter(),
		docs:   docs,
		runs:   runs,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(logRequests)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/yields", s.handleYields)
		r.Get("/yields/history", s.handleHistory)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		zap.L().Info("api: starting server", zap.String("addr", s.server.Addr))
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return eris.Wrap(err, "api: listen")
	case <-ctx.Done():
	}

	zap.L().Info("api: shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "api: shutdown")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /v1/yields
func (s *Server) handleYields(w http.ResponseWriter, _ *http.Request) {
	doc := s.docs.Load()
	if doc.Empty() {
		writeError(w, http.StatusNotFound, "no yields acquired yet")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GET /v1/yields/history?limit=N returns the newest N entries, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	entries := s.docs.Load().History
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /v1/runs?status=S&as_of=D&limit=N&offset=M
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return
	}

	filter := store.RunFilter{AsOf: r.URL.Query().Get("as_of")}
	if status := r.URL.Query().Get("status"); status != "" {
		switch st := model.RunStatus(status); st {
		case model.RunStatusComplete, model.RunStatusPartial, model.RunStatusStale, model.RunStatusFailed:
			filter.Status = st
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
	}
	var ok bool
	if filter.Limit, ok = intParam(w, r, "limit", 50); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, r, "offset", 0); !ok {
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /v1/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
