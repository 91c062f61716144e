package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/common"
	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/health"
	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/status"
)

type server struct {
	router  *chi.Mux
	health  *health.Handler
	tracker *status.Tracker
	logger  *slog.Logger
}

func newServer(checker health.Checker, tracker *status.Tracker, logger *slog.Logger) *server {
	srv := &server{
		router:  chi.NewRouter(),
		health:  health.New(checker).WithVersion(Version),
		tracker: tracker,
		logger:  logger,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(srv.logRequests)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	srv.routes()
	return srv
}

func (s *server) routes() {
	s.router.Method(http.MethodGet, "/health", s.health)
	s.router.Method(http.MethodGet, "/status", s.tracker)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.WriteError(w, http.StatusNotFound, "not_found", "No such endpoint")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		common.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is supported")
	})
}

// logRequests logs each request at debug level.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
