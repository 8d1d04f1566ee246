// Package web provides the HTTP surface of the ingest service: the trigger
// endpoint that storage notifications are posted to, plus read-only views of
// profiles, runs and health.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/runlog"
	"github.com/JonMunkholm/sheetload/internal/trigger"
	mw "github.com/JonMunkholm/sheetload/internal/web/middleware"
)

// maxNotificationBytes caps a trigger request body.
const maxNotificationBytes = 64 << 10

// RunLister lists recorded runs. runlog.Store implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// Sweeper runs one inbox sweep on demand. trigger.Sweeper implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (trigger.SweepSummary, error)
}

// Deps are the collaborators the server exposes. Runs and Sweeper may be nil.
type Deps struct {
	Handler  trigger.Handler
	Registry *core.Registry
	Limiter  *core.InvocationLimiter
	Runs     RunLister
	Sweeper  Sweeper
}

// Server is the HTTP server for the ingest service.
type Server struct {
	deps   Deps
	cfg    config.ServerConfig
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server. trustedProxies may be empty.
func NewServer(deps Deps, cfg config.ServerConfig, trustedProxies []string) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware(trustedProxies)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(trustedProxies []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(trustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	// Runs can take minutes; the dispatcher applies its own timeout.
	s.router.Post("/trigger", s.handleTrigger)
	s.router.Post("/sweep", s.handleSweep)

	s.router.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Get("/healthz", s.handleHealth)
		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{name}", s.handleGetProfile)
		r.Get("/runs", s.handleListRuns)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
