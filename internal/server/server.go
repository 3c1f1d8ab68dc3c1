// Package server is the transport gateway: one WebSocket per browser tab
// for the session protocol, an SSE feed of bus events, and a small REST
// surface for collaborator operations.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/project"
	"github.com/codesquad-ai/codesquad/internal/session"
	"github.com/codesquad-ai/codesquad/internal/squad"
	"github.com/codesquad-ai/codesquad/internal/workspace"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout; SSE and WS are long-lived
	}
}

// Server is the HTTP server.
type Server struct {
	config      *Config
	router      *chi.Mux
	httpSrv     *http.Server
	appConfig   *types.Config
	coordinator *session.Coordinator
	projects    *project.Service
	squads      *squad.Orchestrator
	ws          *workspace.Workspace
	bus         *event.Bus
}

// New creates a new Server instance.
func New(
	cfg *Config,
	appConfig *types.Config,
	coordinator *session.Coordinator,
	projects *project.Service,
	squads *squad.Orchestrator,
	ws *workspace.Workspace,
	bus *event.Bus,
) *Server {
	s := &Server{
		config:      cfg,
		router:      chi.NewRouter(),
		appConfig:   appConfig,
		coordinator: coordinator,
		projects:    projects,
		squads:      squads,
		ws:          ws,
		bus:         bus,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, used by tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
