package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session protocol channel, one per browser tab.
	r.Get("/ws", s.handleWebSocket)

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)

	r.Get("/health", s.health)

	r.Route("/project", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Post("/", s.createProject)
		r.Post("/import", s.importProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", s.getProject)
			r.Delete("/", s.deleteProject)
			r.Post("/duplicate", s.duplicateProject)
			r.Post("/archive", s.archiveProject)
			r.Post("/restore", s.restoreProject)
			r.Get("/export", s.exportProject)
		})
	})

	r.Route("/file", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Get("/content", s.readFile)
		r.Put("/content", s.writeFile)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Patch("/{sessionID}", s.renameSession)
	})

	r.Route("/squad", func(r chi.Router) {
		r.Get("/", s.listSquads)
		r.Get("/status", s.squadStatus)
		r.Post("/install", s.installAgent)

		r.Route("/{squadID}", func(r chi.Router) {
			r.Get("/", s.getSquad)
			r.Delete("/", s.terminateSquad)
		})
	})
}

// health reports process liveness independent of any session.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
