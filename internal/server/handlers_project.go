package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxImportSize bounds uploaded project archives.
const maxImportSize = 256 << 20

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("archived") == "true"
	list, err := s.projects.List(r.Context(), includeArchived)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	info, err := s.projects.Create(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	info, err := s.projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) duplicateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	// An empty body means "pick a name for me".
	json.NewDecoder(r.Body).Decode(&req)

	info, err := s.projects.Duplicate(r.Context(), chi.URLParam(r, "projectID"), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) archiveProject(w http.ResponseWriter, r *http.Request) {
	info, err := s.projects.Archive(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) restoreProject(w http.ResponseWriter, r *http.Request) {
	info, err := s.projects.Restore(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	info, err := s.projects.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name+".zip"))
	if err := s.projects.Export(r.Context(), id, w); err != nil {
		// Headers are gone; the truncated archive is the signal.
		return
	}
}

func (s *Server) importProject(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name query parameter required")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read archive")
		return
	}

	info, err := s.projects.Import(r.Context(), name, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}
