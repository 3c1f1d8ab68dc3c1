package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

func (s *Server) listSquads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.squads.List())
}

func (s *Server) getSquad(w http.ResponseWriter, r *http.Request) {
	session, err := s.squads.Get(chi.URLParam(r, "squadID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) squadStatus(w http.ResponseWriter, r *http.Request) {
	agent := types.AgentType(r.URL.Query().Get("agent"))
	writeJSON(w, http.StatusOK, s.squads.Status(r.Context(), agent))
}

func (s *Server) installAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentType types.AgentType `json:"agentType"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	result, err := s.squads.Install(r.Context(), req.AgentType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stdout":   result.Stdout,
		"stderr":   result.Stderr,
		"exitCode": result.ExitCode,
	})
}

func (s *Server) terminateSquad(w http.ResponseWriter, r *http.Request) {
	session, err := s.squads.Terminate(chi.URLParam(r, "squadID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
