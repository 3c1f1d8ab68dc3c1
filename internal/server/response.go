package server

import (
	"encoding/json"
	"net/http"

	"github.com/codesquad-ai/codesquad/internal/session"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ErrorInfo `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: types.ErrorInfo{Code: code, Message: message}})
}

// writeDomainError maps an internal error to its protocol code and HTTP
// status.
func writeDomainError(w http.ResponseWriter, err error) {
	code := session.ErrorCode(err)
	writeError(w, statusForCode(code), code, err.Error())
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func statusForCode(code string) int {
	switch code {
	case types.CodeInvalidRequest, types.CodeUnsupportedAgent:
		return http.StatusBadRequest
	case types.CodeForbidden:
		return http.StatusForbidden
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeBusy:
		return http.StatusConflict
	case types.CodeTimeout:
		return http.StatusGatewayTimeout
	case types.CodeProviderError, types.CodeSpawnFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
