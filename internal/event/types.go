package event

import "github.com/codesquad-ai/codesquad/pkg/types"

// SessionData is the payload for session.* events.
type SessionData struct {
	Info *types.Session `json:"info"`
}

// TaskData is the payload for task.updated events.
type TaskData struct {
	Task *types.Task `json:"task"`
}

// SquadData is the payload for squad.* events.
type SquadData struct {
	Info *types.SquadSession `json:"info"`
}

// FileEditedData is the payload for file.edited events.
type FileEditedData struct {
	Path      string `json:"path"`
	SessionID string `json:"sessionID,omitempty"`
}
