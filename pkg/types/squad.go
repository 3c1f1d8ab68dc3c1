package types

// AgentType identifies a supported external coding agent backend.
type AgentType string

const (
	AgentClaudeCode AgentType = "claude-code"
	AgentAider      AgentType = "aider"
	AgentCodex      AgentType = "codex"
	// AgentAuto lets the orchestrator pick the first installed backend.
	AgentAuto AgentType = "auto"
)

// SquadStatus is the lifecycle state of a squad session.
type SquadStatus string

const (
	SquadStarting   SquadStatus = "starting"
	SquadRunning    SquadStatus = "running"
	SquadFailed     SquadStatus = "failed"
	SquadTerminated SquadStatus = "terminated"
)

// SquadSession is a supervised external agent process bound to a project
// workspace. Squad sessions are shared, discoverable resources: they are
// attributed to the creating session but visible to all clients and survive
// client disconnects.
type SquadSession struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Workspace  string      `json:"workspace"`
	AgentType  AgentType   `json:"agentType"`
	Status     SquadStatus `json:"status"`
	AutoAccept bool        `json:"autoAccept"`
	SessionID  string      `json:"sessionID,omitempty"` // creating session
	Created    int64       `json:"created"`
	Error      string      `json:"error,omitempty"`
}

// AgentHealth reports install/version state for an agent backend.
type AgentHealth struct {
	AgentType AgentType `json:"agentType"`
	Installed bool      `json:"installed"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
}
