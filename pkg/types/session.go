// Package types provides the core data types for the CodeSquad server.
package types

// Session represents one connected client's accounting and
// request-serialization context. The ID is client-generated and persisted
// client-side so that reconnecting resumes visibility into the session's
// tasks and squad sessions.
type Session struct {
	ID           string  `json:"id"`
	Title        string  `json:"title,omitempty"`
	Workspace    string  `json:"workspace"`
	TotalTokens  int     `json:"totalTokens"`
	TotalCost    float64 `json:"totalCost"`
	Time         Time    `json:"time"`
	LastActivity int64   `json:"lastActivity"`
}

// Time contains creation/update timestamps in Unix milliseconds.
type Time struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// EditorContext is a snapshot of the client's active editor state attached
// to a chat request.
type EditorContext struct {
	Path     string `json:"path,omitempty"`
	Language string `json:"language,omitempty"`
	Preview  string `json:"preview,omitempty"` // truncated to 500 chars
}

// MaxPreviewLen caps the editor content preview carried with a chat request.
const MaxPreviewLen = 500

// Truncated returns the preview clamped to MaxPreviewLen.
func (c EditorContext) Truncated() EditorContext {
	if len(c.Preview) > MaxPreviewLen {
		c.Preview = c.Preview[:MaxPreviewLen]
	}
	return c
}

// ChatExchange is one request/response cycle in a session. Exchanges are
// kept in memory only, for context continuity.
type ChatExchange struct {
	Request   string         `json:"request"`
	Context   *EditorContext `json:"context,omitempty"`
	Response  string         `json:"response"`
	Tokens    int            `json:"tokens"`
	Cost      float64        `json:"cost"`
	Completed int64          `json:"completed"`
}
