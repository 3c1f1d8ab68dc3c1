package types

import "encoding/json"

// Envelope types exchanged over the per-session channel. Inbound envelopes
// come from the browser client; outbound envelopes are serialized in the
// order the coordinator submits them for a given connection.
const (
	// Inbound
	EnvelopeChat         = "chat"
	EnvelopeCommand      = "command"
	EnvelopeFileOp       = "file_op"
	EnvelopeGetTasks     = "get_tasks"
	EnvelopeSquadCommand = "squad_command"

	// Outbound
	EnvelopeConnection           = "connection"
	EnvelopeChatResponseStart    = "chat_response_start"
	EnvelopeChatResponseChunk    = "chat_response_chunk"
	EnvelopeChatResponseComplete = "chat_response_complete"
	EnvelopeCommandResponse      = "command_response"
	EnvelopeFileResponse         = "file_response"
	EnvelopeTaskQueueResponse    = "task_queue_response"
	EnvelopeSquadResponse        = "squad_response"
	EnvelopeError                = "error"
)

// Error codes carried by error envelopes and REST error bodies.
const (
	CodeForbidden        = "FORBIDDEN"
	CodeBusy             = "BUSY"
	CodeProviderError    = "PROVIDER_ERROR"
	CodeUnsupportedAgent = "UNSUPPORTED_AGENT"
	CodeSpawnFailed      = "SPAWN_FAILED"
	CodeTimeout          = "TIMEOUT"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Inbound is a decoded client envelope. Fields are populated according to
// Type; unknown types are logged and ignored by the gateway.
type Inbound struct {
	Type string `json:"type"`

	// chat
	Content string         `json:"content,omitempty"`
	Context *EditorContext `json:"context,omitempty"`

	// command
	Command string `json:"command,omitempty"`

	// file_op / squad_command
	Operation string `json:"operation,omitempty"`

	// file_op
	Path string `json:"path,omitempty"`
	Data string `json:"data,omitempty"`

	// squad_command
	SquadID    string    `json:"squadID,omitempty"`
	Workspace  string    `json:"workspace,omitempty"`
	AgentType  AgentType `json:"agentType,omitempty"`
	Name       string    `json:"name,omitempty"`
	AutoAccept bool      `json:"autoAccept,omitempty"`
}

// Outbound is a server envelope. Constructors below fix the Type tag so
// call sites cannot mislabel a payload.
type Outbound struct {
	Type string `json:"type"`

	SessionID string `json:"sessionID,omitempty"`

	// chat_response_chunk
	Chunk string `json:"chunk,omitempty"`

	// chat_response_complete
	TotalTokens int     `json:"total_tokens,omitempty"`
	Cost        float64 `json:"cost,omitempty"`

	// command_response
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// file_response
	Operation string          `json:"operation,omitempty"`
	Path      string          `json:"path,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Status    string          `json:"status,omitempty"`

	// task_queue_response
	Tasks []*Task `json:"tasks,omitempty"`

	// error
	Error *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo names a rejected operation's condition plus a human-readable
// message. Presentation and retry are the client's responsibility.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewConnection(sessionID string) *Outbound {
	return &Outbound{Type: EnvelopeConnection, SessionID: sessionID}
}

func NewChatStart() *Outbound {
	return &Outbound{Type: EnvelopeChatResponseStart}
}

func NewChatChunk(chunk string) *Outbound {
	return &Outbound{Type: EnvelopeChatResponseChunk, Chunk: chunk}
}

func NewChatComplete(totalTokens int, cost float64) *Outbound {
	return &Outbound{Type: EnvelopeChatResponseComplete, TotalTokens: totalTokens, Cost: cost}
}

func NewCommandResponse(output string, exitCode int) *Outbound {
	return &Outbound{Type: EnvelopeCommandResponse, Output: output, ExitCode: &exitCode}
}

func NewFileResponse(operation, path string, data json.RawMessage, status string) *Outbound {
	return &Outbound{Type: EnvelopeFileResponse, Operation: operation, Path: path, Data: data, Status: status}
}

func NewTaskQueue(tasks []*Task) *Outbound {
	return &Outbound{Type: EnvelopeTaskQueueResponse, Tasks: tasks}
}

// NewSquadResponse wraps an orchestrator result, tagged with the
// originating operation so the client can correlate async results.
func NewSquadResponse(operation string, data any) *Outbound {
	raw, _ := json.Marshal(data)
	return &Outbound{Type: EnvelopeSquadResponse, Operation: operation, Data: raw}
}

func NewError(code, message string) *Outbound {
	return &Outbound{Type: EnvelopeError, Error: &ErrorInfo{Code: code, Message: message}}
}
