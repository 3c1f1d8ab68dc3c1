package types

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskKind classifies a background task.
type TaskKind string

const (
	TaskKindInstall      TaskKind = "install"
	TaskKindTest         TaskKind = "test"
	TaskKindBuild        TaskKind = "build"
	TaskKindAgentCommand TaskKind = "agent-command"
	TaskKindOther        TaskKind = "other"
)

// Task is a tracked unit of background work. State transitions are
// monotonic: pending -> running -> completed|failed.
type Task struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      TaskKind    `json:"kind"`
	State     TaskState   `json:"state"`
	SessionID string      `json:"sessionID,omitempty"`
	Created   int64       `json:"created"`
	Completed *int64      `json:"completed,omitempty"`
	Result    *TaskResult `json:"result,omitempty"`
}

// TaskResult carries the captured output of a finished task.
type TaskResult struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}
