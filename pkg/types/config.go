package types

// Config represents the CodeSquad server configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// ProjectsRoot is the sandbox boundary directory. No file operation
	// may resolve outside it.
	ProjectsRoot string `json:"projectsRoot,omitempty"`

	// Model selects the default model as "provider/model"
	// (e.g. "anthropic/claude-sonnet-4-20250514").
	Model string `json:"model,omitempty"`

	// Provider configs keyed by provider ID.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Squad holds agent orchestration settings.
	Squad *SquadConfig `json:"squad,omitempty"`

	// CommandTimeoutMS bounds shell command execution (default 120000).
	CommandTimeoutMS int `json:"commandTimeoutMs,omitempty"`

	// MaxTasks caps retained task ledger entries (default 200).
	MaxTasks int `json:"maxTasks,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseURL,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	Disable   bool   `json:"disable,omitempty"`
}

// SquadConfig holds agent orchestration settings.
type SquadConfig struct {
	// DefaultAgent is used when a create request asks for "auto".
	DefaultAgent AgentType `json:"defaultAgent,omitempty"`
	// ExecuteTimeoutMS bounds one agent command (default 300000).
	ExecuteTimeoutMS int `json:"executeTimeoutMs,omitempty"`
	// TerminateGraceMS is the TERM-to-KILL grace period (default 5000).
	TerminateGraceMS int `json:"terminateGraceMs,omitempty"`
}
