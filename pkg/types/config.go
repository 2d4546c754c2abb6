package types

// Config is the client configuration, merged from config files, inline
// overrides, and environment variables.
type Config struct {
	Schema string `json:"$schema,omitempty"`

	// ServerURL is the base URL of the agent backend.
	ServerURL string `json:"server_url,omitempty"`
	// APIKey authenticates against the backend, when it requires one.
	APIKey string `json:"api_key,omitempty"`
	// Session pins the session identifier; empty means the backend assigns.
	Session string `json:"session,omitempty"`

	// SteeringGraceMs overrides the delay before a queued steering message
	// is submitted after the active turn goes terminal.
	SteeringGraceMs int `json:"steering_grace_ms,omitempty"`

	Log      *LogConfig      `json:"log,omitempty"`
	Approval *ApprovalConfig `json:"approval,omitempty"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
	File   string `json:"file,omitempty"`
}

// ApprovalConfig holds the approval policy rules as written in config files.
// Values are "allow", "deny", or "ask".
type ApprovalConfig struct {
	// Tools maps tool names to actions.
	Tools map[string]string `json:"tools,omitempty"`
	// EditPaths maps path globs to actions for file-mutation tools.
	EditPaths map[string]string `json:"edit_paths,omitempty"`
	// Commands maps command patterns ("git commit *") to actions for shell
	// tools.
	Commands map[string]string `json:"commands,omitempty"`
}
