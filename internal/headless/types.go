package headless

import (
	"time"
)

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSON is a final JSON result summary.
	OutputJSON OutputFormat = "json"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode defines exit codes for headless mode.
type ExitCode int

const (
	// ExitSuccess indicates the turn completed.
	ExitSuccess ExitCode = 0
	// ExitError indicates a general/unknown error.
	ExitError ExitCode = 1
	// ExitTimeout indicates the timeout was exceeded.
	ExitTimeout ExitCode = 2
	// ExitRejected indicates an approval was rejected and the turn did not
	// finish usefully.
	ExitRejected ExitCode = 3
	// ExitTransportError indicates the backend was unreachable or the
	// stream failed.
	ExitTransportError ExitCode = 4
	// ExitInvalidInput indicates a bad prompt or missing required flags.
	ExitInvalidInput ExitCode = 5
)

// Config holds configuration for a headless run.
type Config struct {
	// Prompt is the instruction to submit.
	Prompt string
	// WorkDir is the working directory config is loaded from.
	WorkDir string
	// ServerURL overrides the configured backend URL.
	ServerURL string
	// Session pins the backend session identifier.
	Session string
	// AutoApprove approves every approval request the policy leaves open.
	// Without it, open requests are rejected: headless mode has no one to
	// ask.
	AutoApprove bool
	// OutputFormat specifies the output format (text, json, jsonl).
	OutputFormat OutputFormat
	// Timeout is the maximum run time.
	Timeout time.Duration
	// ReadStdin reads the prompt from standard input.
	ReadStdin bool
	// Files are attached to the prompt as context.
	Files []string
	// Quiet suppresses progress output, only shows the result.
	Quiet bool
	// Verbose includes every bus event in jsonl output.
	Verbose bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: OutputText,
		Timeout:      10 * time.Minute,
	}
}

// ToolCallSummary is one tool invocation in the result.
type ToolCallSummary struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
}

// Result holds the final result of a headless run.
type Result struct {
	SessionID    string            `json:"session_id,omitempty"`
	Status       string            `json:"status"` // "completed", "aborted", "errored", "timeout"
	DurationMS   int64             `json:"duration_ms"`
	ToolCalls    []ToolCallSummary `json:"tool_calls,omitempty"`
	FinalMessage string            `json:"final_message,omitempty"`
	Error        string            `json:"error,omitempty"`
	ExitCode     ExitCode          `json:"exit_code"`
}

// Event is a JSONL event for streaming output.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
