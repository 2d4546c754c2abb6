package types

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TurnState is the lifecycle state of a turn.
type TurnState string

const (
	TurnActive    TurnState = "active"
	TurnCompleted TurnState = "completed"
	TurnAborted   TurnState = "aborted"
	TurnErrored   TurnState = "errored"
)

// Terminal reports whether the state is final.
func (s TurnState) Terminal() bool {
	return s == TurnCompleted || s == TurnAborted || s == TurnErrored
}

// Turn is one request/response cycle. Role is immutable; parts accumulate
// in arrival order while the turn is active.
type Turn struct {
	ID    string    `json:"id"`
	Role  Role      `json:"role"`
	State TurnState `json:"state"`
	Parts []Part    `json:"parts"`
}

// LastPart returns the most recently appended part, or nil.
func (t *Turn) LastPart() Part {
	if len(t.Parts) == 0 {
		return nil
	}
	return t.Parts[len(t.Parts)-1]
}

// Part is an ordered fragment of a turn's content.
type Part interface {
	PartType() string
}

// TextPart holds streamed assistant text. Consecutive text deltas are
// concatenated into the trailing TextPart of the active turn.
type TextPart struct {
	Content string `json:"content"`
}

func (*TextPart) PartType() string { return "text" }

// ToolPart wraps a tool call. It is mutated in place when the matching
// result or approval event arrives.
type ToolPart struct {
	Call ToolCall `json:"toolCall"`
}

func (*ToolPart) PartType() string { return "tool" }

// PlanPart wraps a plan snapshot.
type PlanPart struct {
	Plan *Plan `json:"plan"`
}

func (*PlanPart) PartType() string { return "plan" }

// ErrorPart records a backend-reported error inside the turn. It is
// informational and closed on arrival: later text deltas open a fresh text
// part instead of appending to the error message.
type ErrorPart struct {
	Message string `json:"message"`
}

func (*ErrorPart) PartType() string { return "error" }

// ToolStatus is the lifecycle status of a tool call. Transitions are
// monotonic: running -> waiting_approval -> {success, error}, or running
// directly to a terminal status. There are no backward transitions.
type ToolStatus string

const (
	ToolRunning         ToolStatus = "running"
	ToolWaitingApproval ToolStatus = "waiting_approval"
	ToolSuccess         ToolStatus = "success"
	ToolError           ToolStatus = "error"
)

// Terminal reports whether the status is final.
func (s ToolStatus) Terminal() bool {
	return s == ToolSuccess || s == ToolError
}

// CanTransition reports whether moving to next preserves monotonicity.
func (s ToolStatus) CanTransition(next ToolStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case ToolRunning:
		return next == ToolWaitingApproval || next.Terminal()
	case ToolWaitingApproval:
		return next.Terminal()
	}
	return false
}

// ToolCall is an agent-initiated invocation of a named capability.
type ToolCall struct {
	// ID is either server-assigned (from the tool_call event) or locally
	// generated when the backend omits identifiers.
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`

	Status ToolStatus `json:"status"`
	Result string     `json:"result,omitempty"`

	// ApprovalRequestID links the call to an open approval request while
	// status is waiting_approval.
	ApprovalRequestID string `json:"approvalRequestID,omitempty"`
}
