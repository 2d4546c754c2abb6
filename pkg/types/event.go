package types

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the wire event variant.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolCall         EventKind = "tool_call"
	EventToolResult       EventKind = "tool_result"
	EventError            EventKind = "error"
	EventApprovalRequired EventKind = "approval_required"
	EventApprovalResolved EventKind = "approval_resolved"
	EventPlanCreated      EventKind = "plan_created"
	EventPlanStep         EventKind = "plan_step"
	EventPlanCompleted    EventKind = "plan_completed"
)

// Event is the closed union of wire messages delivered by the agent stream.
type Event interface {
	Kind() EventKind
}

// TextDeltaEvent carries an incremental chunk of assistant text.
type TextDeltaEvent struct {
	Content string `json:"content"`
}

func (TextDeltaEvent) Kind() EventKind { return EventTextDelta }

// ToolCallEvent announces a tool invocation. CallID may be empty when the
// backend omits identifiers; the correlator falls back to name matching.
type ToolCallEvent struct {
	CallID string         `json:"tool_call_id,omitempty"`
	Name   string         `json:"tool_name"`
	Args   map[string]any `json:"args,omitempty"`
}

func (ToolCallEvent) Kind() EventKind { return EventToolCall }

// ToolResultEvent completes a previously announced tool call.
type ToolResultEvent struct {
	CallID  string `json:"tool_call_id,omitempty"`
	Name    string `json:"tool_name,omitempty"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

func (ToolResultEvent) Kind() EventKind { return EventToolResult }

// ErrorEvent carries a backend-reported error message.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) Kind() EventKind { return EventError }

// ApprovalRequiredEvent asks the human to sign off on a tool invocation
// before the backend executes it.
type ApprovalRequiredEvent struct {
	RequestID string         `json:"request_id"`
	CallID    string         `json:"tool_call_id,omitempty"`
	ToolName  string         `json:"tool_name"`
	ToolArgs  map[string]any `json:"tool_args,omitempty"`
}

func (ApprovalRequiredEvent) Kind() EventKind { return EventApprovalRequired }

// ApprovalResolvedEvent is the backend's acknowledgement of a decision.
// The client resolves optimistically, so this is informational.
type ApprovalResolvedEvent struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}

func (ApprovalResolvedEvent) Kind() EventKind { return EventApprovalResolved }

// PlanStepSeed is a step as delivered inside a plan_created event.
type PlanStepSeed struct {
	Number int    `json:"step_number"`
	Title  string `json:"title"`
}

// PlanCreatedEvent opens a new plan snapshot.
type PlanCreatedEvent struct {
	PlanID string         `json:"plan_id"`
	Goal   string         `json:"goal"`
	Steps  []PlanStepSeed `json:"steps,omitempty"`
}

func (PlanCreatedEvent) Kind() EventKind { return EventPlanCreated }

// PlanStepEvent updates the status of one step of an existing plan.
type PlanStepEvent struct {
	PlanID string     `json:"plan_id"`
	Number int        `json:"step_number"`
	Title  string     `json:"title,omitempty"`
	Status StepStatus `json:"status"`
}

func (PlanStepEvent) Kind() EventKind { return EventPlanStep }

// PlanCompletedEvent marks a plan as finished. Step statuses stay as-is.
type PlanCompletedEvent struct {
	PlanID string `json:"plan_id"`
}

func (PlanCompletedEvent) Kind() EventKind { return EventPlanCompleted }

// ErrUnknownEventKind is returned by UnmarshalEvent for envelope types this
// client does not recognize. Callers skip these without failing the stream.
type ErrUnknownEventKind struct {
	Type string
}

func (e *ErrUnknownEventKind) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// ValidationError indicates a frame that parsed as an envelope but whose
// payload is missing required fields. The decoder surfaces these as generic
// error events rather than dropping them silently.
type ValidationError struct {
	EventType string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s event: %s", e.EventType, e.Reason)
}

// UnmarshalEvent decodes a single wire envelope into a typed Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch EventKind(envelope.Type) {
	case EventTextDelta:
		var ev TextDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil

	case EventToolCall:
		var ev ToolCallEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.Name == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing tool_name"}
		}
		return ev, nil

	case EventToolResult:
		var ev ToolResultEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.CallID == "" && ev.Name == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing tool_call_id and tool_name"}
		}
		return ev, nil

	case EventError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.Message == "" {
			ev.Message = "stream error"
		}
		return ev, nil

	case EventApprovalRequired:
		var ev ApprovalRequiredEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing request_id"}
		}
		if ev.ToolName == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing tool_name"}
		}
		return ev, nil

	case EventApprovalResolved:
		var ev ApprovalResolvedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing request_id"}
		}
		return ev, nil

	case EventPlanCreated:
		var ev PlanCreatedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.PlanID == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing plan_id"}
		}
		return ev, nil

	case EventPlanStep:
		var ev PlanStepEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.PlanID == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing plan_id"}
		}
		if ev.Number < 1 {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "step_number must be >= 1"}
		}
		if ev.Status != "" && !ev.Status.Valid() {
			return nil, &ValidationError{EventType: envelope.Type, Reason: fmt.Sprintf("unknown step status %q", ev.Status)}
		}
		return ev, nil

	case EventPlanCompleted:
		var ev PlanCompletedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if ev.PlanID == "" {
			return nil, &ValidationError{EventType: envelope.Type, Reason: "missing plan_id"}
		}
		return ev, nil

	default:
		return nil, &ErrUnknownEventKind{Type: envelope.Type}
	}
}
