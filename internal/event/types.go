package event

import "github.com/scribe-ide/scribe/pkg/types"

// TurnStartedData is the data for turn.started events.
type TurnStartedData struct {
	Turn *types.Turn `json:"turn"`
}

// TurnUpdatedData is the data for turn.updated events. Emitted when a turn
// reaches a terminal state or its metadata changes.
type TurnUpdatedData struct {
	Turn *types.Turn `json:"turn"`
}

// TurnQueuedData is the data for turn.queued events (steering).
type TurnQueuedData struct {
	Text     string `json:"text"`
	Replaced bool   `json:"replaced"`
}

// TurnErrorData is the data for turn.error events.
type TurnErrorData struct {
	TurnID  string `json:"turnID"`
	Message string `json:"message"`
}

// PartUpdatedData is the data for part.updated events.
// Delta carries streamed text for trailing text parts.
type PartUpdatedData struct {
	TurnID    string     `json:"turnID"`
	PartIndex int        `json:"partIndex"`
	Part      types.Part `json:"part"`
	Delta     string     `json:"delta,omitempty"`
}

// PlanUpdatedData is the data for plan.updated events.
type PlanUpdatedData struct {
	TurnID string      `json:"turnID"`
	Plan   *types.Plan `json:"plan"`
}

// ApprovalRequiredData is the data for approval.required events.
type ApprovalRequiredData struct {
	RequestID string             `json:"requestID"`
	ToolName  string             `json:"toolName"`
	CallID    string             `json:"callID,omitempty"`
	Edit      *types.PendingEdit `json:"edit,omitempty"`
}

// ApprovalResolvedData is the data for approval.resolved events. Overlay
// owners subscribe to this to drop stale edit decorations.
type ApprovalResolvedData struct {
	RequestID string         `json:"requestID"`
	Decision  types.Decision `json:"decision"`
}

// EditLocationUpdatedData is the data for editlocation.updated events.
// Location is nil when the edit no longer applies to the document.
type EditLocationUpdatedData struct {
	RequestID  string              `json:"requestID"`
	TargetPath string              `json:"targetPath"`
	Location   *types.EditLocation `json:"location,omitempty"`
}
