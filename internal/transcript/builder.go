// Package transcript folds the agent event stream into an ordered
// conversation transcript of turns and parts.
package transcript

import (
	"github.com/oklog/ulid/v2"

	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/pkg/types"
)

// RejectedResult is recorded as the tool result when the user rejects an
// approval request.
const RejectedResult = "Rejected by user"

// DeltaKind classifies what a single Apply changed.
type DeltaKind string

const (
	// DeltaNone means the event had no observable effect (e.g. plan_completed).
	DeltaNone DeltaKind = "none"
	// DeltaPartAppended means a new part was appended to the active turn.
	DeltaPartAppended DeltaKind = "part_appended"
	// DeltaPartUpdated means an existing part was mutated in place.
	DeltaPartUpdated DeltaKind = "part_updated"
	// DeltaDropped means the event could not be attached and was discarded.
	DeltaDropped DeltaKind = "dropped"
)

// Delta describes the transcript change produced by one event.
type Delta struct {
	Kind      DeltaKind
	Turn      *types.Turn
	PartIndex int
	// Text carries the appended content for text_delta events.
	Text string
}

// Builder owns the transcript. All mutation flows through Apply and the
// explicit turn lifecycle methods; no other component holds mutable state.
// The Builder itself is not synchronized; the turn controller serializes
// access, matching the event-loop model of the host UI.
type Builder struct {
	turns  []*types.Turn
	active *types.Turn
}

// New creates an empty transcript builder.
func New() *Builder {
	return &Builder{}
}

// Turns returns the transcript in order. The returned slice is shared with
// the builder; callers treat it as read-only.
func (b *Builder) Turns() []*types.Turn {
	return b.turns
}

// Active returns the active turn, or nil when idle.
func (b *Builder) Active() *types.Turn {
	return b.active
}

// StartUserTurn appends a completed user turn holding the submitted text.
func (b *Builder) StartUserTurn(text string) *types.Turn {
	turn := &types.Turn{
		ID:    ulid.Make().String(),
		Role:  types.RoleUser,
		State: types.TurnCompleted,
		Parts: []types.Part{&types.TextPart{Content: text}},
	}
	b.turns = append(b.turns, turn)
	return turn
}

// StartAgentTurn opens a new active agent turn. The single-active-turn
// invariant is enforced by the turn controller; a stale active turn here is
// a programming error and is closed as errored.
func (b *Builder) StartAgentTurn() *types.Turn {
	if b.active != nil {
		logging.Error().Str("turnID", b.active.ID).Msg("starting agent turn while another is active")
		b.CloseActive(types.TurnErrored, "")
	}

	turn := &types.Turn{
		ID:    ulid.Make().String(),
		Role:  types.RoleAgent,
		State: types.TurnActive,
	}
	b.turns = append(b.turns, turn)
	b.active = turn

	event.Publish(event.Event{
		Type: event.TurnStarted,
		Data: event.TurnStartedData{Turn: turn},
	})
	return turn
}

// CloseActive moves the active turn to a terminal state. A non-empty marker
// is appended as a final informational text part (used for aborts). Tool
// parts still running or waiting approval keep their status: their
// server-side effect may already be in flight, and recording uncertainty
// beats asserting a resolution we cannot verify.
func (b *Builder) CloseActive(state types.TurnState, marker string) *types.Turn {
	turn := b.active
	if turn == nil {
		return nil
	}
	if marker != "" {
		turn.Parts = append(turn.Parts, &types.TextPart{Content: marker})
	}
	turn.State = state
	b.active = nil

	event.Publish(event.Event{
		Type: event.TurnUpdated,
		Data: event.TurnUpdatedData{Turn: turn},
	})
	return turn
}

// Apply folds one stream event into the transcript and reports what changed.
// Events are processed strictly in arrival order; parts are never reordered.
func (b *Builder) Apply(ev types.Event) Delta {
	switch e := ev.(type) {
	case types.TextDeltaEvent:
		return b.applyTextDelta(e)
	case types.ToolCallEvent:
		return b.applyToolCall(e)
	case types.ToolResultEvent:
		return b.applyToolResult(e)
	case types.ApprovalRequiredEvent:
		return b.applyApprovalRequired(e)
	case types.ApprovalResolvedEvent:
		return b.applyApprovalResolved(e)
	case types.PlanCreatedEvent:
		return b.applyPlanCreated(e)
	case types.PlanStepEvent:
		return b.applyPlanStep(e)
	case types.PlanCompletedEvent:
		// Terminal step statuses stay visible; nothing to mutate.
		return Delta{Kind: DeltaNone, Turn: b.active}
	case types.ErrorEvent:
		return b.applyError(e)
	}

	logging.Debug().Str("kind", string(ev.Kind())).Msg("no transcript handling for event")
	return Delta{Kind: DeltaNone}
}

func (b *Builder) applyTextDelta(e types.TextDeltaEvent) Delta {
	turn := b.active
	if turn == nil {
		logging.Warn().Msg("text_delta with no active turn")
		return Delta{Kind: DeltaDropped}
	}

	// The trailing text part absorbs consecutive deltas.
	if tp, ok := turn.LastPart().(*types.TextPart); ok {
		tp.Content += e.Content
		idx := len(turn.Parts) - 1
		b.publishPart(turn, idx, e.Content)
		return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx, Text: e.Content}
	}

	turn.Parts = append(turn.Parts, &types.TextPart{Content: e.Content})
	idx := len(turn.Parts) - 1
	b.publishPart(turn, idx, e.Content)
	return Delta{Kind: DeltaPartAppended, Turn: turn, PartIndex: idx, Text: e.Content}
}

func (b *Builder) applyToolCall(e types.ToolCallEvent) Delta {
	turn := b.active
	if turn == nil {
		logging.Warn().Str("tool", e.Name).Msg("tool_call with no active turn")
		return Delta{Kind: DeltaDropped}
	}

	id := e.CallID
	if id == "" {
		id = ulid.Make().String()
	}

	turn.Parts = append(turn.Parts, &types.ToolPart{Call: types.ToolCall{
		ID:     id,
		Name:   e.Name,
		Args:   e.Args,
		Status: types.ToolRunning,
	}})
	idx := len(turn.Parts) - 1
	b.publishPart(turn, idx, "")
	return Delta{Kind: DeltaPartAppended, Turn: turn, PartIndex: idx}
}

func (b *Builder) applyToolResult(e types.ToolResultEvent) Delta {
	turn := b.active
	if turn == nil {
		return b.dropUncorrelated("tool_result", e.CallID, e.Name)
	}

	idx, ok := Correlate(turn.Parts, e.CallID, e.Name)
	if !ok {
		return b.dropUncorrelated("tool_result", e.CallID, e.Name)
	}

	tp := turn.Parts[idx].(*types.ToolPart)
	next := types.ToolSuccess
	if e.IsError {
		next = types.ToolError
	}
	if !tp.Call.Status.CanTransition(next) {
		logging.Debug().
			Str("callID", tp.Call.ID).
			Str("from", string(tp.Call.Status)).
			Str("to", string(next)).
			Msg("ignoring non-monotonic tool status transition")
		return Delta{Kind: DeltaNone, Turn: turn, PartIndex: idx}
	}

	tp.Call.Status = next
	tp.Call.Result = e.Result
	b.publishPart(turn, idx, "")
	return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx}
}

func (b *Builder) applyApprovalRequired(e types.ApprovalRequiredEvent) Delta {
	turn := b.active
	if turn == nil {
		return b.dropUncorrelated("approval_required", e.CallID, e.ToolName)
	}

	idx, ok := Correlate(turn.Parts, e.CallID, e.ToolName)
	if !ok {
		return b.dropUncorrelated("approval_required", e.CallID, e.ToolName)
	}

	tp := turn.Parts[idx].(*types.ToolPart)
	if tp.Call.ApprovalRequestID == e.RequestID && tp.Call.Status == types.ToolWaitingApproval {
		// Duplicate delivery of an open request.
		return Delta{Kind: DeltaNone, Turn: turn, PartIndex: idx}
	}
	if !tp.Call.Status.CanTransition(types.ToolWaitingApproval) {
		return Delta{Kind: DeltaNone, Turn: turn, PartIndex: idx}
	}

	tp.Call.Status = types.ToolWaitingApproval
	tp.Call.ApprovalRequestID = e.RequestID
	b.publishPart(turn, idx, "")
	return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx}
}

// applyApprovalResolved handles the backend's acknowledgement. The client
// resolves optimistically on the local decision, so this usually finds the
// call already terminal; it only mutates when the resolution originated
// elsewhere (e.g. another attached client).
func (b *Builder) applyApprovalResolved(e types.ApprovalResolvedEvent) Delta {
	turn := b.active
	if turn == nil {
		return Delta{Kind: DeltaNone}
	}

	idx, tp := b.findByRequestID(turn, e.RequestID)
	if tp == nil {
		return Delta{Kind: DeltaNone, Turn: turn}
	}

	decision := types.DecisionReject
	if e.Approved {
		decision = types.DecisionApprove
	}
	if !b.resolveToolPart(tp, decision) {
		return Delta{Kind: DeltaNone, Turn: turn, PartIndex: idx}
	}
	b.publishPart(turn, idx, "")
	return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx}
}

// ResolveApproval applies a local approval decision to the correlated tool
// call: success on approve, error with a rejection result on reject. The
// status is set optimistically; the backend's own acknowledgement is not
// re-awaited. The lookup is not limited to the active turn: the backend may
// close the stream on receiving the decision, so the resolution can land
// after the turn already went terminal. Reports whether a waiting call was
// found and mutated.
func (b *Builder) ResolveApproval(requestID string, decision types.Decision) (Delta, bool) {
	turn, idx, tp := b.findRequest(requestID)
	if tp == nil || !b.resolveToolPart(tp, decision) {
		return Delta{Kind: DeltaNone, Turn: turn}, false
	}

	b.publishPart(turn, idx, "")
	return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx}, true
}

// findRequest scans the active turn first, then earlier turns newest-first,
// for the tool part linked to an approval request.
func (b *Builder) findRequest(requestID string) (*types.Turn, int, *types.ToolPart) {
	if b.active != nil {
		if idx, tp := b.findByRequestID(b.active, requestID); tp != nil {
			return b.active, idx, tp
		}
	}
	for i := len(b.turns) - 1; i >= 0; i-- {
		if b.turns[i] == b.active {
			continue
		}
		if idx, tp := b.findByRequestID(b.turns[i], requestID); tp != nil {
			return b.turns[i], idx, tp
		}
	}
	return nil, -1, nil
}

func (b *Builder) findByRequestID(turn *types.Turn, requestID string) (int, *types.ToolPart) {
	for i, part := range turn.Parts {
		if tp, ok := part.(*types.ToolPart); ok && tp.Call.ApprovalRequestID == requestID {
			return i, tp
		}
	}
	return -1, nil
}

func (b *Builder) resolveToolPart(tp *types.ToolPart, decision types.Decision) bool {
	next := types.ToolSuccess
	if decision == types.DecisionReject {
		next = types.ToolError
	}
	if !tp.Call.Status.CanTransition(next) {
		return false
	}
	tp.Call.Status = next
	if decision == types.DecisionReject {
		tp.Call.Result = RejectedResult
	}
	return true
}

func (b *Builder) applyPlanCreated(e types.PlanCreatedEvent) Delta {
	turn := b.active
	if turn == nil {
		logging.Warn().Str("planID", e.PlanID).Msg("plan_created with no active turn")
		return Delta{Kind: DeltaDropped}
	}

	plan := &types.Plan{ID: e.PlanID, Goal: e.Goal}
	for _, seed := range e.Steps {
		plan.Steps = append(plan.Steps, types.Step{
			Number: seed.Number,
			Title:  seed.Title,
			Status: types.StepPending,
		})
	}

	turn.Parts = append(turn.Parts, &types.PlanPart{Plan: plan})
	idx := len(turn.Parts) - 1

	event.Publish(event.Event{
		Type: event.PlanUpdated,
		Data: event.PlanUpdatedData{TurnID: turn.ID, Plan: plan},
	})
	return Delta{Kind: DeltaPartAppended, Turn: turn, PartIndex: idx}
}

func (b *Builder) applyPlanStep(e types.PlanStepEvent) Delta {
	turn, idx, plan := b.findPlan(e.PlanID)
	if plan == nil {
		// Plan may have been cleared by the user; ignore.
		logging.Debug().Str("planID", e.PlanID).Msg("plan_step for unknown plan")
		return Delta{Kind: DeltaDropped}
	}

	step := plan.Step(e.Number)
	if step == nil {
		plan.Steps = append(plan.Steps, types.Step{
			Number: e.Number,
			Title:  e.Title,
			Status: statusOrPending(e.Status),
		})
	} else {
		if e.Title != "" {
			step.Title = e.Title
		}
		if e.Status != "" {
			if !step.Status.CanTransition(e.Status) {
				return Delta{Kind: DeltaNone, Turn: turn, PartIndex: idx}
			}
			step.Status = e.Status
		}
	}

	event.Publish(event.Event{
		Type: event.PlanUpdated,
		Data: event.PlanUpdatedData{TurnID: turn.ID, Plan: plan},
	})
	return Delta{Kind: DeltaPartUpdated, Turn: turn, PartIndex: idx}
}

func statusOrPending(s types.StepStatus) types.StepStatus {
	if s == "" {
		return types.StepPending
	}
	return s
}

// findPlan scans the active turn first, then earlier turns, for a PlanPart
// with the given plan id.
func (b *Builder) findPlan(planID string) (*types.Turn, int, *types.Plan) {
	if b.active != nil {
		if idx, plan := planInTurn(b.active, planID); plan != nil {
			return b.active, idx, plan
		}
	}
	for i := len(b.turns) - 1; i >= 0; i-- {
		if b.turns[i] == b.active {
			continue
		}
		if idx, plan := planInTurn(b.turns[i], planID); plan != nil {
			return b.turns[i], idx, plan
		}
	}
	return nil, -1, nil
}

func planInTurn(turn *types.Turn, planID string) (int, *types.Plan) {
	for i, part := range turn.Parts {
		if pp, ok := part.(*types.PlanPart); ok && pp.Plan.ID == planID {
			return i, pp.Plan
		}
	}
	return -1, nil
}

// applyError appends an informational error part. The part is closed on
// arrival: a later text_delta never appends to it, so backend error text and
// streamed assistant text stay separate. Closing the turn is the turn
// controller's job, driven by stream completion or abort.
func (b *Builder) applyError(e types.ErrorEvent) Delta {
	turn := b.active
	if turn == nil {
		logging.Warn().Str("message", e.Message).Msg("error event with no active turn")
		return Delta{Kind: DeltaDropped}
	}

	turn.Parts = append(turn.Parts, &types.ErrorPart{Message: e.Message})
	idx := len(turn.Parts) - 1
	b.publishPart(turn, idx, "")

	event.Publish(event.Event{
		Type: event.TurnError,
		Data: event.TurnErrorData{TurnID: turn.ID, Message: e.Message},
	})
	return Delta{Kind: DeltaPartAppended, Turn: turn, PartIndex: idx}
}

func (b *Builder) dropUncorrelated(kind, callID, toolName string) Delta {
	logging.Warn().
		Str("event", kind).
		Str("callID", callID).
		Str("tool", toolName).
		Msg("no matching tool call; dropping event")
	return Delta{Kind: DeltaDropped}
}

func (b *Builder) publishPart(turn *types.Turn, idx int, delta string) {
	event.Publish(event.Event{
		Type: event.PartUpdated,
		Data: event.PartUpdatedData{
			TurnID:    turn.ID,
			PartIndex: idx,
			Part:      turn.Parts[idx],
			Delta:     delta,
		},
	})
}
