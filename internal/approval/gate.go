// Package approval implements the human-in-the-loop gate for tool calls the
// backend pauses pending sign-off.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/pkg/types"
)

// ErrUnknownRequest is returned when resolving a request id the gate has
// never seen.
var ErrUnknownRequest = errors.New("unknown approval request")

// Resolver sends an approval decision upstream to the backend.
type Resolver interface {
	ResolveApproval(ctx context.Context, requestID string, decision types.Decision) error
}

// Request is an open approval request tracked by the gate.
type Request struct {
	RequestID string
	CallID    string
	ToolName  string
	Args      map[string]any

	// Edit is non-nil when the gated tool is a file-mutation tool; it is the
	// pending replacement the edit locator derives overlays from.
	Edit *types.PendingEdit
}

// Gate tracks open approval requests and owns their requested -> resolved
// state machine. Transitions fire only on an explicit external decision;
// the gate never times out a request on its own.
type Gate struct {
	mu       sync.Mutex
	resolver Resolver
	policy   Policy

	pending  map[string]Request
	resolved map[string]types.Decision
	// inflight marks requests whose decision is being reported upstream, so
	// concurrent resolutions collapse into one backend call.
	inflight map[string]bool
}

// NewGate creates a gate that reports decisions through resolver.
func NewGate(resolver Resolver, policy Policy) *Gate {
	return &Gate{
		resolver: resolver,
		policy:   policy,
		pending:  make(map[string]Request),
		resolved: make(map[string]types.Decision),
		inflight: make(map[string]bool),
	}
}

// HandleRequired registers an approval_required event. Duplicate deliveries
// for an already-resolved or already-open request id are idempotently
// ignored (registered == false). The returned action is the policy verdict:
// ActionAsk leaves the request open for an external decision, ActionAllow
// and ActionDeny tell the caller to resolve immediately.
func (g *Gate) HandleRequired(ev types.ApprovalRequiredEvent) (Request, Action, bool) {
	g.mu.Lock()

	if _, done := g.resolved[ev.RequestID]; done {
		g.mu.Unlock()
		logging.Debug().Str("requestID", ev.RequestID).Msg("duplicate approval request already resolved")
		return Request{}, ActionAsk, false
	}
	if existing, open := g.pending[ev.RequestID]; open {
		g.mu.Unlock()
		return existing, ActionAsk, false
	}

	req := Request{
		RequestID: ev.RequestID,
		CallID:    ev.CallID,
		ToolName:  ev.ToolName,
		Args:      ev.ToolArgs,
		Edit:      extractPendingEdit(ev),
	}
	g.pending[ev.RequestID] = req
	g.mu.Unlock()

	event.Publish(event.Event{
		Type: event.ApprovalRequired,
		Data: event.ApprovalRequiredData{
			RequestID: req.RequestID,
			ToolName:  req.ToolName,
			CallID:    req.CallID,
			Edit:      req.Edit,
		},
	})

	return req, g.policy.Evaluate(ev.ToolName, ev.ToolArgs), true
}

// Resolve records the decision for an open request, reports it upstream, and
// discards the pending edit. Resolving an already-resolved request is a
// no-op, and a resolution racing an in-flight one yields to it, so the
// backend sees at most one decision per request. The approval.resolved
// notification is published synchronously so overlay owners drop stale edit
// decorations before Resolve returns.
func (g *Gate) Resolve(ctx context.Context, requestID string, decision types.Decision) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision %q", decision)
	}

	g.mu.Lock()
	if _, done := g.resolved[requestID]; done {
		g.mu.Unlock()
		return nil
	}
	if _, open := g.pending[requestID]; !open {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if g.inflight[requestID] {
		g.mu.Unlock()
		return nil
	}
	g.inflight[requestID] = true
	g.mu.Unlock()

	if err := g.resolver.ResolveApproval(ctx, requestID, decision); err != nil {
		// Keep the request open so the user can retry.
		g.mu.Lock()
		delete(g.inflight, requestID)
		g.mu.Unlock()
		return fmt.Errorf("resolve approval %s: %w", requestID, err)
	}

	g.mu.Lock()
	delete(g.inflight, requestID)
	if _, done := g.resolved[requestID]; done {
		// The backend echoed the decision while we were reporting it.
		g.mu.Unlock()
		return nil
	}
	delete(g.pending, requestID)
	g.resolved[requestID] = decision
	g.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.ApprovalResolved,
		Data: event.ApprovalResolvedData{RequestID: requestID, Decision: decision},
	})
	return nil
}

// Observe records a resolution that originated outside this client, such as
// the backend echoing a decision made by another attached client. No
// upstream call is made. Unknown or already-resolved request ids are
// recorded without complaint so late echoes stay harmless.
func (g *Gate) Observe(requestID string, decision types.Decision) {
	g.mu.Lock()
	if _, done := g.resolved[requestID]; done {
		g.mu.Unlock()
		return
	}
	delete(g.pending, requestID)
	g.resolved[requestID] = decision
	g.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.ApprovalResolved,
		Data: event.ApprovalResolvedData{RequestID: requestID, Decision: decision},
	})
}

// Pending returns the pending edit for an open request, if any. Resolved
// requests return no edit: ownership ends at resolution.
func (g *Gate) Pending(requestID string) (*types.PendingEdit, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[requestID]
	if !ok || req.Edit == nil {
		return nil, false
	}
	return req.Edit, true
}

// Open returns the currently open requests in no particular order.
func (g *Gate) Open() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	reqs := make([]Request, 0, len(g.pending))
	for _, req := range g.pending {
		reqs = append(reqs, req)
	}
	return reqs
}

// Decision returns the recorded decision for a resolved request.
func (g *Gate) Decision(requestID string) (types.Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.resolved[requestID]
	return d, ok
}

// fileMutationTools are the backend tools whose approval requests carry a
// proposed text replacement.
var fileMutationTools = map[string]bool{
	"write_file":      true,
	"edit_file":       true,
	"apply_edit":      true,
	"replace_in_file": true,
}

// extractPendingEdit builds a PendingEdit from a file-mutation approval
// request. Backends vary in argument naming, so both snake_case variants
// seen in the wild are accepted.
func extractPendingEdit(ev types.ApprovalRequiredEvent) *types.PendingEdit {
	if !fileMutationTools[ev.ToolName] {
		return nil
	}

	path := stringArg(ev.ToolArgs, "target_path", "file_path", "path")
	if path == "" {
		return nil
	}

	return &types.PendingEdit{
		RequestID:  ev.RequestID,
		TargetPath: path,
		OldText:    stringArg(ev.ToolArgs, "old_text", "old_string"),
		NewText:    stringArg(ev.ToolArgs, "new_text", "new_string", "content"),
	}
}

func stringArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
