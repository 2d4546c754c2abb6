// Package turn enforces the single-active-turn invariant and drives the
// submit, steer, and abort lifecycle of agent turns.
package turn

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/scribe-ide/scribe/internal/approval"
	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/internal/stream"
	"github.com/scribe-ide/scribe/internal/transcript"
	"github.com/scribe-ide/scribe/pkg/types"
)

// ErrTurnActive is returned by Submit while a turn is active. Callers either
// abort first or queue a steering message instead.
var ErrTurnActive = errors.New("a turn is already active")

// AbortedMarker is appended to the transcript when the user aborts a turn.
const AbortedMarker = "Aborted by user"

// DefaultGraceDelay is how long a queued steering message waits after the
// active turn goes terminal before it is submitted. The delay lets
// terminal-state bookkeeping settle; it is not a correctness requirement.
const DefaultGraceDelay = 150 * time.Millisecond

const readBufferSize = 4096

// SubmitRequest is the outbound "submit turn" command.
type SubmitRequest struct {
	SessionID string
	Text      string
	// History carries the prior turns so the backend can rebuild context.
	History []*types.Turn
}

// Transport is the command channel to the agent backend. Submit returns the
// response event stream; the caller owns closing it.
type Transport interface {
	Submit(ctx context.Context, req SubmitRequest) (io.ReadCloser, error)
	Abort(ctx context.Context, sessionID string) error
	approval.Resolver
}

// Controller owns the turn lifecycle: idle, active, terminal. Exactly one
// agent turn may be active at a time. All transcript mutation funnels through
// the controller's mutex, so the builder itself stays unsynchronized.
type Controller struct {
	mu        sync.Mutex
	transport Transport
	builder   *transcript.Builder
	gate      *approval.Gate

	sessionID  string
	graceDelay time.Duration

	active *types.Turn
	cancel context.CancelFunc

	queued    string
	hasQueued bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithGraceDelay overrides the steering drain delay.
func WithGraceDelay(d time.Duration) Option {
	return func(c *Controller) { c.graceDelay = d }
}

// WithSessionID sets the session identifier sent with outbound commands.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// New creates a controller submitting turns through transport. Approval
// requests are screened by policy before being surfaced to the user.
func New(transport Transport, policy approval.Policy, opts ...Option) *Controller {
	c := &Controller{
		transport:  transport,
		builder:    transcript.New(),
		gate:       approval.NewGate(transport, policy),
		graceDelay: DefaultGraceDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Turns returns the transcript in order.
func (c *Controller) Turns() []*types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.Turns()
}

// ActiveTurn returns the active agent turn, or nil when idle.
func (c *Controller) ActiveTurn() *types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Gate returns the approval gate for UI queries (open requests, pending
// edits).
func (c *Controller) Gate() *approval.Gate {
	return c.gate
}

// Submit starts a new turn. It records the user message, opens an agent
// turn, and starts consuming the response stream. Returns ErrTurnActive if a
// turn is already in flight.
func (c *Controller) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrTurnActive
	}

	history := c.builder.Turns()
	c.builder.StartUserTurn(text)

	// The stream outlives the Submit call, so the turn gets its own
	// lifetime detached from the caller's context.
	turnCtx, cancel := context.WithCancel(context.Background())

	body, err := c.transport.Submit(turnCtx, SubmitRequest{
		SessionID: c.sessionID,
		Text:      text,
		History:   history,
	})
	if err != nil {
		cancel()
		turn := c.builder.StartAgentTurn()
		c.builder.CloseActive(types.TurnErrored, userFacingError(err))
		c.mu.Unlock()
		logging.Error().Str("turnID", turn.ID).Err(err).Msg("turn submission failed")
		return err
	}

	turn := c.builder.StartAgentTurn()
	c.active = turn
	c.cancel = cancel
	c.mu.Unlock()

	go c.consume(turnCtx, turn, body)
	return nil
}

// QueueSteering stores a follow-up instruction to be submitted once the
// active turn finishes. The queue holds exactly one message; queuing again
// replaces it. When no turn is active the message is submitted immediately.
func (c *Controller) QueueSteering(text string) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		if err := c.Submit(context.Background(), text); err != nil {
			logging.Error().Err(err).Msg("steering submit failed")
		}
		return
	}

	replaced := c.hasQueued
	c.queued = text
	c.hasQueued = true
	c.mu.Unlock()

	event.Publish(event.Event{
		Type: event.TurnQueued,
		Data: event.TurnQueuedData{Text: text, Replaced: replaced},
	})
}

// Abort cancels the active turn. The turn is marked aborted synchronously;
// the transport signal is cooperative and best-effort. Aborting while idle
// is a no-op.
func (c *Controller) Abort(ctx context.Context) error {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil
	}

	turnID := c.active.ID
	c.cancel()
	c.cancel = nil
	c.active = nil
	// Tool parts still running or waiting approval keep their status. Their
	// server-side effect may already be in flight.
	c.builder.CloseActive(types.TurnAborted, AbortedMarker)
	c.mu.Unlock()

	if err := c.transport.Abort(ctx, c.sessionID); err != nil {
		logging.Warn().Str("turnID", turnID).Err(err).Msg("abort signal failed")
	}

	c.scheduleDrain()
	return nil
}

// ResolveApproval applies the user's decision: reports it upstream through
// the gate, then optimistically resolves the correlated tool call. On
// upstream failure the request stays open and the transcript is untouched,
// so the user can retry.
func (c *Controller) ResolveApproval(ctx context.Context, requestID string, decision types.Decision) error {
	if err := c.gate.Resolve(ctx, requestID, decision); err != nil {
		return err
	}

	c.mu.Lock()
	_, ok := c.builder.ResolveApproval(requestID, decision)
	c.mu.Unlock()
	if !ok {
		logging.Debug().Str("requestID", requestID).Msg("approval resolved with no waiting tool call")
	}
	return nil
}

// consume reads the response stream to completion, feeding decoded events
// into the transcript.
func (c *Controller) consume(ctx context.Context, turn *types.Turn, body io.ReadCloser) {
	defer body.Close()

	var decoder stream.Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.applyEvents(ctx, turn, decoder.Feed(buf[:n]))
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			c.applyEvents(ctx, turn, decoder.Flush())
			c.finish(turn, types.TurnCompleted, "")
			return
		}
		if ctx.Err() != nil {
			// Abort already closed the turn.
			return
		}

		logging.Error().Str("turnID", turn.ID).Err(err).Msg("stream read failed")
		c.finish(turn, types.TurnErrored, userFacingError(err))
		return
	}
}

// applyEvents folds decoded events into the transcript and routes approval
// traffic through the gate.
func (c *Controller) applyEvents(ctx context.Context, turn *types.Turn, events []types.Event) {
	for _, ev := range events {
		c.mu.Lock()
		if c.active != turn {
			// The turn went terminal under us (abort); drop the remainder.
			c.mu.Unlock()
			return
		}
		c.builder.Apply(ev)
		c.mu.Unlock()

		switch e := ev.(type) {
		case types.ApprovalRequiredEvent:
			c.screenApproval(ctx, e)
		case types.ApprovalResolvedEvent:
			decision := types.DecisionReject
			if e.Approved {
				decision = types.DecisionApprove
			}
			c.gate.Observe(e.RequestID, decision)
		}
	}
}

// screenApproval registers the request with the gate and auto-resolves it
// when policy already knows the answer. ActionAsk leaves it open for the
// user.
func (c *Controller) screenApproval(ctx context.Context, e types.ApprovalRequiredEvent) {
	req, action, registered := c.gate.HandleRequired(e)
	if !registered {
		return
	}

	switch action {
	case approval.ActionAllow:
		if err := c.ResolveApproval(ctx, req.RequestID, types.DecisionApprove); err != nil {
			logging.Warn().Str("requestID", req.RequestID).Err(err).Msg("policy auto-approve failed")
		}
	case approval.ActionDeny:
		if err := c.ResolveApproval(ctx, req.RequestID, types.DecisionReject); err != nil {
			logging.Warn().Str("requestID", req.RequestID).Err(err).Msg("policy auto-deny failed")
		}
	}
}

// finish moves the turn to a terminal state and drains any queued steering
// message. No-op when the turn was already closed by Abort.
func (c *Controller) finish(turn *types.Turn, state types.TurnState, marker string) {
	c.mu.Lock()
	if c.active != turn {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = nil
	c.builder.CloseActive(state, marker)
	c.mu.Unlock()

	c.scheduleDrain()
}

// scheduleDrain submits the queued steering message after the grace delay.
func (c *Controller) scheduleDrain() {
	c.mu.Lock()
	if !c.hasQueued {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	time.AfterFunc(c.graceDelay, c.drainSteering)
}

func (c *Controller) drainSteering() {
	c.mu.Lock()
	if !c.hasQueued || c.active != nil {
		c.mu.Unlock()
		return
	}
	text := c.queued
	c.queued = ""
	c.hasQueued = false
	c.mu.Unlock()

	if err := c.Submit(context.Background(), text); err != nil {
		logging.Error().Err(err).Msg("queued steering submit failed")
	}
}

func userFacingError(err error) string {
	return "Stream error: " + err.Error()
}
