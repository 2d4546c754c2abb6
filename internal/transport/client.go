// Package transport is the HTTP client for the agent backend. Turn
// submissions stream back as newline-delimited JSON; abort and approval
// resolution are plain commands.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/internal/turn"
	"github.com/scribe-ide/scribe/pkg/types"
)

const (
	// ConnectInitialInterval is the initial interval for connect retries.
	ConnectInitialInterval = 250 * time.Millisecond
	// ConnectMaxInterval is the maximum interval for connect retries.
	ConnectMaxInterval = 5 * time.Second
	// ConnectMaxElapsedTime bounds the total time spent waiting for the
	// backend to come up.
	ConnectMaxElapsedTime = 30 * time.Second
)

// Error is a failed backend exchange: a non-2xx response or an unreachable
// server. Turns that hit one go terminal; the client never retries a turn
// stream on its own.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: %s", e.Message)
	}
	return fmt.Sprintf("transport: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the agent backend over HTTP. It satisfies turn.Transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a client for the backend at baseURL. The default HTTP client
// has no timeout because turn streams are open-ended; per-request deadlines
// come from the caller's context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect waits for the backend to answer its health endpoint, retrying with
// exponential backoff and jitter. This is the only place the transport
// retries anything.
func (c *Client) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ConnectInitialInterval
	b.MaxInterval = ConnectMaxInterval
	b.MaxElapsedTime = ConnectMaxElapsedTime

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logging.Debug().Err(err).Msg("backend not reachable yet")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health returned %d", resp.StatusCode)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// historyMessage is the flattened prior-turn shape sent with a submission.
// Tool calls collapse to their name and result; the backend only needs
// conversational context, not the full part tree.
type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type submitPayload struct {
	SessionID string           `json:"session_id"`
	Text      string           `json:"text"`
	History   []historyMessage `json:"history,omitempty"`
}

// Submit starts a turn and returns the response event stream. The caller
// owns closing the returned body.
func (c *Client) Submit(ctx context.Context, req turn.SubmitRequest) (io.ReadCloser, error) {
	payload := submitPayload{
		SessionID: req.SessionID,
		Text:      req.Text,
		History:   flattenHistory(req.History),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal submit: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/turns", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &Error{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	return resp.Body, nil
}

// Abort signals the backend to stop the session's active turn. Signal only;
// the state machine side of the abort already happened in the controller.
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	return c.command(ctx, "/v1/turns/abort", map[string]string{"session_id": sessionID})
}

// ResolveApproval reports the user's decision for an approval request.
func (c *Client) ResolveApproval(ctx context.Context, requestID string, decision types.Decision) error {
	return c.command(ctx, "/v1/approvals/"+requestID, map[string]string{"decision": string(decision)})
}

func (c *Client) command(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func flattenHistory(turns []*types.Turn) []historyMessage {
	var msgs []historyMessage
	for _, t := range turns {
		var sb strings.Builder
		for _, part := range t.Parts {
			switch p := part.(type) {
			case *types.TextPart:
				sb.WriteString(p.Content)
			case *types.ToolPart:
				fmt.Fprintf(&sb, "[%s: %s]", p.Call.Name, p.Call.Status)
			}
		}
		if sb.Len() == 0 {
			continue
		}
		msgs = append(msgs, historyMessage{Role: string(t.Role), Content: sb.String()})
	}
	return msgs
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return "request failed"
	}

	var wire struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &wire) == nil && wire.Error != "" {
		return wire.Error
	}
	return string(bytes.TrimSpace(data))
}
