// Package testutil provides a scripted fake agent backend for transport and
// end-to-end tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SubmitRecord is one captured turn submission.
type SubmitRecord struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	History   []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

// TurnScript describes the backend's response to one turn submission.
type TurnScript struct {
	// Frames are streamed in order, one per line.
	Frames []string
	// WaitForResolution, when set, blocks the stream after Frames until the
	// named approval request has been resolved, then streams FinalFrames.
	WaitForResolution string
	FinalFrames       []string
	// Status, when non-zero, fails the submission with that code instead of
	// streaming.
	Status int
	Error  string
}

// Backend is a fake agent backend. Turn responses are scripted FIFO; every
// command is recorded for assertions.
type Backend struct {
	Server *httptest.Server

	mu          sync.Mutex
	scripts     []TurnScript
	submits     []SubmitRecord
	aborts      []string
	resolutions map[string]string
	waiters     map[string][]chan struct{}
	healthy     bool
}

// NewBackend starts a fake backend. Callers must Close it.
func NewBackend() *Backend {
	b := &Backend{
		resolutions: make(map[string]string),
		waiters:     make(map[string][]chan struct{}),
		healthy:     true,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/v1/health", b.handleHealth)
	r.Post("/v1/turns", b.handleSubmit)
	r.Post("/v1/turns/abort", b.handleAbort)
	r.Post("/v1/approvals/{requestID}", b.handleResolve)

	b.Server = httptest.NewServer(r)
	return b
}

// URL returns the backend's base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close shuts the backend down.
func (b *Backend) Close() {
	b.Server.Close()
}

// ScriptTurn queues the response for the next unscripted submission.
func (b *Backend) ScriptTurn(script TurnScript) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, script)
}

// SetHealthy controls the health endpoint.
func (b *Backend) SetHealthy(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = healthy
}

// Submits returns the captured submissions.
func (b *Backend) Submits() []SubmitRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SubmitRecord(nil), b.submits...)
}

// Aborts returns the session ids aborted so far.
func (b *Backend) Aborts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.aborts...)
}

// Resolution returns the recorded decision for an approval request.
func (b *Backend) Resolution(requestID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.resolutions[requestID]
	return d, ok
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	healthy := b.healthy
	b.mu.Unlock()

	if !healthy {
		http.Error(w, `{"error":"starting up"}`, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var record SubmitRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.submits = append(b.submits, record)
	var script TurnScript
	if len(b.scripts) > 0 {
		script = b.scripts[0]
		b.scripts = b.scripts[1:]
	}
	b.mu.Unlock()

	if script.Status != 0 {
		msg := script.Error
		if msg == "" {
			msg = "scripted failure"
		}
		http.Error(w, `{"error":"`+msg+`"}`, script.Status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	streamFrames(w, flusher, script.Frames)

	if script.WaitForResolution != "" {
		select {
		case <-b.resolutionWaiter(script.WaitForResolution):
		case <-r.Context().Done():
			return
		}
		streamFrames(w, flusher, script.FinalFrames)
	}
}

func streamFrames(w http.ResponseWriter, flusher http.Flusher, frames []string) {
	for _, frame := range frames {
		_, _ = w.Write([]byte(frame + "\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// resolutionWaiter returns a channel closed when the request is resolved,
// immediately if it already was.
func (b *Backend) resolutionWaiter(requestID string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{})
	if _, done := b.resolutions[requestID]; done {
		close(ch)
		return ch
	}
	b.waiters[requestID] = append(b.waiters[requestID], ch)
	return ch
}

func (b *Backend) handleAbort(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.aborts = append(b.aborts, payload.SessionID)
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleResolve(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var payload struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	if payload.Decision != "approve" && payload.Decision != "reject" {
		http.Error(w, `{"error":"unknown decision"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.resolutions[requestID] = payload.Decision
	for _, ch := range b.waiters[requestID] {
		close(ch)
	}
	delete(b.waiters, requestID)
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}
