// Package headless runs a single prompt against the agent backend without a
// UI: submit, stream, resolve approvals by policy or flag, print the result.
package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/scribe-ide/scribe/internal/approval"
	"github.com/scribe-ide/scribe/internal/config"
	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/internal/transport"
	"github.com/scribe-ide/scribe/internal/turn"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Runner executes one prompt in headless mode.
type Runner struct {
	config    *Config
	appConfig *types.Config
	printer   *Printer

	client     *transport.Client
	controller *turn.Controller
}

// NewRunner creates a new headless runner.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg}
}

// Run submits the prompt, waits for the turn to go terminal, and returns the
// result.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)
	r.printer.Subscribe()
	defer r.printer.Unsubscribe()

	if err := r.initialize(ctx); err != nil {
		exitCode := ExitError
		var terr *transport.Error
		if errors.As(err, &terr) {
			exitCode = ExitTransportError
		}
		r.printer.SetResult("errored", exitCode, "", err)
		return r.printer.GetResult(), err
	}

	prompt, err := r.getPrompt()
	if err != nil {
		r.printer.SetResult("errored", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}
	if prompt == "" {
		err := errors.New("prompt is required")
		r.printer.SetResult("errored", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	// Terminal-state and approval notifications arrive over the bus.
	terminal := make(chan types.TurnState, 1)
	unsubTurn := event.Subscribe(event.TurnUpdated, func(e event.Event) {
		if data, ok := e.Data.(event.TurnUpdatedData); ok && data.Turn != nil && data.Turn.State.Terminal() {
			select {
			case terminal <- data.Turn.State:
			default:
			}
		}
	})
	defer unsubTurn()

	unsubApproval := event.Subscribe(event.ApprovalRequired, func(e event.Event) {
		data, ok := e.Data.(event.ApprovalRequiredData)
		if !ok {
			return
		}
		// Give the policy auto-resolution a chance to win first.
		go r.resolveOpenRequest(runCtx, data.RequestID)
	})
	defer unsubApproval()

	if err := r.controller.Submit(runCtx, prompt); err != nil {
		exitCode := ExitError
		var terr *transport.Error
		if errors.As(err, &terr) {
			exitCode = ExitTransportError
		}
		r.printer.SetResult("errored", exitCode, "", err)
		return r.printer.GetResult(), err
	}

	select {
	case state := <-terminal:
		return r.finalize(state)
	case <-runCtx.Done():
		_ = r.controller.Abort(context.Background())
		err := runCtx.Err()
		r.printer.SetResult("timeout", ExitTimeout, r.finalMessage(), err)
		r.printer.PrintFinalResult()
		return r.printer.GetResult(), err
	}
}

// initialize loads config and connects the transport.
func (r *Runner) initialize(ctx context.Context) error {
	appConfig, err := config.Load(r.config.WorkDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.appConfig = appConfig

	serverURL := r.config.ServerURL
	if serverURL == "" {
		serverURL = appConfig.ServerURL
	}
	if serverURL == "" {
		return errors.New("no server URL configured")
	}

	session := r.config.Session
	if session == "" {
		session = appConfig.Session
	}
	r.printer.SetSessionID(session)

	var clientOpts []transport.Option
	if appConfig.APIKey != "" {
		clientOpts = append(clientOpts, transport.WithAPIKey(appConfig.APIKey))
	}
	r.client = transport.New(serverURL, clientOpts...)

	if err := r.client.Connect(ctx); err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}

	policy := config.ApprovalPolicy(appConfig)
	opts := []turn.Option{turn.WithSessionID(session)}
	if appConfig.SteeringGraceMs > 0 {
		opts = append(opts, turn.WithGraceDelay(time.Duration(appConfig.SteeringGraceMs)*time.Millisecond))
	}
	r.controller = turn.New(r.client, policy, opts...)

	return nil
}

// resolveOpenRequest decides a request the policy left open. Headless mode
// has nobody to ask: approve everything with --approve-all, reject otherwise.
func (r *Runner) resolveOpenRequest(ctx context.Context, requestID string) {
	// Let the controller's policy auto-resolution win the race for requests
	// the policy already decided.
	time.Sleep(50 * time.Millisecond)

	gate := r.controller.Gate()
	if _, resolved := gate.Decision(requestID); resolved {
		return
	}

	decision := types.DecisionReject
	if r.config.AutoApprove {
		decision = types.DecisionApprove
	}
	if err := r.controller.ResolveApproval(ctx, requestID, decision); err != nil &&
		!errors.Is(err, approval.ErrUnknownRequest) {
		fmt.Fprintf(os.Stderr, "Warning: approval %s not resolved: %v\n", requestID, err)
	}
}

func (r *Runner) finalize(state types.TurnState) (*Result, error) {
	msg := r.finalMessage()

	switch state {
	case types.TurnCompleted:
		if !r.config.AutoApprove && r.anyRejectedTool() {
			r.printer.SetResult(string(state), ExitRejected, msg, nil)
		} else {
			r.printer.SetResult(string(state), ExitSuccess, msg, nil)
		}
	case types.TurnAborted:
		r.printer.SetResult(string(state), ExitError, msg, nil)
	default:
		r.printer.SetResult(string(state), ExitTransportError, msg, errors.New("turn errored"))
	}

	r.printer.PrintFinalResult()

	result := r.printer.GetResult()
	if result.ExitCode == ExitSuccess {
		return result, nil
	}
	return result, fmt.Errorf("turn finished with status %s", result.Status)
}

// finalMessage concatenates the text parts of the last agent turn.
func (r *Runner) finalMessage() string {
	turns := r.controller.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != types.RoleAgent {
			continue
		}
		var sb strings.Builder
		for _, part := range turns[i].Parts {
			if tp, ok := part.(*types.TextPart); ok {
				sb.WriteString(tp.Content)
			}
		}
		return sb.String()
	}
	return ""
}

func (r *Runner) anyRejectedTool() bool {
	for _, t := range r.controller.Turns() {
		for _, part := range t.Parts {
			if tp, ok := part.(*types.ToolPart); ok &&
				tp.Call.Status == types.ToolError && tp.Call.Result == "Rejected by user" {
				return true
			}
		}
	}
	return false
}

// getPrompt assembles the prompt from flags, stdin, and attached files.
func (r *Runner) getPrompt() (string, error) {
	var prompt string

	if r.config.ReadStdin {
		scanner := bufio.NewScanner(os.Stdin)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.Join(lines, "\n")
	}

	if r.config.Prompt != "" {
		if prompt != "" {
			prompt = r.config.Prompt + "\n\n" + prompt
		} else {
			prompt = r.config.Prompt
		}
	}

	if len(r.config.Files) > 0 {
		var fileContent strings.Builder
		for _, file := range r.config.Files {
			content, err := os.ReadFile(file)
			if err != nil {
				return "", fmt.Errorf("read file %s: %w", file, err)
			}
			fileContent.WriteString(fmt.Sprintf("\n\n--- File: %s ---\n%s", file, string(content)))
		}
		prompt += fileContent.String()
	}

	return strings.TrimSpace(prompt), nil
}
