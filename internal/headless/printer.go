package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/scribe-ide/scribe/internal/event"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Printer renders bus events in the selected output format and accumulates
// the final Result.
type Printer struct {
	mu          sync.Mutex
	writer      io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	unsubscribe func()
	startTime   time.Time
	result      *Result
	toolCalls   []ToolCallSummary
}

// NewPrinter creates a new event printer.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
	}
}

// Subscribe starts listening to events.
func (p *Printer) Subscribe() {
	p.unsubscribe = event.SubscribeAll(p.handleEvent)
}

// Unsubscribe stops listening to events.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// SetSessionID sets the session ID for the result.
func (p *Printer) SetSessionID(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.SessionID = sessionID
}

// GetResult returns the current result.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	p.result.ToolCalls = p.toolCalls
	return p.result
}

// SetResult updates the result with final values.
func (p *Printer) SetResult(status string, exitCode ExitCode, finalMessage string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = exitCode
	p.result.FinalMessage = finalMessage
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// PrintFinalResult prints the final JSON result (for json format).
func (p *Printer) PrintFinalResult() {
	if p.format != OutputJSON {
		return
	}

	result := p.GetResult()
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// handleEvent processes incoming events and outputs them per format.
func (p *Printer) handleEvent(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		p.handleTextEvent(e)
	case OutputJSON:
		// JSON format only outputs the final result, but we still track.
		p.trackEvent(e)
	case OutputJSONL:
		p.handleJSONLEvent(e)
	}
}

// handleTextEvent outputs events in human-readable text format.
func (p *Printer) handleTextEvent(e event.Event) {
	p.trackEvent(e)

	if p.quiet {
		// In quiet mode, only stream assistant text.
		if e.Type == event.PartUpdated {
			if data, ok := e.Data.(event.PartUpdatedData); ok && data.Delta != "" {
				fmt.Fprint(p.writer, data.Delta)
			}
		}
		return
	}

	switch e.Type {
	case event.TurnStarted:
		if p.verbose {
			if data, ok := e.Data.(event.TurnStartedData); ok && data.Turn != nil {
				fmt.Fprintf(p.writer, "[turn:%s] Started\n", truncateID(data.Turn.ID))
			}
		}

	case event.TurnUpdated:
		if data, ok := e.Data.(event.TurnUpdatedData); ok && data.Turn != nil && data.Turn.State.Terminal() {
			fmt.Fprintf(p.writer, "\n[done] Turn %s in %s\n",
				data.Turn.State, formatDuration(time.Since(p.startTime)))
		}

	case event.TurnQueued:
		if data, ok := e.Data.(event.TurnQueuedData); ok {
			fmt.Fprintf(p.writer, "[queued] %s\n", data.Text)
		}

	case event.PartUpdated:
		if data, ok := e.Data.(event.PartUpdatedData); ok {
			switch part := data.Part.(type) {
			case *types.TextPart:
				if data.Delta != "" {
					fmt.Fprint(p.writer, data.Delta)
				}
			case *types.ToolPart:
				p.printToolPart(part)
			}
		}

	case event.PlanUpdated:
		if data, ok := e.Data.(event.PlanUpdatedData); ok && data.Plan != nil {
			p.printPlan(data.Plan)
		}

	case event.ApprovalRequired:
		if data, ok := e.Data.(event.ApprovalRequiredData); ok {
			fmt.Fprintf(p.writer, "\n[approval:%s] %s requires sign-off\n", data.RequestID, data.ToolName)
			if data.Edit != nil {
				fmt.Fprintf(p.writer, "  target: %s\n", data.Edit.TargetPath)
			}
		}

	case event.ApprovalResolved:
		if data, ok := e.Data.(event.ApprovalResolvedData); ok {
			fmt.Fprintf(p.writer, "[approval:%s] %s\n", data.RequestID, data.Decision)
		}

	case event.TurnError:
		if data, ok := e.Data.(event.TurnErrorData); ok {
			fmt.Fprintf(p.writer, "\n[error] %s\n", data.Message)
		}
	}
}

// printToolPart outputs tool information in text format.
func (p *Printer) printToolPart(part *types.ToolPart) {
	switch part.Call.Status {
	case types.ToolRunning:
		info := formatToolInfo(part.Call)
		if info != "" {
			fmt.Fprintf(p.writer, "\n[tool:%s] %s\n", part.Call.Name, info)
		} else {
			fmt.Fprintf(p.writer, "\n[tool:%s] Running\n", part.Call.Name)
		}
	case types.ToolWaitingApproval:
		fmt.Fprintf(p.writer, "[tool:%s] Waiting for approval\n", part.Call.Name)
	case types.ToolSuccess:
		if p.verbose {
			fmt.Fprintf(p.writer, "[tool:%s] Done\n", part.Call.Name)
		}
	case types.ToolError:
		fmt.Fprintf(p.writer, "[tool:%s] Error: %s\n", part.Call.Name, truncateOutput(part.Call.Result, 200))
	}
}

func (p *Printer) printPlan(plan *types.Plan) {
	fmt.Fprintf(p.writer, "\n[plan] %s\n", plan.Goal)
	for _, step := range plan.Steps {
		fmt.Fprintf(p.writer, "  %d. [%s] %s\n", step.Number, step.Status, step.Title)
	}
}

// handleJSONLEvent outputs events in JSONL format.
func (p *Printer) handleJSONLEvent(e event.Event) {
	p.trackEvent(e)

	if !p.verbose && !isImportantEvent(e.Type) {
		return
	}

	data, err := json.Marshal(NewEvent(string(e.Type), e.Data))
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// trackEvent accumulates events into the final result.
func (p *Printer) trackEvent(e event.Event) {
	switch e.Type {
	case event.PartUpdated:
		if data, ok := e.Data.(event.PartUpdatedData); ok {
			switch part := data.Part.(type) {
			case *types.TextPart:
				p.result.FinalMessage = part.Content
			case *types.ToolPart:
				p.trackToolCall(part)
			}
		}

	case event.TurnUpdated:
		if data, ok := e.Data.(event.TurnUpdatedData); ok && data.Turn != nil && data.Turn.State.Terminal() {
			p.result.Status = string(data.Turn.State)
		}
	}
}

// trackToolCall records terminal tool calls for the result.
func (p *Printer) trackToolCall(part *types.ToolPart) {
	if !part.Call.Status.Terminal() {
		return
	}
	p.toolCalls = append(p.toolCalls, ToolCallSummary{
		Tool:   part.Call.Name,
		Status: string(part.Call.Status),
		Result: truncateOutput(part.Call.Result, 500),
	})
}

// Helper functions

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatToolInfo(call types.ToolCall) string {
	if call.Args == nil {
		return ""
	}

	switch call.Name {
	case "write_file", "edit_file", "apply_edit", "replace_in_file":
		for _, key := range []string{"target_path", "file_path", "path"} {
			if path, ok := call.Args[key].(string); ok {
				return fmt.Sprintf("Editing %s", path)
			}
		}
	case "run_command", "bash":
		if cmd, ok := call.Args["command"].(string); ok {
			cmd = strings.Split(cmd, "\n")[0]
			if len(cmd) > 60 {
				cmd = cmd[:60] + "..."
			}
			return fmt.Sprintf("$ %s", cmd)
		}
	case "search":
		if query, ok := call.Args["query"].(string); ok {
			return fmt.Sprintf("Searching: %s", query)
		}
	}

	return ""
}

func isImportantEvent(eventType event.EventType) bool {
	switch eventType {
	case event.TurnStarted,
		event.TurnUpdated,
		event.TurnError,
		event.PartUpdated,
		event.PlanUpdated,
		event.ApprovalRequired,
		event.ApprovalResolved:
		return true
	default:
		return false
	}
}
