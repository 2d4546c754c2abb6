package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribe-ide/scribe/internal/headless"
)

var (
	runPrompt       string
	runWorkDir      string
	runServerURL    string
	runSession      string
	runAutoApprove  bool
	runOutputFormat string
	runTimeout      string
	runStdin        bool
	runFiles        []string
	runQuiet        bool
	runVerbose      bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Submit a prompt and stream the agent's turn",
	Long: `Submit a single prompt to the Scribe backend and stream the resulting
turn to stdout: assistant text, tool invocations, plan updates, and approval
requests.

Approval requests are screened by the configured policy. Requests the policy
leaves open are rejected unless --approve-all is given, since there is nobody
to ask in a non-interactive run.

Examples:
  # Simple prompt
  scribe-agent run "Tighten the introduction of chapter 2"

  # Approve every file edit the agent proposes
  scribe-agent run --approve-all "Fix the citation formatting"

  # JSON result for scripting
  scribe-agent run -o json -t 5m "Check all cross-references"

  # Read prompt from stdin, attach context files
  echo "Summarize the feedback" | scribe-agent run --stdin -f review.txt

  # Stream JSONL events for programmatic consumption
  scribe-agent run -o jsonl "Draft the abstract" | jq -r '.type'`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Prompt/instruction to submit")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "Read prompt from stdin")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach as context")

	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "w", "", "Working directory")
	runCmd.Flags().StringVar(&runServerURL, "server", "", "Backend server URL (overrides config)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Backend session identifier")

	runCmd.Flags().BoolVar(&runAutoApprove, "approve-all", false, "Approve all open approval requests")

	runCmd.Flags().StringVarP(&runOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, only show result")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show all events (with jsonl format)")

	runCmd.Flags().StringVarP(&runTimeout, "timeout", "t", "10m", "Maximum execution time (e.g., 5m, 1h)")
}

func runRun(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runWorkDir)
	if err != nil {
		return err
	}

	timeout, err := time.ParseDuration(runTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var outputFormat headless.OutputFormat
	switch strings.ToLower(runOutputFormat) {
	case "text":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", runOutputFormat)
	}

	prompt := runPrompt
	if prompt == "" && len(args) > 0 {
		prompt = strings.Join(args, " ")
	}
	if prompt == "" && !runStdin {
		return fmt.Errorf("prompt required. Provide via argument, --prompt flag, or --stdin")
	}

	cfg := &headless.Config{
		Prompt:       prompt,
		WorkDir:      workDir,
		ServerURL:    runServerURL,
		Session:      runSession,
		AutoApprove:  runAutoApprove,
		OutputFormat: outputFormat,
		Timeout:      timeout,
		ReadStdin:    runStdin,
		Files:        runFiles,
		Quiet:        runQuiet,
		Verbose:      runVerbose,
	}

	runner := headless.NewRunner(cfg)
	result, err := runner.Run(cmd.Context(), os.Stdout)

	if result != nil {
		os.Exit(int(result.ExitCode))
	}
	return err
}
