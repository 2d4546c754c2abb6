package approval

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/scribe-ide/scribe/internal/logging"
)

// Action is the policy verdict for an approval request.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Policy decides whether an approval request is auto-approved, auto-rejected,
// or surfaced to the human. The zero value asks for everything.
type Policy struct {
	// Tools maps a tool name to an action.
	Tools map[string]Action `json:"tools,omitempty"`

	// EditPaths maps doublestar globs to actions for file-mutation tools,
	// matched against the target path. A deny glob wins over an allow glob.
	EditPaths map[string]Action `json:"editPaths,omitempty"`

	// Commands maps command patterns ("git commit *", "latexmk *", "*") to
	// actions for shell tools.
	Commands map[string]Action `json:"commands,omitempty"`
}

// shellTools are the backend tools whose arguments carry a shell command.
var shellTools = map[string]bool{
	"run_command": true,
	"bash":        true,
}

// Evaluate returns the action for a tool invocation. Path and command rules
// are consulted before the per-tool rule so narrow grants don't open the
// whole tool.
func (p Policy) Evaluate(toolName string, args map[string]any) Action {
	if fileMutationTools[toolName] {
		if action, ok := p.evaluatePath(stringArg(args, "target_path", "file_path", "path")); ok {
			return action
		}
	}

	if shellTools[toolName] {
		if command := stringArg(args, "command", "cmd"); command != "" {
			if action, ok := p.evaluateCommand(command); ok {
				return action
			}
		}
	}

	if action, ok := p.Tools[toolName]; ok {
		return action
	}
	return ActionAsk
}

func (p Policy) evaluatePath(path string) (Action, bool) {
	if path == "" || len(p.EditPaths) == 0 {
		return ActionAsk, false
	}

	verdict := Action("")
	for pattern, action := range p.EditPaths {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			logging.Warn().Str("pattern", pattern).Err(err).Msg("bad edit path pattern")
			continue
		}
		if !matched {
			continue
		}
		if action == ActionDeny {
			return ActionDeny, true
		}
		verdict = action
	}

	if verdict == "" {
		return ActionAsk, false
	}
	return verdict, true
}

// evaluateCommand parses the shell command and requires every simple command
// in it to be allowed before the whole invocation is. Any deny rejects it.
func (p Policy) evaluateCommand(command string) (Action, bool) {
	commands, err := ParseShellCommand(command)
	if err != nil || len(commands) == 0 {
		// Unparseable commands always go to the human.
		return ActionAsk, true
	}

	allAllowed := true
	for _, cmd := range commands {
		switch MatchCommandAction(cmd, p.Commands) {
		case ActionDeny:
			return ActionDeny, true
		case ActionAsk:
			allAllowed = false
		}
	}
	if allAllowed {
		return ActionAllow, true
	}
	return ActionAsk, true
}
