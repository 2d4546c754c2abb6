package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_ZeroValueAsksEverything(t *testing.T) {
	var p Policy

	assert.Equal(t, ActionAsk, p.Evaluate("write_file", map[string]any{"target_path": "main.tex"}))
	assert.Equal(t, ActionAsk, p.Evaluate("run_command", map[string]any{"command": "ls"}))
	assert.Equal(t, ActionAsk, p.Evaluate("search", nil))
}

func TestPolicy_ToolRule(t *testing.T) {
	p := Policy{Tools: map[string]Action{"search": ActionAllow, "delete_file": ActionDeny}}

	assert.Equal(t, ActionAllow, p.Evaluate("search", nil))
	assert.Equal(t, ActionDeny, p.Evaluate("delete_file", nil))
	assert.Equal(t, ActionAsk, p.Evaluate("compile", nil))
}

func TestPolicy_EditPathGlobs(t *testing.T) {
	p := Policy{
		EditPaths: map[string]Action{
			"chapters/**":   ActionAllow,
			"**/*.bib":      ActionAllow,
			"main.tex":      ActionDeny,
			"generated/**":  ActionDeny,
		},
	}

	assert.Equal(t, ActionAllow, p.Evaluate("write_file", map[string]any{"target_path": "chapters/ch1/intro.tex"}))
	assert.Equal(t, ActionAllow, p.Evaluate("edit_file", map[string]any{"file_path": "refs/library.bib"}))
	assert.Equal(t, ActionDeny, p.Evaluate("write_file", map[string]any{"target_path": "main.tex"}))
	assert.Equal(t, ActionAsk, p.Evaluate("write_file", map[string]any{"target_path": "appendix.tex"}))
}

func TestPolicy_DenyGlobWinsOverAllow(t *testing.T) {
	p := Policy{
		EditPaths: map[string]Action{
			"**":          ActionAllow,
			"secrets/**":  ActionDeny,
		},
	}

	assert.Equal(t, ActionDeny, p.Evaluate("write_file", map[string]any{"target_path": "secrets/keys.tex"}))
	assert.Equal(t, ActionAllow, p.Evaluate("write_file", map[string]any{"target_path": "notes.tex"}))
}

func TestPolicy_CommandRules(t *testing.T) {
	p := Policy{
		Commands: map[string]Action{
			"latexmk *":    ActionAllow,
			"git status":   ActionAllow,
			"git push *":   ActionDeny,
			"rm *":         ActionDeny,
		},
	}

	assert.Equal(t, ActionAllow, p.Evaluate("run_command", map[string]any{"command": "latexmk -pdf main.tex"}))
	assert.Equal(t, ActionDeny, p.Evaluate("run_command", map[string]any{"command": "rm -rf build"}))
	assert.Equal(t, ActionAsk, p.Evaluate("run_command", map[string]any{"command": "biber main"}))

	// Every command in a pipeline must be allowed.
	assert.Equal(t, ActionAsk, p.Evaluate("bash", map[string]any{"command": "latexmk -pdf main.tex && biber main"}))
	// A single denied command rejects the whole invocation.
	assert.Equal(t, ActionDeny, p.Evaluate("bash", map[string]any{"command": "latexmk -pdf main.tex && rm -rf build"}))
}

func TestPolicy_UnparseableCommandAsks(t *testing.T) {
	p := Policy{Commands: map[string]Action{"*": ActionAllow}}

	assert.Equal(t, ActionAsk, p.Evaluate("run_command", map[string]any{"command": "if then fi (("}))
}

func TestPolicy_PathRuleBeatsToolRule(t *testing.T) {
	p := Policy{
		Tools:     map[string]Action{"write_file": ActionAllow},
		EditPaths: map[string]Action{"main.tex": ActionDeny},
	}

	assert.Equal(t, ActionDeny, p.Evaluate("write_file", map[string]any{"target_path": "main.tex"}))
	assert.Equal(t, ActionAllow, p.Evaluate("write_file", map[string]any{"target_path": "other.tex"}))
}
