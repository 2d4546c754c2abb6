package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShellCommand_Simple(t *testing.T) {
	commands, err := ParseShellCommand("latexmk -pdf main.tex")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, "latexmk", commands[0].Name)
	assert.Equal(t, []string{"-pdf", "main.tex"}, commands[0].Args)
	assert.Equal(t, "main.tex", commands[0].Subcommand)
}

func TestParseShellCommand_Subcommand(t *testing.T) {
	commands, err := ParseShellCommand("git commit -m 'update chapter'")
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, "git", commands[0].Name)
	assert.Equal(t, "commit", commands[0].Subcommand)
}

func TestParseShellCommand_PipelineAndList(t *testing.T) {
	commands, err := ParseShellCommand("grep cite main.tex | wc -l && echo done")
	require.NoError(t, err)
	require.Len(t, commands, 3)

	names := []string{commands[0].Name, commands[1].Name, commands[2].Name}
	assert.Equal(t, []string{"grep", "wc", "echo"}, names)
}

func TestParseShellCommand_QuotedAndExpansions(t *testing.T) {
	commands, err := ParseShellCommand(`cp "my file.tex" $HOME/backup`)
	require.NoError(t, err)
	require.Len(t, commands, 1)

	assert.Equal(t, []string{"my file.tex", "$HOME/backup"}, commands[0].Args)
}

func TestParseShellCommand_Invalid(t *testing.T) {
	_, err := ParseShellCommand("for (( ;; do")
	assert.Error(t, err)
}

func TestMatchCommandAction_Precedence(t *testing.T) {
	rules := map[string]Action{
		"git commit *": ActionAllow,
		"git *":        ActionAsk,
		"rm":           ActionDeny,
		"*":            ActionAsk,
	}

	commit, _ := ParseShellCommand("git commit -m x")
	assert.Equal(t, ActionAllow, MatchCommandAction(commit[0], rules))

	push, _ := ParseShellCommand("git push origin main")
	assert.Equal(t, ActionAsk, MatchCommandAction(push[0], rules))

	rm, _ := ParseShellCommand("rm")
	assert.Equal(t, ActionDeny, MatchCommandAction(rm[0], rules))

	other, _ := ParseShellCommand("whoami")
	assert.Equal(t, ActionAsk, MatchCommandAction(other[0], rules))
}

func TestMatchCommandAction_NoRulesDefaultsToAsk(t *testing.T) {
	cmd, _ := ParseShellCommand("ls -la")
	assert.Equal(t, ActionAsk, MatchCommandAction(cmd[0], nil))
}

func TestBuildCommandPattern(t *testing.T) {
	commit, _ := ParseShellCommand("git commit -m x")
	assert.Equal(t, "git commit *", BuildCommandPattern(commit[0]))

	ls, _ := ParseShellCommand("ls -la")
	assert.Equal(t, "ls *", BuildCommandPattern(ls[0]))
}
