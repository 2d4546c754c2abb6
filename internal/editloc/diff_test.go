package editloc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scribe-ide/scribe/pkg/types"
)

func TestPreview_SimpleReplacement(t *testing.T) {
	edit := types.PendingEdit{
		TargetPath: "chapters/intro.tex",
		OldText:    "The rain in Spain\nstays mainly in the plain.\n",
		NewText:    "The rain in Spain\nfalls mainly on the plain.\n",
	}

	diff, additions, deletions := Preview(edit)

	assert.Equal(t, 1, additions)
	assert.Equal(t, 1, deletions)
	assert.True(t, strings.HasPrefix(diff, "--- chapters/intro.tex\n+++ chapters/intro.tex\n"))
	assert.Contains(t, diff, "stays mainly in the plain.")
	assert.Contains(t, diff, "falls mainly on the plain.")
}

func TestPreview_PureInsertion(t *testing.T) {
	edit := types.PendingEdit{
		TargetPath: "main.tex",
		OldText:    "\\begin{document}\n",
		NewText:    "\\begin{document}\n\\maketitle\n",
	}

	_, additions, deletions := Preview(edit)
	assert.Equal(t, 1, additions)
	assert.Equal(t, 0, deletions)
}

func TestPreview_NoChange(t *testing.T) {
	edit := types.PendingEdit{OldText: "same", NewText: "same"}

	diff, additions, deletions := Preview(edit)
	assert.Empty(t, diff)
	assert.Zero(t, additions)
	assert.Zero(t, deletions)
}

func TestPreview_NoPathOmitsHeader(t *testing.T) {
	edit := types.PendingEdit{OldText: "a\n", NewText: "b\n"}

	diff, _, _ := Preview(edit)
	assert.False(t, strings.HasPrefix(diff, "---"))
	assert.NotEmpty(t, diff)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 1, countLines("one\n"))
	assert.Equal(t, 2, countLines("one\ntwo"))
	assert.Equal(t, 2, countLines("one\ntwo\n"))
}
