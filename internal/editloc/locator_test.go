package editloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribe-ide/scribe/pkg/types"
)

const sampleDoc = `\documentclass{article}
\begin{document}
\section{Introduction}
The rain in Spain stays
mainly in the plain.
\end{document}
`

func TestLocate_SingleLine(t *testing.T) {
	loc, ok := Locate(`\section{Introduction}`, sampleDoc)
	require.True(t, ok)
	assert.Equal(t, 3, loc.StartLine)
	assert.Equal(t, 3, loc.EndLine)
}

func TestLocate_MultiLine(t *testing.T) {
	loc, ok := Locate("The rain in Spain stays\nmainly in the plain.", sampleDoc)
	require.True(t, ok)
	assert.Equal(t, 4, loc.StartLine)
	assert.Equal(t, 5, loc.EndLine)
}

func TestLocate_FirstOccurrenceWins(t *testing.T) {
	doc := "alpha\nbeta\nalpha\n"
	loc, ok := Locate("alpha", doc)
	require.True(t, ok)
	assert.Equal(t, 1, loc.StartLine)
	assert.Equal(t, 1, loc.EndLine)
}

func TestLocate_NotFound(t *testing.T) {
	_, ok := Locate("The rain in France", sampleDoc)
	assert.False(t, ok)
}

func TestLocate_EmptyOldTextIsAbsent(t *testing.T) {
	_, ok := Locate("", sampleDoc)
	assert.False(t, ok)
}

func TestLocate_MatchAtDocumentStart(t *testing.T) {
	loc, ok := Locate(`\documentclass{article}`, sampleDoc)
	require.True(t, ok)
	assert.Equal(t, 1, loc.StartLine)
	assert.Equal(t, 1, loc.EndLine)
}

func TestLocate_TrailingNewlineExtendsRange(t *testing.T) {
	loc, ok := Locate("\\section{Introduction}\n", sampleDoc)
	require.True(t, ok)
	assert.Equal(t, 3, loc.StartLine)
	assert.Equal(t, 4, loc.EndLine)
}

func TestLocate_RecomputesAfterDocumentChange(t *testing.T) {
	edit := types.PendingEdit{
		RequestID: "req_1",
		OldText:   "mainly in the plain.",
	}

	before, ok := LocateEdit(edit, sampleDoc)
	require.True(t, ok)
	assert.Equal(t, 5, before.StartLine)

	// Two lines inserted above the match shift the range down.
	shifted := "% draft\n% revised\n" + sampleDoc
	after, ok := LocateEdit(edit, shifted)
	require.True(t, ok)
	assert.Equal(t, 7, after.StartLine)
	assert.Equal(t, 7, after.EndLine)

	// The match disappearing makes the edit inapplicable, not an error.
	_, ok = LocateEdit(edit, "completely different text\n")
	assert.False(t, ok)
}

func TestFindBestMatch(t *testing.T) {
	doc := "one\ntwo\nthree\nfour\n"
	match, score := findBestMatch(doc, "thre")
	assert.Equal(t, "three", match)
	assert.Greater(t, score, 0.7)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("", ""))
	assert.Equal(t, 0.0, similarity("abc", ""))
	assert.Equal(t, 1.0, similarity("same", "same"))
	assert.InDelta(t, 0.75, similarity("abcd", "abce"), 0.001)
}
