package editloc

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/scribe-ide/scribe/pkg/types"
)

// Preview renders a pending edit as a unified diff for the approval UI,
// plus added and deleted line counts.
func Preview(edit types.PendingEdit) (string, int, int) {
	if edit.OldText == edit.NewText {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(edit.OldText, edit.NewText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	additions, deletions := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(edit.OldText, diffs)
	diffText := dmp.PatchToText(patches)
	if diffText == "" {
		return "", additions, deletions
	}

	var builder strings.Builder
	if edit.TargetPath != "" {
		builder.WriteString(fmt.Sprintf("--- %s\n", edit.TargetPath))
		builder.WriteString(fmt.Sprintf("+++ %s\n", edit.TargetPath))
	}
	builder.WriteString(diffText)

	return builder.String(), additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
