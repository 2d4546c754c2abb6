// Package editloc derives line ranges for pending edits from document
// snapshots, keeping editor overlays consistent with the approval outcome.
package editloc

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/scribe-ide/scribe/internal/logging"
	"github.com/scribe-ide/scribe/pkg/types"
)

// Locate finds the first occurrence of oldText as a contiguous substring of
// document and returns its 1-indexed line range. The second return is false
// when the edit no longer applies: the document has diverged (or oldText is
// empty, meaning a pure insertion with no range to mark).
//
// The result is a derived value. Callers recompute on every change to either
// the pending edit or the document; nothing here is cached.
func Locate(oldText, document string) (types.EditLocation, bool) {
	if oldText == "" {
		return types.EditLocation{}, false
	}

	idx := strings.Index(document, oldText)
	if idx < 0 {
		logNearestMatch(oldText, document)
		return types.EditLocation{}, false
	}

	startLine := strings.Count(document[:idx], "\n") + 1
	endLine := startLine + strings.Count(oldText, "\n")
	return types.EditLocation{StartLine: startLine, EndLine: endLine}, true
}

// LocateEdit is Locate applied to a PendingEdit.
func LocateEdit(edit types.PendingEdit, document string) (types.EditLocation, bool) {
	return Locate(edit.OldText, document)
}

// logNearestMatch records how close the best candidate block was, which makes
// "no longer applicable" reports debuggable without changing the outcome.
func logNearestMatch(oldText, document string) {
	match, score := findBestMatch(document, oldText)
	if match == "" {
		return
	}
	logging.Debug().
		Float64("similarity", score).
		Int("oldTextLen", len(oldText)).
		Msg("edit text not found; nearest candidate logged")
}

// findBestMatch finds the line block of document most similar to target.
func findBestMatch(document, target string) (string, float64) {
	lines := strings.Split(document, "\n")
	targetLines := strings.Split(target, "\n")

	window := len(targetLines)
	if window > len(lines) {
		return "", 0
	}

	bestMatch := ""
	bestScore := 0.0
	for i := 0; i <= len(lines)-window; i++ {
		block := strings.Join(lines[i:i+window], "\n")
		if score := similarity(block, target); score > bestScore {
			bestScore = score
			bestMatch = block
		}
	}
	return bestMatch, bestScore
}

// similarity is normalized Levenshtein similarity in [0, 1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Length-ratio approximation for extreme inputs; exact distance on
	// megabyte blocks is not worth the latency for a log line.
	if len(a) > 10000 || len(b) > 10000 {
		maxLen := max(len(a), len(b))
		minLen := min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(dist)/float64(maxLen)
}
