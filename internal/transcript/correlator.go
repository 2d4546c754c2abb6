package transcript

import "github.com/scribe-ide/scribe/pkg/types"

// Correlate finds the index of the ToolPart that a result or approval event
// targets within a turn's parts.
//
// Precedence:
//
//  1. An explicit call identifier matches exactly on ToolCall.ID, regardless
//     of the call's current status.
//  2. Without an identifier, the earliest ToolPart (in emission order) whose
//     name equals toolName and whose status is running or waiting_approval is
//     the target. First-issued, first-resolved: the least surprising guess
//     when several same-named calls are in flight.
//
// Returns (-1, false) when neither rule matches; the caller drops the event
// rather than corrupting an unrelated call.
//
// Known precision limit: the fallback ignores call arguments, so two
// concurrently running calls that share a name but differ in arguments can be
// misattributed. FIFO-by-name is kept deliberately.
func Correlate(parts []types.Part, callID, toolName string) (int, bool) {
	if callID != "" {
		for i, part := range parts {
			tp, ok := part.(*types.ToolPart)
			if !ok {
				continue
			}
			if tp.Call.ID == callID {
				return i, true
			}
		}
		return -1, false
	}

	for i, part := range parts {
		tp, ok := part.(*types.ToolPart)
		if !ok {
			continue
		}
		if tp.Call.Name != toolName {
			continue
		}
		if tp.Call.Status == types.ToolRunning || tp.Call.Status == types.ToolWaitingApproval {
			return i, true
		}
	}
	return -1, false
}
