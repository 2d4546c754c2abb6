package types

// Decision is the human's answer to an approval request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether the decision is one of the known values.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// PendingEdit is a proposed text replacement awaiting approval. It exists
// from the approval_required event until a decision is recorded, after which
// it is discarded. It is never retained in the transcript.
type PendingEdit struct {
	RequestID  string `json:"requestID"`
	TargetPath string `json:"targetPath"`
	OldText    string `json:"oldText"`
	NewText    string `json:"newText"`
}

// EditLocation is a 1-indexed line range in a document. It is a derived
// value: recomputed from a PendingEdit and a document snapshot, never stored
// or diffed.
type EditLocation struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}
