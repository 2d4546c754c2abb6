package types

// StepStatus is the lifecycle status of a plan step. Like tool statuses,
// transitions only move forward; completed, failed and skipped are terminal.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// Valid reports whether the status is one of the known values.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// CanTransition reports whether moving to next preserves monotonicity.
func (s StepStatus) CanTransition(next StepStatus) bool {
	if s.Terminal() {
		return false
	}
	if s == StepInProgress && next == StepPending {
		return false
	}
	return true
}

// Step is one entry of a plan.
type Step struct {
	Number int        `json:"number"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
}

// Plan is an ordered task list snapshot emitted by the agent.
type Plan struct {
	ID    string `json:"planID"`
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// Step returns the step with the given number, or nil.
func (p *Plan) Step(number int) *Step {
	for i := range p.Steps {
		if p.Steps[i].Number == number {
			return &p.Steps[i]
		}
	}
	return nil
}
