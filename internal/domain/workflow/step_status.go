package workflow

// StepStatus represents the state of a single step instance
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepApproved   StepStatus = "approved"
	StepRejected   StepStatus = "rejected"
	StepSkipped    StepStatus = "skipped"
)

var validStepStatuses = map[StepStatus]bool{
	StepPending:    true,
	StepInProgress: true,
	StepApproved:   true,
	StepRejected:   true,
	StepSkipped:    true,
}

var terminalStepStatuses = map[StepStatus]bool{
	StepApproved: true,
	StepRejected: true,
	StepSkipped:  true,
}

// IsTerminal returns true once a step has been decided; decided steps never reopen.
func (s StepStatus) IsTerminal() bool {
	return terminalStepStatuses[s]
}

// IsValid returns true if the status is a valid step status
func (s StepStatus) IsValid() bool {
	return validStepStatuses[s]
}

// String returns the string representation of the step status
func (s StepStatus) String() string {
	return string(s)
}
