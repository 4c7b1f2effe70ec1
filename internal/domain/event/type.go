package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceStarted   Type = "instance.started"
	TypeInstanceCompleted Type = "instance.completed"
	TypeInstanceFailed    Type = "instance.failed"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeStepAssigned      Type = "step.assigned"
	TypeStepCompleted     Type = "step.completed"
	TypeStepSkipped       Type = "step.skipped"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceStarted,
		TypeInstanceCompleted,
		TypeInstanceFailed,
		TypeInstanceCancelled,
		TypeStepAssigned,
		TypeStepCompleted,
		TypeStepSkipped:
		return true
	default:
		return false
	}
}
