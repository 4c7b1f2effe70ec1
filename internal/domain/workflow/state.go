package workflow

// State represents a workflow instance state
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

var validStates = map[State]bool{
	StatePending:    true,
	StateInProgress: true,
	StateCompleted:  true,
	StateCancelled:  true,
	StateFailed:     true,
}

var terminalStates = map[State]bool{
	StateCompleted: true,
	StateCancelled: true,
	StateFailed:    true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid instance state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
