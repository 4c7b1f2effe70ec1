package workflow

import "errors"

var (
	// ErrNotFound is returned when a definition, instance or step is absent
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a document already has an active workflow instance
	ErrConflict = errors.New("document already has an active workflow")

	// ErrInvalidState is returned when an action targets a terminal or mismatched entity
	ErrInvalidState = errors.New("entity is not in a valid state for this action")

	// ErrForbidden is returned when the acting user is not an authorized assignee
	ErrForbidden = errors.New("user is not assigned to this step")

	// ErrAlreadyCompleted is returned to the loser of a concurrent completion race;
	// the step was resolved by another assignee and the call is a benign no-op
	ErrAlreadyCompleted = errors.New("step has already been resolved")

	// ErrValidation is returned for malformed workflow definitions
	ErrValidation = errors.New("invalid workflow definition")

	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)
