package workflow

import (
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// BuildInstanceStateMachine creates a state machine configured for the
// document workflow instance lifecycle. The engine fires triggers through it
// before persisting, so an illegal transition (for example cancelling a
// completed instance) is rejected up front.
func BuildInstanceStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// pending: instance created but first step not yet activated. COMPLETE is
	// reachable directly when every step auto-skips during activation.
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerStart, domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// in_progress: assignees are acting on the current step. ADVANCE loops
	// back into in_progress as the current step moves forward.
	builder.Configure(domainwf.StateInProgress).
		Permit(domainwf.TriggerAdvance, domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerReject, domainwf.StateFailed).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// completed, failed and cancelled are terminal - no outgoing transitions

	return builder.Build(initialState)
}
