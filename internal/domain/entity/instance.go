package entity

import "time"

// WorkflowInstance is one running execution of a WorkflowDefinition against a
// specific document. At most one non-terminal instance exists per document.
// Mutated only by the instance engine.
type WorkflowInstance struct {
	ID            int64      `json:"id"`
	DocumentID    int64      `json:"document_id"`
	DefinitionID  int64      `json:"definition_id"`
	Status        string     `json:"status"`
	CurrentStepID *int64     `json:"current_step_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the instance can accept no further transitions.
func (i *WorkflowInstance) IsTerminal() bool {
	switch i.Status {
	case InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusFailed:
		return true
	}
	return false
}

// StepInstance is the runtime record of one assignee (or a shared assignee
// group) acting on one step within one instance. For requires_all_assignees
// steps one row exists per resolved assignee; otherwise a single shared row
// is created and the first responder completes it for everyone.
type StepInstance struct {
	ID               int64      `json:"id"`
	InstanceID       int64      `json:"instance_id"`
	StepDefinitionID int64      `json:"step_definition_id"`
	AssignedTo       *int64     `json:"assigned_to,omitempty"`
	Status           string     `json:"status"`
	Comments         string     `json:"comments,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether the step instance still accepts a decision.
func (s *StepInstance) IsOpen() bool {
	return s.Status == StepStatusPending || s.Status == StepStatusInProgress
}

// PendingStep is a step instance joined with the instance and document
// metadata needed to render an approval queue entry.
type PendingStep struct {
	StepInstance
	StepName       string `json:"step_name"`
	DefinitionName string `json:"definition_name"`
	DocumentID     int64  `json:"document_id"`
	DocumentTitle  string `json:"document_title"`
}
