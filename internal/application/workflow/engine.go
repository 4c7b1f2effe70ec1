package workflow

import (
	"context"

	"github.com/smartdocs/smart-docs/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Engine drives workflow instances: it creates them for documents, applies
// assignee decisions, advances the current step, and keeps the owning
// document's status in sync with the instance.
type Engine interface {
	// AssignWorkflow resolves a definition for the document (manual id wins,
	// otherwise classification matching) and starts an instance. A nil
	// instance with nil error means no definition matched; the document
	// proceeds without a workflow.
	AssignWorkflow(ctx context.Context, documentID int64, requestedDefinitionID *int64) (*entity.WorkflowInstance, error)

	// StartInstance creates and starts an instance of the given definition
	// for the document. Fails with ErrConflict if the document already has a
	// non-terminal instance.
	StartInstance(ctx context.Context, documentID int64, definition *entity.WorkflowDefinition) (*entity.WorkflowInstance, error)

	// CompleteStep records an assignee decision on a step instance and
	// advances, fails or completes the instance accordingly.
	CompleteStep(ctx context.Context, instanceID, stepInstanceID, actingUserID int64, action, comments string) (*entity.WorkflowInstance, error)

	// CancelInstance administratively terminates an instance, skipping all
	// open step instances.
	CancelInstance(ctx context.Context, instanceID int64, reason string) (*entity.WorkflowInstance, error)

	// GetDocumentWorkflow returns the document's most recent instance and its
	// step instances, or nil when the document never had a workflow.
	GetDocumentWorkflow(ctx context.Context, documentID int64) (*entity.WorkflowInstance, []*entity.StepInstance, error)

	// ListPendingSteps returns the open step instances actionable by the
	// user, oldest first.
	ListPendingSteps(ctx context.Context, userID int64) ([]*entity.PendingStep, error)

	// ListOverdueSteps returns open step instances past their due time,
	// consumed by the external reminder job.
	ListOverdueSteps(ctx context.Context) ([]*entity.StepInstance, error)
}
