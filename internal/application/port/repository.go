package port

import (
	"context"
	"time"

	"github.com/smartdocs/smart-docs/internal/domain/entity"
)

// DefinitionRepository defines persistence operations for WorkflowDefinition
// and its nested StepDefinitions/AssigneeRules.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	ListActiveByTrigger(ctx context.Context, triggerType string) ([]*entity.WorkflowDefinition, error)
	List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error)
	Update(ctx context.Context, def *entity.WorkflowDefinition) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	HasInstances(ctx context.Context, id int64) (bool, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)
	GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)
	GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error)
	Update(ctx context.Context, instance *entity.WorkflowInstance) error
}

// StepInstanceRepository defines persistence operations for StepInstance
type StepInstanceRepository interface {
	Create(ctx context.Context, step *entity.StepInstance) error
	GetByID(ctx context.Context, id int64) (*entity.StepInstance, error)
	ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StepInstance, error)
	ListOpenByStep(ctx context.Context, instanceID, stepDefinitionID int64) ([]*entity.StepInstance, error)
	Update(ctx context.Context, step *entity.StepInstance) error
	ListPendingForUser(ctx context.Context, userID int64) ([]*entity.PendingStep, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.StepInstance, error)
}

// DocumentRepository exposes the document fields this core owns: lifecycle
// status and the denormalized workflow projection.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id int64) (*entity.Document, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Document, error)
	UpdateWorkflowProjection(ctx context.Context, documentID int64, status string, workflowStatus string, instanceID *int64) error
}

// UserDirectory resolves assignee rules to concrete users. Resolution is
// re-evaluated fresh per instantiation, never cached.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
	ListByDepartment(ctx context.Context, department string) ([]*entity.User, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*entity.Notification, error)
}

// AuditRepository defines persistence operations for AuditEntry
type AuditRepository interface {
	Create(ctx context.Context, e *entity.AuditEntry) error
	ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error)
}

// TransactionManager executes a function within a database transaction.
// The transaction is carried in the context and picked up by repositories.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
