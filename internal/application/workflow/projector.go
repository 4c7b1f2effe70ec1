package workflow

import (
	"context"
	"fmt"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
)

// ProjectDocumentStatus maps an instance status onto the coarser document
// lifecycle vocabulary. Failed and cancelled workflows both park the
// document on hold for human attention.
func ProjectDocumentStatus(instanceStatus string) string {
	switch instanceStatus {
	case entity.InstanceStatusCompleted:
		return entity.DocumentStatusCompleted
	case entity.InstanceStatusFailed, entity.InstanceStatusCancelled:
		return entity.DocumentStatusOnHold
	default:
		return entity.DocumentStatusProcessing
	}
}

// StatusProjector denormalizes an instance's status onto its document.
// Project must run inside the same transaction as the instance mutation so
// the two records can never be observed inconsistent.
type StatusProjector struct {
	documentRepo port.DocumentRepository
}

// NewStatusProjector creates a new StatusProjector
func NewStatusProjector(documentRepo port.DocumentRepository) *StatusProjector {
	return &StatusProjector{documentRepo: documentRepo}
}

// Project writes the document's workflow_status, mapped status and instance
// pointer. The instance table stays authoritative; the pointer is a cache.
func (p *StatusProjector) Project(ctx context.Context, instance *entity.WorkflowInstance) error {
	instanceID := instance.ID
	err := p.documentRepo.UpdateWorkflowProjection(
		ctx,
		instance.DocumentID,
		ProjectDocumentStatus(instance.Status),
		instance.Status,
		&instanceID,
	)
	if err != nil {
		return fmt.Errorf("project document status: %w", err)
	}
	return nil
}
