// Package notification turns workflow engine events into audit log entries
// and per-user notification records. Handlers are best-effort: failures are
// logged and never propagate back into the workflow mutation that emitted
// the event.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdocs/smart-docs/internal/application/dispatcher"
	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	"github.com/smartdocs/smart-docs/internal/domain/event"
)

// Emitter subscribes to engine events and persists their audit and
// notification projections.
type Emitter struct {
	notificationRepo port.NotificationRepository
	auditRepo        port.AuditRepository
	documentRepo     port.DocumentRepository
	logger           *zap.Logger
}

// NewEmitter creates a new Emitter
func NewEmitter(
	notificationRepo port.NotificationRepository,
	auditRepo port.AuditRepository,
	documentRepo port.DocumentRepository,
	logger *zap.Logger,
) *Emitter {
	return &Emitter{
		notificationRepo: notificationRepo,
		auditRepo:        auditRepo,
		documentRepo:     documentRepo,
		logger:           logger,
	}
}

// Register subscribes the emitter's handlers on the dispatcher
func (e *Emitter) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeInstanceStarted,
		event.TypeInstanceCompleted,
		event.TypeInstanceFailed,
		event.TypeInstanceCancelled,
		event.TypeStepAssigned,
		event.TypeStepCompleted,
		event.TypeStepSkipped,
	} {
		d.SubscribeNamed(t, "audit-log", e.recordAudit)
	}

	d.SubscribeNamed(event.TypeStepAssigned, "assignee-notification", e.notifyAssignee)
	d.SubscribeNamed(event.TypeInstanceCompleted, "owner-notification", e.notifyOwner)
	d.SubscribeNamed(event.TypeInstanceFailed, "owner-notification", e.notifyOwner)
	d.SubscribeNamed(event.TypeInstanceCancelled, "owner-notification", e.notifyOwner)
}

// recordAudit writes one audit row per event
func (e *Emitter) recordAudit(ctx context.Context, evt *event.Event) error {
	detail, err := json.Marshal(evt.Payload)
	if err != nil {
		detail = []byte("{}")
	}

	entry := &entity.AuditEntry{
		EventID:    evt.ID,
		InstanceID: evt.InstanceID,
		DocumentID: evt.DocumentID,
		EventType:  evt.Type.String(),
		Detail:     string(detail),
	}
	if actor := evt.GetPayloadInt("actor_id"); actor != 0 {
		entry.ActorUserID = &actor
	}

	if err := e.auditRepo.Create(ctx, entry); err != nil {
		e.logger.Error("Failed to record audit entry",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
		return err
	}
	return nil
}

// notifyAssignee queues a notification for a newly assigned step
func (e *Emitter) notifyAssignee(ctx context.Context, evt *event.Event) error {
	assigneeID := evt.GetPayloadInt("assignee_id")
	if assigneeID == 0 {
		return nil
	}

	n := &entity.Notification{
		UserID:    assigneeID,
		EventType: evt.Type.String(),
		Subject:   fmt.Sprintf("Step %q awaits your decision", evt.GetPayloadString("step_name")),
		Body:      fmt.Sprintf("A document workflow step was assigned to you (instance %d).", evt.InstanceID),
		Status:    entity.NotificationStatusPending,
	}
	if err := e.notificationRepo.Create(ctx, n); err != nil {
		e.logger.Error("Failed to queue assignee notification",
			zap.Int64("user_id", assigneeID),
			zap.Error(err))
		return err
	}
	return nil
}

// notifyOwner queues a notification to the document owner on terminal
// instance transitions
func (e *Emitter) notifyOwner(ctx context.Context, evt *event.Event) error {
	doc, err := e.documentRepo.GetByID(ctx, evt.DocumentID)
	if err != nil {
		e.logger.Error("Failed to load document for owner notification",
			zap.Int64("document_id", evt.DocumentID),
			zap.Error(err))
		return err
	}
	if doc == nil {
		return nil
	}

	var subject string
	switch evt.Type {
	case event.TypeInstanceCompleted:
		subject = fmt.Sprintf("Workflow for %q completed", doc.Title)
	case event.TypeInstanceFailed:
		subject = fmt.Sprintf("Workflow for %q was rejected", doc.Title)
	case event.TypeInstanceCancelled:
		subject = fmt.Sprintf("Workflow for %q was cancelled", doc.Title)
	default:
		return nil
	}

	n := &entity.Notification{
		UserID:    doc.OwnerUserID,
		EventType: evt.Type.String(),
		Subject:   subject,
		Body:      fmt.Sprintf("Workflow instance %d reached a final state.", evt.InstanceID),
		Status:    entity.NotificationStatusPending,
	}
	if err := e.notificationRepo.Create(ctx, n); err != nil {
		e.logger.Error("Failed to queue owner notification",
			zap.Int64("user_id", doc.OwnerUserID),
			zap.Error(err))
		return err
	}
	return nil
}
