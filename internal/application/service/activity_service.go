package service

import (
	"context"
	"fmt"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
)

// ActivityService exposes the read side of the audit and notification
// projections written by the event emitter: the per-instance activity trail
// and a user's queued notifications.
type ActivityService interface {
	ListInstanceHistory(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error)
	ListUserNotifications(ctx context.Context, userID int64, limit int) ([]*entity.Notification, error)
}

type activityServiceImpl struct {
	auditRepo        port.AuditRepository
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewActivityService creates a new ActivityService
func NewActivityService(
	auditRepo port.AuditRepository,
	notificationRepo port.NotificationRepository,
	logger Logger,
) ActivityService {
	return &activityServiceImpl{
		auditRepo:        auditRepo,
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// ListInstanceHistory returns the audit trail for a workflow instance,
// oldest first. An instance with no recorded events yields an empty list.
func (s *activityServiceImpl) ListInstanceHistory(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error) {
	entries, err := s.auditRepo.ListByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list instance history: %w", err)
	}
	return entries, nil
}

// ListUserNotifications returns the user's most recent notifications.
func (s *activityServiceImpl) ListUserNotifications(ctx context.Context, userID int64, limit int) ([]*entity.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	notifications, err := s.notificationRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}
	return notifications, nil
}
