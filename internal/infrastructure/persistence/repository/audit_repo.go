package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	"github.com/smartdocs/smart-docs/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new audit entry
func (r *AuditRepository) Create(ctx context.Context, e *entity.AuditEntry) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	result, err := ex.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, instance_id, document_id, event_type, actor_user_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		e.EventID,
		e.InstanceID,
		e.DocumentID,
		e.EventType,
		e.ActorUserID,
		e.Detail,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry", zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	e.ID = id
	return nil
}

// ListByInstanceID retrieves an instance's audit trail, oldest first
func (r *AuditRepository) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.AuditEntry, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT id, event_id, instance_id, document_id, event_type, actor_user_id, detail, created_at
		FROM audit_log
		WHERE instance_id = ?
		ORDER BY id ASC
	`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.InstanceID,
			&e.DocumentID,
			&e.EventType,
			&e.ActorUserID,
			&e.Detail,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
