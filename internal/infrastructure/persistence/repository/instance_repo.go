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

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, document_id, definition_id, status, current_step_id, started_at, completed_at, notes, created_at, updated_at`

func scanInstance(row interface{ Scan(...interface{}) error }) (*entity.WorkflowInstance, error) {
	var inst entity.WorkflowInstance
	var notes sql.NullString

	err := row.Scan(
		&inst.ID,
		&inst.DocumentID,
		&inst.DefinitionID,
		&inst.Status,
		&inst.CurrentStepID,
		&inst.StartedAt,
		&inst.CompletedAt,
		&notes,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		inst.Notes = notes.String
	}
	return &inst, nil
}

// Create creates a new workflow instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	result, err := ex.ExecContext(ctx, `
		INSERT INTO workflow_instances (document_id, definition_id, status, current_step_id, started_at, completed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		instance.DocumentID,
		instance.DefinitionID,
		instance.Status,
		instance.CurrentStepID,
		instance.StartedAt,
		instance.CompletedAt,
		instance.Notes,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

// GetByID retrieves a workflow instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	inst, err := scanInstance(ex.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// GetActiveByDocumentID retrieves the document's non-terminal instance, if any
func (r *InstanceRepository) GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	inst, err := scanInstance(ex.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE document_id = ? AND status IN (?, ?)
		ORDER BY id DESC
		LIMIT 1
	`, documentID, entity.InstanceStatusPending, entity.InstanceStatusInProgress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active instance", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get active instance: %w", err)
	}
	return inst, nil
}

// GetLatestByDocumentID retrieves the document's most recent instance
func (r *InstanceRepository) GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	inst, err := scanInstance(ex.QueryRowContext(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE document_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, documentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest instance", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest instance: %w", err)
	}
	return inst, nil
}

// Update persists the instance's mutable fields
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.WorkflowInstance) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = ?, current_step_id = ?, completed_at = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		instance.Status,
		instance.CurrentStepID,
		instance.CompletedAt,
		instance.Notes,
		instance.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
