package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	"github.com/smartdocs/smart-docs/internal/infrastructure/persistence/sqlite"
)

// StepInstanceRepository implements port.StepInstanceRepository
type StepInstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepInstanceRepository creates a new step instance repository
func NewStepInstanceRepository(db *sql.DB, logger *zap.Logger) port.StepInstanceRepository {
	return &StepInstanceRepository{
		db:     db,
		logger: logger,
	}
}

const stepInstanceColumns = `id, instance_id, step_definition_id, assigned_to, status, comments, started_at, completed_at, due_at, created_at, updated_at`

func scanStepInstance(row interface{ Scan(...interface{}) error }) (*entity.StepInstance, error) {
	var step entity.StepInstance
	var comments sql.NullString

	err := row.Scan(
		&step.ID,
		&step.InstanceID,
		&step.StepDefinitionID,
		&step.AssignedTo,
		&step.Status,
		&comments,
		&step.StartedAt,
		&step.CompletedAt,
		&step.DueAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if comments.Valid {
		step.Comments = comments.String
	}
	return &step, nil
}

// Create creates a new step instance
func (r *StepInstanceRepository) Create(ctx context.Context, step *entity.StepInstance) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	result, err := ex.ExecContext(ctx, `
		INSERT INTO step_instances (instance_id, step_definition_id, assigned_to, status, comments, started_at, completed_at, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.InstanceID,
		step.StepDefinitionID,
		step.AssignedTo,
		step.Status,
		step.Comments,
		step.StartedAt,
		step.CompletedAt,
		step.DueAt,
	)
	if err != nil {
		r.logger.Error("Failed to create step instance", zap.Error(err))
		return fmt.Errorf("failed to create step instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	step.ID = id
	return nil
}

// GetByID retrieves a step instance by ID
func (r *StepInstanceRepository) GetByID(ctx context.Context, id int64) (*entity.StepInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	step, err := scanStepInstance(ex.QueryRowContext(ctx,
		`SELECT `+stepInstanceColumns+` FROM step_instances WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get step instance: %w", err)
	}
	return step, nil
}

// ListByInstanceID retrieves all step instances of a workflow instance
func (r *StepInstanceRepository) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StepInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+stepInstanceColumns+`
		FROM step_instances
		WHERE instance_id = ?
		ORDER BY id ASC
	`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list step instances", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list step instances: %w", err)
	}
	defer rows.Close()

	return collectStepInstances(rows)
}

// ListOpenByStep retrieves the still-open rows of one step within an instance
func (r *StepInstanceRepository) ListOpenByStep(ctx context.Context, instanceID, stepDefinitionID int64) ([]*entity.StepInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+stepInstanceColumns+`
		FROM step_instances
		WHERE instance_id = ? AND step_definition_id = ? AND status IN (?, ?)
		ORDER BY id ASC
	`, instanceID, stepDefinitionID, entity.StepStatusPending, entity.StepStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to list open step instances", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list open step instances: %w", err)
	}
	defer rows.Close()

	return collectStepInstances(rows)
}

// Update persists the step instance's mutable fields
func (r *StepInstanceRepository) Update(ctx context.Context, step *entity.StepInstance) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx, `
		UPDATE step_instances
		SET assigned_to = ?, status = ?, comments = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		step.AssignedTo,
		step.Status,
		step.Comments,
		step.CompletedAt,
		step.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update step instance", zap.Int64("id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to update step instance: %w", err)
	}
	return nil
}

// ListPendingForUser returns the user's approval queue: open step instances
// assigned to them directly, plus shared rows whose rule set matches their
// role or department, joined with instance and document metadata. Oldest
// first for FIFO consumption.
func (r *StepInstanceRepository) ListPendingForUser(ctx context.Context, userID int64) ([]*entity.PendingStep, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT si.id, si.instance_id, si.step_definition_id, si.assigned_to, si.status, si.comments,
			si.started_at, si.completed_at, si.due_at, si.created_at, si.updated_at,
			sd.name, wd.name, d.id, d.title
		FROM step_instances si
		JOIN workflow_instances wi ON wi.id = si.instance_id
		JOIN step_definitions sd ON sd.id = si.step_definition_id
		JOIN workflow_definitions wd ON wd.id = wi.definition_id
		JOIN documents d ON d.id = wi.document_id
		WHERE si.status IN (?, ?)
			AND wi.status = ?
			AND (
				si.assigned_to = ?
				OR (si.assigned_to IS NULL AND EXISTS (
					SELECT 1
					FROM assignee_rules ar, users u
					WHERE u.id = ? AND u.is_active = 1
						AND ar.step_definition_id = si.step_definition_id
						AND (
							(ar.assignee_type = 'user' AND ar.user_id = u.id)
							OR (ar.assignee_type = 'role' AND ar.assignee_value = u.role)
							OR (ar.assignee_type = 'department' AND ar.assignee_value = u.department)
						)
				))
			)
		ORDER BY si.created_at ASC, si.id ASC
	`, entity.StepStatusPending, entity.StepStatusInProgress, entity.InstanceStatusInProgress, userID, userID)
	if err != nil {
		r.logger.Error("Failed to list pending steps", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}
	defer rows.Close()

	var pending []*entity.PendingStep
	for rows.Next() {
		var p entity.PendingStep
		var comments sql.NullString

		err := rows.Scan(
			&p.ID,
			&p.InstanceID,
			&p.StepDefinitionID,
			&p.AssignedTo,
			&p.Status,
			&comments,
			&p.StartedAt,
			&p.CompletedAt,
			&p.DueAt,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.StepName,
			&p.DefinitionName,
			&p.DocumentID,
			&p.DocumentTitle,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending step: %w", err)
		}
		if comments.Valid {
			p.Comments = comments.String
		}

		pending = append(pending, &p)
	}

	return pending, rows.Err()
}

// ListOverdue returns open step instances whose due time has passed
func (r *StepInstanceRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.StepInstance, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+stepInstanceColumns+`
		FROM step_instances
		WHERE status IN (?, ?) AND due_at IS NOT NULL AND due_at < ?
		ORDER BY due_at ASC
	`, entity.StepStatusPending, entity.StepStatusInProgress, asOf)
	if err != nil {
		r.logger.Error("Failed to list overdue step instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue step instances: %w", err)
	}
	defer rows.Close()

	return collectStepInstances(rows)
}

func collectStepInstances(rows *sql.Rows) ([]*entity.StepInstance, error) {
	var steps []*entity.StepInstance
	for rows.Next() {
		step, err := scanStepInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step instance: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Verify interface compliance
var _ port.StepInstanceRepository = (*StepInstanceRepository)(nil)
