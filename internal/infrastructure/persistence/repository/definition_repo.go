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

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a definition together with its steps and assignee rules
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	result, err := ex.ExecContext(ctx, `
		INSERT INTO workflow_definitions (name, description, type, trigger_type, trigger_value, is_active, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		def.Name,
		def.Description,
		def.Type,
		def.TriggerType,
		def.TriggerValue,
		def.IsActive,
		def.Priority,
	)
	if err != nil {
		r.logger.Error("Failed to create definition", zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}

	defID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = defID

	for i := range def.Steps {
		step := &def.Steps[i]
		step.DefinitionID = defID

		result, err := ex.ExecContext(ctx, `
			INSERT INTO step_definitions (definition_id, name, description, step_order, step_type,
				is_required, requires_all_assignees, timeout_hours, conditions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			step.DefinitionID,
			step.Name,
			step.Description,
			step.StepOrder,
			step.StepType,
			step.IsRequired,
			step.RequiresAllAssignees,
			step.TimeoutHours,
			step.Conditions,
		)
		if err != nil {
			r.logger.Error("Failed to create step definition", zap.Error(err))
			return fmt.Errorf("failed to create step definition: %w", err)
		}

		stepID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = stepID

		for j := range step.AssigneeRules {
			rule := &step.AssigneeRules[j]
			rule.StepDefinitionID = stepID

			result, err := ex.ExecContext(ctx, `
				INSERT INTO assignee_rules (step_definition_id, assignee_type, assignee_value, user_id)
				VALUES (?, ?, ?, ?)
			`,
				rule.StepDefinitionID,
				rule.AssigneeType,
				rule.AssigneeValue,
				rule.UserID,
			)
			if err != nil {
				r.logger.Error("Failed to create assignee rule", zap.Error(err))
				return fmt.Errorf("failed to create assignee rule: %w", err)
			}

			ruleID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			rule.ID = ruleID
		}
	}

	return nil
}

const definitionColumns = `id, name, description, type, trigger_type, trigger_value, is_active, priority, created_at, updated_at`

func scanDefinition(row interface{ Scan(...interface{}) error }) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.Type,
		&def.TriggerType,
		&def.TriggerValue,
		&def.IsActive,
		&def.Priority,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// GetByID retrieves a definition with its steps and assignee rules
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	def, err := scanDefinition(ex.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM workflow_definitions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if err := r.loadSteps(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// loadSteps attaches steps and assignee rules in execution order
func (r *DefinitionRepository) loadSteps(ctx context.Context, def *entity.WorkflowDefinition) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT id, definition_id, name, description, step_order, step_type,
			is_required, requires_all_assignees, timeout_hours, conditions, created_at
		FROM step_definitions
		WHERE definition_id = ?
		ORDER BY step_order ASC
	`, def.ID)
	if err != nil {
		r.logger.Error("Failed to load step definitions", zap.Int64("definition_id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to load step definitions: %w", err)
	}
	defer rows.Close()

	var steps []entity.StepDefinition
	for rows.Next() {
		var step entity.StepDefinition
		var conditions sql.NullString

		err := rows.Scan(
			&step.ID,
			&step.DefinitionID,
			&step.Name,
			&step.Description,
			&step.StepOrder,
			&step.StepType,
			&step.IsRequired,
			&step.RequiresAllAssignees,
			&step.TimeoutHours,
			&conditions,
			&step.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step definition: %w", err)
		}
		if conditions.Valid {
			step.Conditions = conditions.String
		}

		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range steps {
		ruleRows, err := ex.QueryContext(ctx, `
			SELECT id, step_definition_id, assignee_type, assignee_value, user_id
			FROM assignee_rules
			WHERE step_definition_id = ?
			ORDER BY id ASC
		`, steps[i].ID)
		if err != nil {
			return fmt.Errorf("failed to load assignee rules: %w", err)
		}

		var rules []entity.AssigneeRule
		for ruleRows.Next() {
			var rule entity.AssigneeRule
			if err := ruleRows.Scan(
				&rule.ID,
				&rule.StepDefinitionID,
				&rule.AssigneeType,
				&rule.AssigneeValue,
				&rule.UserID,
			); err != nil {
				ruleRows.Close()
				return fmt.Errorf("failed to scan assignee rule: %w", err)
			}
			rules = append(rules, rule)
		}
		if err := ruleRows.Err(); err != nil {
			ruleRows.Close()
			return err
		}
		ruleRows.Close()

		steps[i].AssigneeRules = rules
	}

	def.Steps = steps
	return nil
}

// ListActiveByTrigger retrieves active definitions for a trigger type,
// ordered for deterministic resolver selection
func (r *DefinitionRepository) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*entity.WorkflowDefinition, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE is_active = 1 AND trigger_type = ?
		ORDER BY priority DESC, created_at DESC, id DESC
	`, triggerType)
	if err != nil {
		r.logger.Error("Failed to list active definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list active definitions: %w", err)
	}
	defer rows.Close()

	defs, err := r.collectDefinitions(ctx, rows)
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// List retrieves definitions with pagination
func (r *DefinitionRepository) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	return r.collectDefinitions(ctx, rows)
}

func (r *DefinitionRepository) collectDefinitions(ctx context.Context, rows *sql.Rows) ([]*entity.WorkflowDefinition, error) {
	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, def := range defs {
		if err := r.loadSteps(ctx, def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// Update modifies definition metadata
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx, `
		UPDATE workflow_definitions
		SET name = ?, description = ?, priority = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, def.Name, def.Description, def.Priority, def.IsActive, def.ID)
	if err != nil {
		r.logger.Error("Failed to update definition", zap.Int64("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to update definition: %w", err)
	}
	return nil
}

// SetActive toggles a definition's active flag
func (r *DefinitionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx,
		`UPDATE workflow_definitions SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id)
	if err != nil {
		r.logger.Error("Failed to set definition active flag", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set definition active flag: %w", err)
	}
	return nil
}

// Delete removes a definition and its steps and rules
func (r *DefinitionRepository) Delete(ctx context.Context, id int64) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete definition", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	return nil
}

// HasInstances reports whether any workflow instance references the definition
func (r *DefinitionRepository) HasInstances(ctx context.Context, id int64) (bool, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	var count int
	err := ex.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_instances WHERE definition_id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count definition instances: %w", err)
	}
	return count > 0, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
