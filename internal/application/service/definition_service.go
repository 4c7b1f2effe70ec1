package service

import (
	"context"
	"fmt"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefinitionService manages workflow definition configuration
type DefinitionService interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error)
	Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error)
	Update(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error)
	Delete(ctx context.Context, id int64) error
}

type definitionServiceImpl struct {
	definitionRepo port.DefinitionRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	definitionRepo port.DefinitionRepository,
	txManager port.TransactionManager,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		definitionRepo: definitionRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

// Create validates and persists a definition with its steps and rules
func (s *definitionServiceImpl) Create(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.definitionRepo.Create(txCtx, def)
	})
	if err != nil {
		return nil, fmt.Errorf("create definition: %w", err)
	}

	s.logger.Info("Workflow definition created",
		"definition_id", def.ID,
		"name", def.Name,
		"steps", len(def.Steps))
	return def, nil
}

// Get retrieves a definition with its steps and rules
func (s *definitionServiceImpl) Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, id)
	}
	return def, nil
}

// List retrieves definitions with pagination
func (s *definitionServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	return s.definitionRepo.List(ctx, limit, offset)
}

// Update modifies definition metadata (name, description, priority, active
// flag). Step structure is immutable once created; admins version workflows
// by creating a new definition and deactivating the old one.
func (s *definitionServiceImpl) Update(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	existing, err := s.definitionRepo.GetByID(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, def.ID)
	}

	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domainwf.ErrValidation)
	}

	existing.Name = def.Name
	existing.Description = def.Description
	existing.Priority = def.Priority
	existing.IsActive = def.IsActive

	if err := s.definitionRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update definition: %w", err)
	}
	return existing, nil
}

// Delete removes a definition, or deactivates it when instances reference it
// so historic workflows keep their template.
func (s *definitionServiceImpl) Delete(ctx context.Context, id int64) error {
	def, err := s.definitionRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, id)
	}

	referenced, err := s.definitionRepo.HasInstances(ctx, id)
	if err != nil {
		return fmt.Errorf("check definition usage: %w", err)
	}
	if referenced {
		s.logger.Info("Definition referenced by instances, deactivating instead of deleting",
			"definition_id", id)
		return s.definitionRepo.SetActive(ctx, id, false)
	}

	return s.definitionRepo.Delete(ctx, id)
}

// ValidateDefinition checks structural invariants: known enum values,
// strictly increasing unique step orders, and complete assignee rules.
func ValidateDefinition(def *entity.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", domainwf.ErrValidation)
	}

	switch def.Type {
	case entity.DefinitionTypeApproval, entity.DefinitionTypeReview, entity.DefinitionTypeProcessing:
	default:
		return fmt.Errorf("%w: unknown definition type %q", domainwf.ErrValidation, def.Type)
	}

	switch def.TriggerType {
	case entity.TriggerTypeClassification, entity.TriggerTypeManual:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", domainwf.ErrValidation, def.TriggerType)
	}

	lastOrder := 0
	seenOrders := make(map[int]bool)
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("%w: step %d: name is required", domainwf.ErrValidation, i+1)
		}
		if seenOrders[step.StepOrder] {
			return fmt.Errorf("%w: duplicate step_order %d", domainwf.ErrValidation, step.StepOrder)
		}
		if i > 0 && step.StepOrder <= lastOrder {
			return fmt.Errorf("%w: step orders must be strictly increasing", domainwf.ErrValidation)
		}
		seenOrders[step.StepOrder] = true
		lastOrder = step.StepOrder

		if step.TimeoutHours != nil && *step.TimeoutHours <= 0 {
			return fmt.Errorf("%w: step %q: timeout_hours must be positive", domainwf.ErrValidation, step.Name)
		}

		for j := range step.AssigneeRules {
			rule := &step.AssigneeRules[j]
			switch rule.AssigneeType {
			case entity.AssigneeTypeUser:
				if rule.UserID == nil {
					return fmt.Errorf("%w: step %q: user rule requires user_id", domainwf.ErrValidation, step.Name)
				}
			case entity.AssigneeTypeRole, entity.AssigneeTypeDepartment:
				if rule.AssigneeValue == nil || *rule.AssigneeValue == "" {
					return fmt.Errorf("%w: step %q: %s rule requires assignee_value", domainwf.ErrValidation, step.Name, rule.AssigneeType)
				}
			default:
				return fmt.Errorf("%w: step %q: unknown assignee type %q", domainwf.ErrValidation, step.Name, rule.AssigneeType)
			}
		}
	}

	return nil
}
