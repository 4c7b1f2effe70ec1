package workflow

import (
	"fmt"
	"sort"

	"context"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// TriggerResolver selects the single best-matching active workflow
// definition for a document. Pure read, no side effects.
type TriggerResolver struct {
	definitionRepo port.DefinitionRepository
}

// NewTriggerResolver creates a new TriggerResolver
func NewTriggerResolver(definitionRepo port.DefinitionRepository) *TriggerResolver {
	return &TriggerResolver{definitionRepo: definitionRepo}
}

// Resolve picks a definition. A requested id (manual assignment) wins and
// must reference an active definition. Otherwise active classification-
// triggered definitions are matched where trigger_value equals the document
// classification or is NULL (wildcard), ordered by priority descending with
// newest-first tie-break. Returns (nil, nil) when nothing matches; the
// document then proceeds without a workflow.
func (r *TriggerResolver) Resolve(ctx context.Context, classification *string, requestedDefinitionID *int64) (*entity.WorkflowDefinition, error) {
	if requestedDefinitionID != nil {
		def, err := r.definitionRepo.GetByID(ctx, *requestedDefinitionID)
		if err != nil {
			return nil, fmt.Errorf("fetch requested definition: %w", err)
		}
		if def == nil || !def.IsActive {
			return nil, fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, *requestedDefinitionID)
		}
		return def, nil
	}

	candidates, err := r.definitionRepo.ListActiveByTrigger(ctx, entity.TriggerTypeClassification)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}

	matched := make([]*entity.WorkflowDefinition, 0, len(candidates))
	for _, def := range candidates {
		if def.TriggerValue == nil {
			// wildcard matches any classification, including none
			matched = append(matched, def)
			continue
		}
		if classification != nil && *def.TriggerValue == *classification {
			matched = append(matched, def)
		}
	}

	if len(matched) == 0 {
		return nil, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return matched[0], nil
}
