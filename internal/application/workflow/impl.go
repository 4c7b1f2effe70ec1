package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartdocs/smart-docs/internal/application/dispatcher"
	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	"github.com/smartdocs/smart-docs/internal/domain/event"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	stepRepo       port.StepInstanceRepository
	documentRepo   port.DocumentRepository
	resolver       *TriggerResolver
	assignees      *AssigneeResolver
	projector      *StatusProjector
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger

	// Per-aggregate mutexes so unrelated documents' workflows proceed
	// concurrently while concurrent mutations of one instance serialize.
	locks sync.Map
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// NewEngine creates a new workflow instance engine
func NewEngine(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	stepRepo port.StepInstanceRepository,
	documentRepo port.DocumentRepository,
	users port.UserDirectory,
	txManager port.TransactionManager,
	logger Logger,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		stepRepo:       stepRepo,
		documentRepo:   documentRepo,
		resolver:       NewTriggerResolver(definitionRepo),
		assignees:      NewAssigneeResolver(users),
		projector:      NewStatusProjector(documentRepo),
		txManager:      txManager,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// lockFor returns the mutex guarding one aggregate key
func (e *engineImpl) lockFor(key string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// applyTransition validates the trigger against the instance state machine
// and applies the resulting state to the entity.
func applyTransition(ctx context.Context, inst *entity.WorkflowInstance, trigger domainwf.Trigger) error {
	machine := BuildInstanceStateMachine(domainwf.State(inst.Status))
	if err := machine.Fire(ctx, trigger); err != nil {
		return err
	}
	inst.Status = machine.State().String()
	return nil
}

// sortedSteps returns the definition's steps in execution order
func sortedSteps(def *entity.WorkflowDefinition) []entity.StepDefinition {
	steps := append([]entity.StepDefinition{}, def.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps
}

// AssignWorkflow resolves a definition for the document and starts an instance
func (e *engineImpl) AssignWorkflow(ctx context.Context, documentID int64, requestedDefinitionID *int64) (*entity.WorkflowInstance, error) {
	doc, err := e.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", domainwf.ErrNotFound, documentID)
	}

	def, err := e.resolver.Resolve(ctx, doc.Classification, requestedDefinitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		e.logger.Info("No workflow definition matched document",
			"document_id", documentID)
		return nil, nil
	}

	return e.StartInstance(ctx, documentID, def)
}

// StartInstance creates an instance and activates its first actionable step
func (e *engineImpl) StartInstance(ctx context.Context, documentID int64, definition *entity.WorkflowDefinition) (*entity.WorkflowInstance, error) {
	mu := e.lockFor(fmt.Sprintf("doc:%d", documentID))
	mu.Lock()
	defer mu.Unlock()

	var (
		inst   *entity.WorkflowInstance
		events []*event.Event
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := e.documentRepo.GetByID(txCtx, documentID)
		if err != nil {
			return fmt.Errorf("fetch document: %w", err)
		}
		if doc == nil {
			return fmt.Errorf("%w: document %d", domainwf.ErrNotFound, documentID)
		}

		active, err := e.instanceRepo.GetActiveByDocumentID(txCtx, documentID)
		if err != nil {
			return fmt.Errorf("check active instance: %w", err)
		}
		if active != nil {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrConflict, active.ID, active.Status)
		}

		now := time.Now()
		inst = &entity.WorkflowInstance{
			DocumentID:   documentID,
			DefinitionID: definition.ID,
			Status:       entity.InstanceStatusPending,
			StartedAt:    &now,
		}
		if err := e.instanceRepo.Create(txCtx, inst); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}

		events = append(events, event.NewEvent(event.TypeInstanceStarted, inst.ID, documentID,
			map[string]interface{}{
				"definition_id":   definition.ID,
				"definition_name": definition.Name,
			}))

		if err := e.activateSteps(txCtx, inst, definition, doc, 0, &events); err != nil {
			return err
		}

		if err := e.instanceRepo.Update(txCtx, inst); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}

		return e.projector.Project(txCtx, inst)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, events)
	return inst, nil
}

// activateSteps walks the definition's steps from the given index and
// activates the first one with a satisfied condition and a non-empty
// assignee set. Steps with a failed condition or zero resolvable assignees
// are recorded as skipped and passed over - the escape valve keeping a
// workflow from blocking forever on an unassignable step. When every
// remaining step skips, the instance completes.
func (e *engineImpl) activateSteps(ctx context.Context, inst *entity.WorkflowInstance, def *entity.WorkflowDefinition, doc *entity.Document, fromIdx int, events *[]*event.Event) error {
	steps := sortedSteps(def)
	now := time.Now()

	for idx := fromIdx; idx < len(steps); idx++ {
		step := steps[idx]

		skipReason := ""
		cond, err := step.ParseCondition()
		if err != nil {
			return fmt.Errorf("step %d: %w", step.ID, err)
		}
		if cond != nil && !cond.Evaluate(doc.Attributes()) {
			skipReason = "condition_not_met"
		}

		var assigneeIDs []int64
		if skipReason == "" {
			assigneeIDs, err = e.assignees.Resolve(ctx, step.AssigneeRules)
			if err != nil {
				return fmt.Errorf("resolve assignees for step %d: %w", step.ID, err)
			}
			if len(assigneeIDs) == 0 {
				skipReason = "no_assignees"
			}
		}

		if skipReason != "" {
			skipped := &entity.StepInstance{
				InstanceID:       inst.ID,
				StepDefinitionID: step.ID,
				Status:           entity.StepStatusSkipped,
				StartedAt:        &now,
				CompletedAt:      &now,
			}
			if err := e.stepRepo.Create(ctx, skipped); err != nil {
				return fmt.Errorf("record skipped step: %w", err)
			}

			e.logger.Info("Step auto-skipped",
				"instance_id", inst.ID,
				"step_definition_id", step.ID,
				"step_name", step.Name,
				"reason", skipReason)
			*events = append(*events, event.NewEvent(event.TypeStepSkipped, inst.ID, inst.DocumentID,
				map[string]interface{}{
					"step_definition_id": step.ID,
					"step_name":          step.Name,
					"reason":             skipReason,
				}))
			continue
		}

		var dueAt *time.Time
		if step.TimeoutHours != nil {
			due := now.Add(time.Duration(*step.TimeoutHours) * time.Hour)
			dueAt = &due
		}

		if step.RequiresAllAssignees {
			// one row per assignee: each must independently act
			for _, userID := range assigneeIDs {
				uid := userID
				si := &entity.StepInstance{
					InstanceID:       inst.ID,
					StepDefinitionID: step.ID,
					AssignedTo:       &uid,
					Status:           entity.StepStatusPending,
					StartedAt:        &now,
					DueAt:            dueAt,
				}
				if err := e.stepRepo.Create(ctx, si); err != nil {
					return fmt.Errorf("create step instance: %w", err)
				}
			}
		} else {
			// one shared row: first responder wins for the whole group
			si := &entity.StepInstance{
				InstanceID:       inst.ID,
				StepDefinitionID: step.ID,
				Status:           entity.StepStatusPending,
				StartedAt:        &now,
				DueAt:            dueAt,
			}
			if len(assigneeIDs) == 1 {
				uid := assigneeIDs[0]
				si.AssignedTo = &uid
			}
			if err := e.stepRepo.Create(ctx, si); err != nil {
				return fmt.Errorf("create step instance: %w", err)
			}
		}

		trigger := domainwf.TriggerAdvance
		if inst.Status == entity.InstanceStatusPending {
			trigger = domainwf.TriggerStart
		}
		if err := applyTransition(ctx, inst, trigger); err != nil {
			return err
		}
		stepID := step.ID
		inst.CurrentStepID = &stepID

		for _, userID := range assigneeIDs {
			*events = append(*events, event.NewEvent(event.TypeStepAssigned, inst.ID, inst.DocumentID,
				map[string]interface{}{
					"step_definition_id": step.ID,
					"step_name":          step.Name,
					"assignee_id":        userID,
				}))
		}

		return nil
	}

	// no actionable step remains
	if err := applyTransition(ctx, inst, domainwf.TriggerComplete); err != nil {
		return err
	}
	inst.CurrentStepID = nil
	inst.CompletedAt = &now
	*events = append(*events, event.NewEvent(event.TypeInstanceCompleted, inst.ID, inst.DocumentID,
		map[string]interface{}{"definition_id": def.ID}))

	return nil
}

// CompleteStep records an assignee decision and advances the instance.
// Callers racing on the same step get ErrAlreadyCompleted alongside the
// current instance; the transition from one step to the next executes
// exactly once.
func (e *engineImpl) CompleteStep(ctx context.Context, instanceID, stepInstanceID, actingUserID int64, action, comments string) (*entity.WorkflowInstance, error) {
	switch action {
	case entity.ActionApproved, entity.ActionRejected, entity.ActionSkipped:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domainwf.ErrValidation, action)
	}

	mu := e.lockFor(fmt.Sprintf("inst:%d", instanceID))
	mu.Lock()
	defer mu.Unlock()

	var (
		inst   *entity.WorkflowInstance
		events []*event.Event
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		inst, err = e.instanceRepo.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("fetch instance: %w", err)
		}
		if inst == nil {
			return fmt.Errorf("%w: instance %d", domainwf.ErrNotFound, instanceID)
		}
		if inst.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrInvalidState, instanceID, inst.Status)
		}
		if inst.Status != entity.InstanceStatusInProgress {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrInvalidState, instanceID, inst.Status)
		}

		step, err := e.stepRepo.GetByID(txCtx, stepInstanceID)
		if err != nil {
			return fmt.Errorf("fetch step instance: %w", err)
		}
		if step == nil {
			return fmt.Errorf("%w: step instance %d", domainwf.ErrNotFound, stepInstanceID)
		}
		if step.InstanceID != instanceID {
			return fmt.Errorf("%w: step instance %d does not belong to instance %d", domainwf.ErrInvalidState, stepInstanceID, instanceID)
		}
		if !step.IsOpen() {
			return fmt.Errorf("%w: step instance %d is %s", domainwf.ErrAlreadyCompleted, stepInstanceID, step.Status)
		}
		if inst.CurrentStepID == nil || *inst.CurrentStepID != step.StepDefinitionID {
			// instance already advanced past this step
			return fmt.Errorf("%w: instance %d moved past step %d", domainwf.ErrAlreadyCompleted, instanceID, step.StepDefinitionID)
		}

		def, err := e.definitionRepo.GetByID(txCtx, inst.DefinitionID)
		if err != nil {
			return fmt.Errorf("fetch definition: %w", err)
		}
		if def == nil {
			return fmt.Errorf("%w: definition %d", domainwf.ErrNotFound, inst.DefinitionID)
		}

		var stepDef *entity.StepDefinition
		steps := sortedSteps(def)
		stepIdx := -1
		for i := range steps {
			if steps[i].ID == step.StepDefinitionID {
				stepDef = &steps[i]
				stepIdx = i
				break
			}
		}
		if stepDef == nil {
			return fmt.Errorf("%w: step definition %d", domainwf.ErrNotFound, step.StepDefinitionID)
		}

		if err := e.authorize(txCtx, step, stepDef, actingUserID); err != nil {
			return err
		}

		doc, err := e.documentRepo.GetByID(txCtx, inst.DocumentID)
		if err != nil {
			return fmt.Errorf("fetch document: %w", err)
		}
		if doc == nil {
			return fmt.Errorf("%w: document %d", domainwf.ErrNotFound, inst.DocumentID)
		}

		now := time.Now()
		actorID := actingUserID
		step.Status = action
		step.Comments = comments
		step.CompletedAt = &now
		if step.AssignedTo == nil {
			step.AssignedTo = &actorID
		}
		if err := e.stepRepo.Update(txCtx, step); err != nil {
			return fmt.Errorf("update step instance: %w", err)
		}

		events = append(events, event.NewEvent(event.TypeStepCompleted, inst.ID, inst.DocumentID,
			map[string]interface{}{
				"step_instance_id":   step.ID,
				"step_definition_id": stepDef.ID,
				"step_name":          stepDef.Name,
				"action":             action,
				"actor_id":           actingUserID,
			}))

		rejected := action == entity.ActionRejected
		resolved := true

		if stepDef.RequiresAllAssignees && !rejected {
			// the step resolves only once every assignee has acted;
			// a single rejection above short-circuits regardless
			open, err := e.stepRepo.ListOpenByStep(txCtx, inst.ID, stepDef.ID)
			if err != nil {
				return fmt.Errorf("list open step instances: %w", err)
			}
			resolved = len(open) == 0
		}

		if resolved {
			// any sibling rows still open are superseded by the outcome
			if err := e.supersedeOpenSteps(txCtx, inst.ID, stepDef.ID, now); err != nil {
				return err
			}
		}

		switch {
		case !resolved:
			// step still waiting on other assignees

		case rejected:
			if err := applyTransition(txCtx, inst, domainwf.TriggerReject); err != nil {
				return err
			}
			inst.CurrentStepID = nil
			inst.CompletedAt = &now
			events = append(events, event.NewEvent(event.TypeInstanceFailed, inst.ID, inst.DocumentID,
				map[string]interface{}{
					"step_definition_id": stepDef.ID,
					"step_name":          stepDef.Name,
					"rejected_by":        actingUserID,
				}))

		default:
			if err := e.activateSteps(txCtx, inst, def, doc, stepIdx+1, &events); err != nil {
				return err
			}
		}

		if err := e.instanceRepo.Update(txCtx, inst); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}

		return e.projector.Project(txCtx, inst)
	})
	if err != nil {
		return inst, err
	}

	e.emit(ctx, events)
	return inst, nil
}

// authorize checks the acting user against the step's assignee. A shared
// step (assigned_to null) re-resolves the rule set fresh so membership
// reflects the directory at decision time.
func (e *engineImpl) authorize(ctx context.Context, step *entity.StepInstance, stepDef *entity.StepDefinition, actingUserID int64) error {
	if step.AssignedTo != nil {
		if *step.AssignedTo != actingUserID {
			return fmt.Errorf("%w: user %d", domainwf.ErrForbidden, actingUserID)
		}
		return nil
	}

	ids, err := e.assignees.Resolve(ctx, stepDef.AssigneeRules)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == actingUserID {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d", domainwf.ErrForbidden, actingUserID)
}

// supersedeOpenSteps marks the remaining open rows of a resolved step as
// skipped so no step instance is left pending forever.
func (e *engineImpl) supersedeOpenSteps(ctx context.Context, instanceID, stepDefinitionID int64, now time.Time) error {
	open, err := e.stepRepo.ListOpenByStep(ctx, instanceID, stepDefinitionID)
	if err != nil {
		return fmt.Errorf("list open step instances: %w", err)
	}
	for _, o := range open {
		o.Status = entity.StepStatusSkipped
		o.CompletedAt = &now
		if err := e.stepRepo.Update(ctx, o); err != nil {
			return fmt.Errorf("supersede step instance %d: %w", o.ID, err)
		}
	}
	return nil
}

// CancelInstance administratively terminates an instance
func (e *engineImpl) CancelInstance(ctx context.Context, instanceID int64, reason string) (*entity.WorkflowInstance, error) {
	mu := e.lockFor(fmt.Sprintf("inst:%d", instanceID))
	mu.Lock()
	defer mu.Unlock()

	var (
		inst   *entity.WorkflowInstance
		events []*event.Event
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		inst, err = e.instanceRepo.GetByID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("fetch instance: %w", err)
		}
		if inst == nil {
			return fmt.Errorf("%w: instance %d", domainwf.ErrNotFound, instanceID)
		}
		if inst.IsTerminal() {
			return fmt.Errorf("%w: instance %d is %s", domainwf.ErrInvalidState, instanceID, inst.Status)
		}

		if err := applyTransition(txCtx, inst, domainwf.TriggerCancel); err != nil {
			return err
		}

		now := time.Now()
		all, err := e.stepRepo.ListByInstanceID(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("list step instances: %w", err)
		}
		for _, s := range all {
			if !s.IsOpen() {
				continue
			}
			s.Status = entity.StepStatusSkipped
			s.CompletedAt = &now
			if err := e.stepRepo.Update(txCtx, s); err != nil {
				return fmt.Errorf("skip step instance %d: %w", s.ID, err)
			}
		}

		inst.CurrentStepID = nil
		inst.CompletedAt = &now
		if reason != "" {
			inst.Notes = reason
		}
		if err := e.instanceRepo.Update(txCtx, inst); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}

		events = append(events, event.NewEvent(event.TypeInstanceCancelled, inst.ID, inst.DocumentID,
			map[string]interface{}{"reason": reason}))

		return e.projector.Project(txCtx, inst)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, events)
	return inst, nil
}

// GetDocumentWorkflow returns the document's most recent instance and steps
func (e *engineImpl) GetDocumentWorkflow(ctx context.Context, documentID int64) (*entity.WorkflowInstance, []*entity.StepInstance, error) {
	inst, err := e.instanceRepo.GetLatestByDocumentID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch instance: %w", err)
	}
	if inst == nil {
		return nil, nil, nil
	}

	steps, err := e.stepRepo.ListByInstanceID(ctx, inst.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list step instances: %w", err)
	}
	return inst, steps, nil
}

// ListPendingSteps returns the user's approval queue, oldest first
func (e *engineImpl) ListPendingSteps(ctx context.Context, userID int64) ([]*entity.PendingStep, error) {
	return e.stepRepo.ListPendingForUser(ctx, userID)
}

// ListOverdueSteps returns open step instances past their due time
func (e *engineImpl) ListOverdueSteps(ctx context.Context) ([]*entity.StepInstance, error) {
	return e.stepRepo.ListOverdue(ctx, time.Now())
}

// emit dispatches events accumulated during a committed transaction. Event
// delivery is fire-and-forget: a failing handler never propagates back into
// the workflow mutation that produced the event.
func (e *engineImpl) emit(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range events {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}
