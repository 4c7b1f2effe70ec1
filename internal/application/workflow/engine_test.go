package workflow

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// memStore is a shared in-memory backing store for the fake repositories.
// Reads hand out copies so mutations only become visible through Update,
// the way a real database behaves.
type memStore struct {
	mu        sync.Mutex
	defs      map[int64]*entity.WorkflowDefinition
	instances map[int64]*entity.WorkflowInstance
	steps     map[int64]*entity.StepInstance
	docs      map[int64]*entity.Document
	users     map[int64]*entity.User
	seq       int64
}

func newMemStore() *memStore {
	return &memStore{
		defs:      make(map[int64]*entity.WorkflowDefinition),
		instances: make(map[int64]*entity.WorkflowInstance),
		steps:     make(map[int64]*entity.StepInstance),
		docs:      make(map[int64]*entity.Document),
		users:     make(map[int64]*entity.User),
	}
}

// nextID must be called with mu held
func (s *memStore) nextID() int64 {
	s.seq++
	return s.seq
}

func copyDefinition(def *entity.WorkflowDefinition) *entity.WorkflowDefinition {
	c := *def
	c.Steps = make([]entity.StepDefinition, len(def.Steps))
	for i, step := range def.Steps {
		sc := step
		sc.AssigneeRules = append([]entity.AssigneeRule{}, step.AssigneeRules...)
		c.Steps[i] = sc
	}
	return &c
}

func copyInstance(inst *entity.WorkflowInstance) *entity.WorkflowInstance {
	c := *inst
	return &c
}

func copyStep(step *entity.StepInstance) *entity.StepInstance {
	c := *step
	return &c
}

func copyDocument(doc *entity.Document) *entity.Document {
	c := *doc
	return &c
}

type memDefinitionRepo struct{ s *memStore }

func (r *memDefinitionRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	def.ID = r.s.nextID()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	for i := range def.Steps {
		def.Steps[i].ID = r.s.nextID()
		def.Steps[i].DefinitionID = def.ID
		for j := range def.Steps[i].AssigneeRules {
			def.Steps[i].AssigneeRules[j].ID = r.s.nextID()
			def.Steps[i].AssigneeRules[j].StepDefinitionID = def.Steps[i].ID
		}
	}
	r.s.defs[def.ID] = copyDefinition(def)
	return nil
}

func (r *memDefinitionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	def, ok := r.s.defs[id]
	if !ok {
		return nil, nil
	}
	return copyDefinition(def), nil
}

func (r *memDefinitionRepo) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*entity.WorkflowDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.WorkflowDefinition
	for _, def := range r.s.defs {
		if def.IsActive && def.TriggerType == triggerType {
			out = append(out, copyDefinition(def))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memDefinitionRepo) List(ctx context.Context, limit, offset int) ([]*entity.WorkflowDefinition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.WorkflowDefinition
	for _, def := range r.s.defs {
		out = append(out, copyDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDefinitionRepo) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.defs[def.ID]
	if !ok {
		return nil
	}
	existing.Name = def.Name
	existing.Description = def.Description
	existing.Priority = def.Priority
	existing.IsActive = def.IsActive
	return nil
}

func (r *memDefinitionRepo) SetActive(ctx context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if def, ok := r.s.defs[id]; ok {
		def.IsActive = active
	}
	return nil
}

func (r *memDefinitionRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.defs, id)
	return nil
}

func (r *memDefinitionRepo) HasInstances(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inst := range r.s.instances {
		if inst.DefinitionID == id {
			return true, nil
		}
	}
	return false, nil
}

type memInstanceRepo struct{ s *memStore }

func (r *memInstanceRepo) Create(ctx context.Context, inst *entity.WorkflowInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst.ID = r.s.nextID()
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = inst.CreatedAt
	r.s.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (r *memInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.instances[id]
	if !ok {
		return nil, nil
	}
	return copyInstance(inst), nil
}

func (r *memInstanceRepo) GetActiveByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inst := range r.s.instances {
		if inst.DocumentID == documentID && !inst.IsTerminal() {
			return copyInstance(inst), nil
		}
	}
	return nil, nil
}

func (r *memInstanceRepo) GetLatestByDocumentID(ctx context.Context, documentID int64) (*entity.WorkflowInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *entity.WorkflowInstance
	for _, inst := range r.s.instances {
		if inst.DocumentID != documentID {
			continue
		}
		if latest == nil || inst.ID > latest.ID {
			latest = inst
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyInstance(latest), nil
}

func (r *memInstanceRepo) Update(ctx context.Context, inst *entity.WorkflowInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst.UpdatedAt = time.Now()
	r.s.instances[inst.ID] = copyInstance(inst)
	return nil
}

type memStepRepo struct{ s *memStore }

func (r *memStepRepo) Create(ctx context.Context, step *entity.StepInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step.ID = r.s.nextID()
	step.CreatedAt = time.Now()
	step.UpdatedAt = step.CreatedAt
	r.s.steps[step.ID] = copyStep(step)
	return nil
}

func (r *memStepRepo) GetByID(ctx context.Context, id int64) (*entity.StepInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step, ok := r.s.steps[id]
	if !ok {
		return nil, nil
	}
	return copyStep(step), nil
}

func (r *memStepRepo) ListByInstanceID(ctx context.Context, instanceID int64) ([]*entity.StepInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.StepInstance
	for _, step := range r.s.steps {
		if step.InstanceID == instanceID {
			out = append(out, copyStep(step))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStepRepo) ListOpenByStep(ctx context.Context, instanceID, stepDefinitionID int64) ([]*entity.StepInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.StepInstance
	for _, step := range r.s.steps {
		if step.InstanceID == instanceID && step.StepDefinitionID == stepDefinitionID && step.IsOpen() {
			out = append(out, copyStep(step))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStepRepo) Update(ctx context.Context, step *entity.StepInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step.UpdatedAt = time.Now()
	r.s.steps[step.ID] = copyStep(step)
	return nil
}

func (r *memStepRepo) ListPendingForUser(ctx context.Context, userID int64) ([]*entity.PendingStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.PendingStep
	for _, step := range r.s.steps {
		if step.IsOpen() && step.AssignedTo != nil && *step.AssignedTo == userID {
			out = append(out, &entity.PendingStep{StepInstance: *copyStep(step)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStepRepo) ListOverdue(ctx context.Context, asOf time.Time) ([]*entity.StepInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.StepInstance
	for _, step := range r.s.steps {
		if step.IsOpen() && step.DueAt != nil && step.DueAt.Before(asOf) {
			out = append(out, copyStep(step))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memDocumentRepo struct{ s *memStore }

func (r *memDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc.ID = r.s.nextID()
	r.s.docs[doc.ID] = copyDocument(doc)
	return nil
}

func (r *memDocumentRepo) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.docs[id]
	if !ok {
		return nil, nil
	}
	return copyDocument(doc), nil
}

func (r *memDocumentRepo) List(ctx context.Context, limit, offset int) ([]*entity.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Document
	for _, doc := range r.s.docs {
		out = append(out, copyDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDocumentRepo) UpdateWorkflowProjection(ctx context.Context, documentID int64, status, workflowStatus string, instanceID *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	doc, ok := r.s.docs[documentID]
	if !ok {
		return nil
	}
	doc.Status = status
	doc.WorkflowStatus = &workflowStatus
	doc.WorkflowInstanceID = instanceID
	return nil
}

type memUserDirectory struct{ s *memStore }

func (r *memUserDirectory) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *memUserDirectory) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, u := range r.s.users {
		if u.Role == role {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memUserDirectory) ListByDepartment(ctx context.Context, department string) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, u := range r.s.users {
		if u.Department == department {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

// passthroughTx runs the function directly; the fakes commit immediately
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// harness bundles an engine with its fake repositories
type harness struct {
	store     *memStore
	defRepo   port.DefinitionRepository
	instRepo  port.InstanceRepository
	stepRepo  port.StepInstanceRepository
	docRepo   port.DocumentRepository
	users     port.UserDirectory
	engine    Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	h := &harness{
		store:    store,
		defRepo:  &memDefinitionRepo{s: store},
		instRepo: &memInstanceRepo{s: store},
		stepRepo: &memStepRepo{s: store},
		docRepo:  &memDocumentRepo{s: store},
		users:    &memUserDirectory{s: store},
	}
	h.engine = NewEngine(h.defRepo, h.instRepo, h.stepRepo, h.docRepo, h.users, passthroughTx{}, nopLogger{})
	return h
}

func (h *harness) seedUser(id int64, role, department string, active bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.users[id] = &entity.User{
		ID:         id,
		Name:       "user",
		Role:       role,
		Department: department,
		IsActive:   active,
	}
	if id > h.store.seq {
		h.store.seq = id
	}
}

func (h *harness) seedDocument(t *testing.T, classification string) *entity.Document {
	t.Helper()
	doc := &entity.Document{
		Title:       "Quarterly report",
		Status:      entity.DocumentStatusPending,
		OwnerUserID: 1,
	}
	if classification != "" {
		doc.Classification = &classification
	}
	require.NoError(t, h.docRepo.Create(context.Background(), doc))
	return doc
}

func userRule(userID int64) entity.AssigneeRule {
	id := userID
	return entity.AssigneeRule{AssigneeType: entity.AssigneeTypeUser, UserID: &id}
}

func roleRule(role string) entity.AssigneeRule {
	r := role
	return entity.AssigneeRule{AssigneeType: entity.AssigneeTypeRole, AssigneeValue: &r}
}

// seedDefinition stores a two-step approval definition: review by user 1,
// then approval by user 2.
func (h *harness) seedDefinition(t *testing.T, mutate func(*entity.WorkflowDefinition)) *entity.WorkflowDefinition {
	t.Helper()
	def := &entity.WorkflowDefinition{
		Name:        "contract approval",
		Type:        entity.DefinitionTypeApproval,
		TriggerType: entity.TriggerTypeClassification,
		IsActive:    true,
		Steps: []entity.StepDefinition{
			{
				Name:          "review",
				StepOrder:     1,
				StepType:      "approval",
				IsRequired:    true,
				AssigneeRules: []entity.AssigneeRule{userRule(1)},
			},
			{
				Name:          "final approval",
				StepOrder:     2,
				StepType:      "approval",
				IsRequired:    true,
				AssigneeRules: []entity.AssigneeRule{userRule(2)},
			},
		},
	}
	if mutate != nil {
		mutate(def)
	}
	require.NoError(t, h.defRepo.Create(context.Background(), def))
	return def
}

func (h *harness) stepsOf(t *testing.T, instanceID int64) []*entity.StepInstance {
	t.Helper()
	steps, err := h.stepRepo.ListByInstanceID(context.Background(), instanceID)
	require.NoError(t, err)
	return steps
}

func TestStartInstance_ActivatesFirstStep(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)
	require.NotNil(t, inst)

	assert.Equal(t, entity.InstanceStatusInProgress, inst.Status)
	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[0].ID, *inst.CurrentStepID)
	assert.NotNil(t, inst.StartedAt)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, entity.StepStatusPending, steps[0].Status)
	require.NotNil(t, steps[0].AssignedTo)
	assert.Equal(t, int64(1), *steps[0].AssignedTo)

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusProcessing, got.Status)
	require.NotNil(t, got.WorkflowStatus)
	assert.Equal(t, entity.InstanceStatusInProgress, *got.WorkflowStatus)
	require.NotNil(t, got.WorkflowInstanceID)
	assert.Equal(t, inst.ID, *got.WorkflowInstanceID)
}

func TestStartInstance_SecondInstanceConflicts(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	_, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	_, err = h.engine.StartInstance(context.Background(), doc.ID, def)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainwf.ErrConflict)
}

func TestStartInstance_SkipsStepWithFailedCondition(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].Conditions = `{"field":"classification","operator":"equals","value":"invoice"}`
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	// step 1 condition fails against a contract, so step 2 activates
	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[1].ID, *inst.CurrentStepID)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, entity.StepStatusSkipped, steps[0].Status)
	assert.Equal(t, entity.StepStatusPending, steps[1].Status)
}

func TestStartInstance_AllStepsSkipCompletesInstance(t *testing.T) {
	h := newHarness(t)
	// no users exist, so every step resolves zero assignees
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusCompleted, inst.Status)
	assert.Nil(t, inst.CurrentStepID)
	assert.NotNil(t, inst.CompletedAt)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.Equal(t, entity.StepStatusSkipped, s.Status)
	}

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusCompleted, got.Status)
}

func TestCompleteStep_ApproveAdvancesToNextStep(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)
	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 1)

	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 1, entity.ActionApproved, "looks good")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusInProgress, inst.Status)
	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[1].ID, *inst.CurrentStepID)

	steps = h.stepsOf(t, inst.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, entity.StepStatusApproved, steps[0].Status)
	assert.Equal(t, "looks good", steps[0].Comments)
	assert.Equal(t, entity.StepStatusPending, steps[1].Status)
}

func TestCompleteStep_FinalApprovalCompletesInstance(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 1, entity.ActionApproved, "")
	require.NoError(t, err)

	steps = h.stepsOf(t, inst.ID)
	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[1].ID, 2, entity.ActionApproved, "")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusCompleted, inst.Status)
	assert.Nil(t, inst.CurrentStepID)
	assert.NotNil(t, inst.CompletedAt)

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusCompleted, got.Status)
	require.NotNil(t, got.WorkflowStatus)
	assert.Equal(t, entity.InstanceStatusCompleted, *got.WorkflowStatus)
}

func TestCompleteStep_RejectFailsInstance(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 1, entity.ActionRejected, "missing signature")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusFailed, inst.Status)
	assert.Nil(t, inst.CurrentStepID)

	// rejection never activates the next step
	steps = h.stepsOf(t, inst.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, entity.StepStatusRejected, steps[0].Status)

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusOnHold, got.Status)
}

func TestCompleteStep_WrongUserForbidden(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	_, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 2, entity.ActionApproved, "")
	assert.ErrorIs(t, err, domainwf.ErrForbidden)
}

func TestCompleteStep_UnknownActionRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CompleteStep(context.Background(), 1, 1, 1, "escalated", "")
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

func TestCompleteStep_ResolvedStepReturnsAlreadyCompleted(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	_, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 1, entity.ActionApproved, "")
	require.NoError(t, err)

	got, err := h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 1, entity.ActionApproved, "")
	assert.ErrorIs(t, err, domainwf.ErrAlreadyCompleted)
	// the loser still sees the current instance
	require.NotNil(t, got)
	assert.Equal(t, entity.InstanceStatusInProgress, got.Status)
}

func TestCompleteStep_SharedStepFirstResponderWins(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "approver", "legal", true)
	h.seedUser(2, "approver", "legal", true)
	h.seedUser(3, "manager", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].AssigneeRules = []entity.AssigneeRule{roleRule("approver")}
		d.Steps[0].RequiresAllAssignees = false
		d.Steps[1].AssigneeRules = []entity.AssigneeRule{userRule(3)}
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	// a single shared row, unassigned because the group has two members
	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 1)
	assert.Nil(t, steps[0].AssignedTo)

	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 2, entity.ActionApproved, "")
	require.NoError(t, err)

	steps = h.stepsOf(t, inst.ID)
	assert.Equal(t, entity.StepStatusApproved, steps[0].Status)
	require.NotNil(t, steps[0].AssignedTo)
	assert.Equal(t, int64(2), *steps[0].AssignedTo)
	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[1].ID, *inst.CurrentStepID)
}

func TestCompleteStep_SharedStepOutsiderForbidden(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "approver", "legal", true)
	h.seedUser(2, "approver", "legal", true)
	h.seedUser(9, "intern", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].AssigneeRules = []entity.AssigneeRule{roleRule("approver")}
		d.Steps = d.Steps[:1]
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	_, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, 9, entity.ActionApproved, "")
	assert.ErrorIs(t, err, domainwf.ErrForbidden)
}

func TestCompleteStep_RequiresAllWaitsForEveryAssignee(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "approver", "legal", true)
	h.seedUser(2, "approver", "legal", true)
	h.seedUser(3, "manager", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].AssigneeRules = []entity.AssigneeRule{roleRule("approver")}
		d.Steps[0].RequiresAllAssignees = true
		d.Steps[1].AssigneeRules = []entity.AssigneeRule{userRule(3)}
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 2) // one row per assignee

	var row1, row2 *entity.StepInstance
	for _, s := range steps {
		require.NotNil(t, s.AssignedTo)
		switch *s.AssignedTo {
		case 1:
			row1 = s
		case 2:
			row2 = s
		}
	}
	require.NotNil(t, row1)
	require.NotNil(t, row2)

	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, row1.ID, 1, entity.ActionApproved, "")
	require.NoError(t, err)

	// still waiting on the second approver
	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[0].ID, *inst.CurrentStepID)

	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, row2.ID, 2, entity.ActionApproved, "")
	require.NoError(t, err)

	require.NotNil(t, inst.CurrentStepID)
	assert.Equal(t, def.Steps[1].ID, *inst.CurrentStepID)
}

func TestCompleteStep_RequiresAllRejectDominates(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "approver", "legal", true)
	h.seedUser(2, "approver", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].AssigneeRules = []entity.AssigneeRule{roleRule("approver")}
		d.Steps[0].RequiresAllAssignees = true
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 2)

	inst, err = h.engine.CompleteStep(context.Background(), inst.ID, steps[0].ID, *steps[0].AssignedTo, entity.ActionRejected, "no")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusFailed, inst.Status)

	// the sibling row is superseded, not left open
	steps = h.stepsOf(t, inst.ID)
	for _, s := range steps {
		assert.False(t, s.IsOpen())
	}
}

func TestCompleteStep_ConcurrentDecisionsResolveOnce(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "approver", "legal", true)
	h.seedUser(2, "approver", "legal", true)
	h.seedUser(3, "manager", "legal", true)
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].AssigneeRules = []entity.AssigneeRule{roleRule("approver")}
		d.Steps[1].AssigneeRules = []entity.AssigneeRule{userRule(3)}
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	steps := h.stepsOf(t, inst.ID)
	require.Len(t, steps, 1)
	stepID := steps[0].ID

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := int64(1 + i%2)
			_, errs[i] = h.engine.CompleteStep(context.Background(), inst.ID, stepID, actor, entity.ActionApproved, "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domainwf.ErrAlreadyCompleted)
		}
	}
	assert.Equal(t, 1, winners)

	// the instance advanced exactly one step
	current, err := h.instRepo.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)
	require.NotNil(t, current.CurrentStepID)
	assert.Equal(t, def.Steps[1].ID, *current.CurrentStepID)

	all := h.stepsOf(t, inst.ID)
	require.Len(t, all, 2)
}

func TestCancelInstance_SkipsOpenStepsAndParksDocument(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	inst, err = h.engine.CancelInstance(context.Background(), inst.ID, "superseded by v2")
	require.NoError(t, err)

	assert.Equal(t, entity.InstanceStatusCancelled, inst.Status)
	assert.Equal(t, "superseded by v2", inst.Notes)
	assert.Nil(t, inst.CurrentStepID)

	for _, s := range h.stepsOf(t, inst.ID) {
		assert.False(t, s.IsOpen())
	}

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusOnHold, got.Status)
}

func TestCancelInstance_TerminalInstanceRejected(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	_, err = h.engine.CancelInstance(context.Background(), inst.ID, "")
	require.NoError(t, err)

	_, err = h.engine.CancelInstance(context.Background(), inst.ID, "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)
}

func TestAssignWorkflow_NoMatchLeavesDocumentAlone(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDocument(t, "unclassified-thing")

	inst, err := h.engine.AssignWorkflow(context.Background(), doc.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, inst)

	got, err := h.docRepo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusPending, got.Status)
	assert.Nil(t, got.WorkflowInstanceID)
}

func TestAssignWorkflow_ManualDefinitionWins(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	classification := "contract"
	auto := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.TriggerValue = &classification
		d.Priority = 100
	})
	manual := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Name = "manual escalation"
		d.TriggerType = entity.TriggerTypeManual
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.AssignWorkflow(context.Background(), doc.ID, &manual.ID)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, manual.ID, inst.DefinitionID)
	assert.NotEqual(t, auto.ID, inst.DefinitionID)
}

func TestGetDocumentWorkflow(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	def := h.seedDefinition(t, nil)
	doc := h.seedDocument(t, "contract")

	inst, steps, err := h.engine.GetDocumentWorkflow(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Nil(t, inst)
	assert.Nil(t, steps)

	started, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	inst, steps, err = h.engine.GetDocumentWorkflow(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, started.ID, inst.ID)
	require.Len(t, steps, 1)
}

func TestListOverdueSteps(t *testing.T) {
	h := newHarness(t)
	h.seedUser(1, "reviewer", "legal", true)
	h.seedUser(2, "manager", "legal", true)
	timeout := 1
	def := h.seedDefinition(t, func(d *entity.WorkflowDefinition) {
		d.Steps[0].TimeoutHours = &timeout
	})
	doc := h.seedDocument(t, "contract")

	inst, err := h.engine.StartInstance(context.Background(), doc.ID, def)
	require.NoError(t, err)

	overdue, err := h.engine.ListOverdueSteps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// backdate the due time past now
	steps := h.stepsOf(t, inst.ID)
	past := time.Now().Add(-time.Hour)
	steps[0].DueAt = &past
	require.NoError(t, h.stepRepo.Update(context.Background(), steps[0]))

	overdue, err = h.engine.ListOverdueSteps(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, steps[0].ID, overdue[0].ID)
}
