package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartdocs/smart-docs/internal/application/service"
	"github.com/smartdocs/smart-docs/internal/application/workflow"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine            workflow.Engine
	documentService   service.DocumentService
	definitionService service.DefinitionService
	activityService   service.ActivityService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.Engine,
	documentService service.DocumentService,
	definitionService service.DefinitionService,
	activityService service.ActivityService,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:            engine,
		documentService:   documentService,
		definitionService: definitionService,
		activityService:   activityService,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DocumentWorkflowResponse bundles an instance with its step instances
type DocumentWorkflowResponse struct {
	Instance *entity.WorkflowInstance `json:"instance"`
	Steps    []*entity.StepInstance   `json:"steps"`
}

// CreateDocumentRequest represents the document upload metadata
type CreateDocumentRequest struct {
	Title          string  `json:"title" binding:"required"`
	Classification *string `json:"classification"`
	OwnerUserID    int64   `json:"owner_user_id" binding:"required"`
}

// AssignWorkflowRequest represents a workflow assignment. DefinitionID is
// optional; without it the engine resolves a definition from the document's
// classification.
type AssignWorkflowRequest struct {
	DefinitionID *int64 `json:"definition_id"`
}

// CompleteStepRequest represents an assignee decision on a step
type CompleteStepRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

// CancelWorkflowRequest represents an administrative cancellation
type CancelWorkflowRequest struct {
	Reason string `json:"reason"`
}

// ListRequest represents pagination query parameters
type ListRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (r *ListRequest) normalize() {
	if r.Limit <= 0 || r.Limit > 100 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// respondError maps domain errors onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainwf.ErrValidation):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, domainwf.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, domainwf.ErrForbidden):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})
	case errors.Is(err, domainwf.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, Response{Success: false, Error: "step already completed"})
	case errors.Is(err, domainwf.ErrConflict), errors.Is(err, domainwf.ErrInvalidState):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + name + " parameter",
		})
		return 0, false
	}
	return id, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateDocument handles POST /api/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	doc := &entity.Document{
		Title:          req.Title,
		Classification: req.Classification,
		OwnerUserID:    req.OwnerUserID,
	}

	created, err := h.documentService.Create(c.Request.Context(), doc)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListDocuments handles GET /api/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	req.normalize()

	docs, err := h.documentService.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: docs})
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// GetDocumentWorkflow handles GET /api/documents/:id/workflow
func (h *Handlers) GetDocumentWorkflow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	inst, steps, err := h.engine.GetDocumentWorkflow(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "document has no workflow",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    DocumentWorkflowResponse{Instance: inst, Steps: steps},
	})
}

// AssignWorkflow handles POST /api/documents/:id/workflow
func (h *Handlers) AssignWorkflow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// body is optional; an empty request asks for classification-based resolution
	var req AssignWorkflowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
			return
		}
	}

	inst, err := h.engine.AssignWorkflow(c.Request.Context(), id, req.DefinitionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if inst == nil {
		// no matching definition; the document proceeds without a workflow
		c.JSON(http.StatusOK, Response{Success: true})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// CompleteStep handles POST /api/workflows/:id/steps/:stepId/complete
func (h *Handlers) CompleteStep(c *gin.Context) {
	instanceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	stepInstanceID, ok := parseIDParam(c, "stepId")
	if !ok {
		return
	}

	var req CompleteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	inst, err := h.engine.CompleteStep(
		c.Request.Context(),
		instanceID,
		stepInstanceID,
		req.UserID,
		req.Action,
		req.Comments,
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// CancelWorkflow handles POST /api/workflows/:id/cancel
func (h *Handlers) CancelWorkflow(c *gin.Context) {
	instanceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// body is optional; cancellation without a reason is allowed
	var req CancelWorkflowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
			return
		}
	}

	inst, err := h.engine.CancelInstance(c.Request.Context(), instanceID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// ListPendingSteps handles GET /api/users/:id/pending-steps
func (h *Handlers) ListPendingSteps(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	steps, err := h.engine.ListPendingSteps(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// ListWorkflowHistory handles GET /api/workflows/:id/history
func (h *Handlers) ListWorkflowHistory(c *gin.Context) {
	instanceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.activityService.ListInstanceHistory(c.Request.Context(), instanceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ListUserNotifications handles GET /api/users/:id/notifications
func (h *Handlers) ListUserNotifications(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	req.normalize()

	notifications, err := h.activityService.ListUserNotifications(c.Request.Context(), userID, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// ListOverdueSteps handles GET /api/steps/overdue
func (h *Handlers) ListOverdueSteps(c *gin.Context) {
	steps, err := h.engine.ListOverdueSteps(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// CreateDefinition handles POST /api/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	created, err := h.definitionService.Create(c.Request.Context(), &def)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListDefinitions handles GET /api/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	req.normalize()

	defs, err := h.definitionService.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetDefinition handles GET /api/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	def, err := h.definitionService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateDefinition handles PUT /api/definitions/:id
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	def.ID = id

	updated, err := h.definitionService.Update(c.Request.Context(), &def)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DeleteDefinition handles DELETE /api/definitions/:id
func (h *Handlers) DeleteDefinition(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.definitionService.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}
