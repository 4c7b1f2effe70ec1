package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartdocs/smart-docs/internal/application/port"
	wf "github.com/smartdocs/smart-docs/internal/application/workflow"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// DocumentService manages document records and the upload-time workflow
// auto-assignment hook. File content, storage and OCR are handled outside
// this service.
type DocumentService interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	Get(ctx context.Context, id int64) (*entity.Document, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Document, error)
}

type documentServiceImpl struct {
	documentRepo port.DocumentRepository
	engine       wf.Engine
	logger       Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(
	documentRepo port.DocumentRepository,
	engine wf.Engine,
	logger Logger,
) DocumentService {
	return &documentServiceImpl{
		documentRepo: documentRepo,
		engine:       engine,
		logger:       logger,
	}
}

// Create persists the document and, when it carries a classification,
// resolves and starts a matching workflow. A document without a matching
// definition stays in pending status; that is a valid outcome, not an error.
func (s *documentServiceImpl) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domainwf.ErrValidation)
	}

	doc.Status = entity.DocumentStatusPending
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt

	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	inst, err := s.engine.AssignWorkflow(ctx, doc.ID, nil)
	if err != nil {
		// the document exists either way; a racing manual assignment is fine
		if errors.Is(err, domainwf.ErrConflict) {
			return s.Get(ctx, doc.ID)
		}
		s.logger.Error("Workflow auto-assignment failed",
			"document_id", doc.ID, "error", err)
		return nil, err
	}

	if inst != nil {
		s.logger.Info("Workflow started for document",
			"document_id", doc.ID,
			"instance_id", inst.ID,
			"definition_id", inst.DefinitionID)
	}

	return s.Get(ctx, doc.ID)
}

// Get retrieves a document by id
func (s *documentServiceImpl) Get(ctx context.Context, id int64) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", domainwf.ErrNotFound, id)
	}
	return doc, nil
}

// List retrieves documents with pagination
func (s *documentServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Document, error) {
	return s.documentRepo.List(ctx, limit, offset)
}
