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

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, title, classification, status, workflow_status, workflow_instance_id, owner_user_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*entity.Document, error) {
	var doc entity.Document
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Classification,
		&doc.Status,
		&doc.WorkflowStatus,
		&doc.WorkflowInstanceID,
		&doc.OwnerUserID,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	result, err := ex.ExecContext(ctx, `
		INSERT INTO documents (title, classification, status, owner_user_id)
		VALUES (?, ?, ?, ?)
	`,
		doc.Title,
		doc.Classification,
		doc.Status,
		doc.OwnerUserID,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	doc, err := scanDocument(ex.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List retrieves documents with pagination
func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]*entity.Document, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := ex.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// UpdateWorkflowProjection writes the denormalized workflow fields
func (r *DocumentRepository) UpdateWorkflowProjection(ctx context.Context, documentID int64, status, workflowStatus string, instanceID *int64) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	_, err := ex.ExecContext(ctx, `
		UPDATE documents
		SET status = ?, workflow_status = ?, workflow_instance_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, workflowStatus, instanceID, documentID)
	if err != nil {
		r.logger.Error("Failed to update document workflow projection",
			zap.Int64("document_id", documentID), zap.Error(err))
		return fmt.Errorf("failed to update document workflow projection: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
