package entity

import "time"

// Document carries only the fields this core reads and writes. File content,
// OCR text and classification extraction live in other subsystems.
type Document struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Classification     *string   `json:"classification,omitempty"`
	Status             string    `json:"status"`
	WorkflowStatus     *string   `json:"workflow_status,omitempty"`
	WorkflowInstanceID *int64    `json:"workflow_instance_id,omitempty"`
	OwnerUserID        int64     `json:"owner_user_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Attributes exposes the document fields step conditions may reference.
func (d *Document) Attributes() map[string]string {
	attrs := map[string]string{
		"title":  d.Title,
		"status": d.Status,
	}
	if d.Classification != nil {
		attrs["classification"] = *d.Classification
	}
	return attrs
}
