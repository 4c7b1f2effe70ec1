package entity

import "time"

// Notification is a queued message for a user, written by the audit emitter.
// Delivery is handled by an external channel; rows here are best-effort.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records one engine transition for the activity trail.
type AuditEntry struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	InstanceID  int64     `json:"instance_id"`
	DocumentID  int64     `json:"document_id"`
	EventType   string    `json:"event_type"`
	ActorUserID *int64    `json:"actor_user_id,omitempty"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}
