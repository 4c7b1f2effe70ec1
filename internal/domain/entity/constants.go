package entity

// Status constants for WorkflowInstance
const (
	InstanceStatusPending    = "pending"
	InstanceStatusInProgress = "in_progress"
	InstanceStatusCompleted  = "completed"
	InstanceStatusCancelled  = "cancelled"
	InstanceStatusFailed     = "failed"
)

// Status constants for StepInstance
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusApproved   = "approved"
	StepStatusRejected   = "rejected"
	StepStatusSkipped    = "skipped"
)

// Document lifecycle status constants
const (
	DocumentStatusUpload     = "upload"
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
	DocumentStatusOnHold     = "on_hold"
)

// Workflow definition type constants
const (
	DefinitionTypeApproval   = "approval"
	DefinitionTypeReview     = "review"
	DefinitionTypeProcessing = "processing"
)

// Trigger type constants for WorkflowDefinition
const (
	TriggerTypeClassification = "classification"
	TriggerTypeManual         = "manual"
)

// Assignee rule type constants
const (
	AssigneeTypeUser       = "user"
	AssigneeTypeRole       = "role"
	AssigneeTypeDepartment = "department"
)

// Step completion action constants
const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionSkipped  = "skipped"
)

// Notification status constants
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)
