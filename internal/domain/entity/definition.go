package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkflowDefinition is a reusable, admin-configured template of ordered steps
// and assignment rules. Definitions are configuration, independent of any document.
type WorkflowDefinition struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Type         string           `json:"type"`
	TriggerType  string           `json:"trigger_type"`
	TriggerValue *string          `json:"trigger_value,omitempty"`
	IsActive     bool             `json:"is_active"`
	Priority     int              `json:"priority"`
	Steps        []StepDefinition `json:"steps,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StepDefinition is one stage in a definition's ordered sequence.
type StepDefinition struct {
	ID                   int64          `json:"id"`
	DefinitionID         int64          `json:"definition_id"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	StepOrder            int            `json:"step_order"`
	StepType             string         `json:"step_type"`
	IsRequired           bool           `json:"is_required"`
	RequiresAllAssignees bool           `json:"requires_all_assignees"`
	TimeoutHours         *int           `json:"timeout_hours,omitempty"`
	Conditions           string         `json:"conditions,omitempty"`
	AssigneeRules        []AssigneeRule `json:"assignee_rules,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

// AssigneeRule specifies who may act on a step: a direct user, every user
// holding a role, or every user in a department.
type AssigneeRule struct {
	ID               int64   `json:"id"`
	StepDefinitionID int64   `json:"step_definition_id"`
	AssigneeType     string  `json:"assignee_type"`
	AssigneeValue    *string `json:"assignee_value,omitempty"`
	UserID           *int64  `json:"user_id,omitempty"`
}

// StepCondition is an optional predicate over document attributes, stored as
// JSON in StepDefinition.Conditions. A step whose condition evaluates false
// against the document is skipped without human action.
type StepCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Condition operators
const (
	ConditionOpEquals    = "equals"
	ConditionOpNotEquals = "not_equals"
	ConditionOpContains  = "contains"
)

// ParseCondition decodes the step's condition JSON. Returns nil when the step
// has no condition configured.
func (s *StepDefinition) ParseCondition() (*StepCondition, error) {
	if strings.TrimSpace(s.Conditions) == "" {
		return nil, nil
	}
	var cond StepCondition
	if err := json.Unmarshal([]byte(s.Conditions), &cond); err != nil {
		return nil, fmt.Errorf("invalid step condition: %w", err)
	}
	if cond.Field == "" || cond.Operator == "" {
		return nil, nil
	}
	return &cond, nil
}

// Evaluate applies the condition to a document attribute lookup.
func (c *StepCondition) Evaluate(attrs map[string]string) bool {
	actual, ok := attrs[c.Field]
	switch c.Operator {
	case ConditionOpEquals:
		return ok && actual == c.Value
	case ConditionOpNotEquals:
		return !ok || actual != c.Value
	case ConditionOpContains:
		return ok && strings.Contains(actual, c.Value)
	default:
		return true
	}
}
