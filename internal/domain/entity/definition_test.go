package entity

import "testing"

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name       string
		conditions string
		wantNil    bool
		wantErr    bool
	}{
		{"empty string", "", true, false},
		{"whitespace only", "   ", true, false},
		{"valid condition", `{"field":"classification","operator":"equals","value":"invoice"}`, false, false},
		{"missing field treated as no condition", `{"operator":"equals","value":"x"}`, true, false},
		{"malformed json", `{"field":`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &StepDefinition{Conditions: tt.conditions}
			cond, err := step.ParseCondition()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCondition failed: %v", err)
			}
			if (cond == nil) != tt.wantNil {
				t.Errorf("cond = %v, want nil = %v", cond, tt.wantNil)
			}
		})
	}
}

func TestConditionEvaluate(t *testing.T) {
	attrs := map[string]string{
		"classification": "invoice",
		"title":          "Q3 supplier invoice",
	}

	tests := []struct {
		name string
		cond StepCondition
		want bool
	}{
		{"equals match", StepCondition{Field: "classification", Operator: ConditionOpEquals, Value: "invoice"}, true},
		{"equals mismatch", StepCondition{Field: "classification", Operator: ConditionOpEquals, Value: "contract"}, false},
		{"equals missing attribute", StepCondition{Field: "department", Operator: ConditionOpEquals, Value: "x"}, false},
		{"not equals mismatch", StepCondition{Field: "classification", Operator: ConditionOpNotEquals, Value: "contract"}, true},
		{"not equals match", StepCondition{Field: "classification", Operator: ConditionOpNotEquals, Value: "invoice"}, false},
		{"not equals missing attribute", StepCondition{Field: "department", Operator: ConditionOpNotEquals, Value: "x"}, true},
		{"contains match", StepCondition{Field: "title", Operator: ConditionOpContains, Value: "supplier"}, true},
		{"contains mismatch", StepCondition{Field: "title", Operator: ConditionOpContains, Value: "payroll"}, false},
		{"unknown operator passes", StepCondition{Field: "title", Operator: "matches", Value: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Evaluate(attrs); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocumentAttributes(t *testing.T) {
	classification := "invoice"
	doc := &Document{
		Title:          "Q3 invoice",
		Status:         DocumentStatusPending,
		Classification: &classification,
	}

	attrs := doc.Attributes()
	if attrs["classification"] != "invoice" {
		t.Errorf("classification attr = %q, want invoice", attrs["classification"])
	}
	if attrs["title"] != "Q3 invoice" {
		t.Errorf("title attr = %q", attrs["title"])
	}

	doc.Classification = nil
	if _, ok := doc.Attributes()["classification"]; ok {
		t.Error("nil classification should be absent from attributes")
	}
}

func TestInstanceIsTerminal(t *testing.T) {
	for status, terminal := range map[string]bool{
		InstanceStatusPending:    false,
		InstanceStatusInProgress: false,
		InstanceStatusCompleted:  true,
		InstanceStatusCancelled:  true,
		InstanceStatusFailed:     true,
	} {
		inst := &WorkflowInstance{Status: status}
		if inst.IsTerminal() != terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, inst.IsTerminal(), terminal)
		}
	}
}

func TestStepInstanceIsOpen(t *testing.T) {
	for status, open := range map[string]bool{
		StepStatusPending:    true,
		StepStatusInProgress: true,
		StepStatusApproved:   false,
		StepStatusRejected:   false,
		StepStatusSkipped:    false,
	} {
		step := &StepInstance{Status: status}
		if step.IsOpen() != open {
			t.Errorf("IsOpen(%s) = %v, want %v", status, step.IsOpen(), open)
		}
	}
}
