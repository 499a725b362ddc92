package models

import "testing"

func TestPlanIsConversational(t *testing.T) {
	p := &Plan{DirectResponse: "4"}
	if !p.IsConversational() {
		t.Fatal("expected zero-step plan with direct response to be conversational")
	}

	p.Steps = []Step{{ID: "s1"}}
	if p.IsConversational() {
		t.Fatal("plan with steps should not be conversational")
	}
}

func TestPlanValidateDAG(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: "s1"},
		{ID: "s2", DependsOn: []string{"s1"}},
	}}
	if err := p.ValidateDAG(); err != nil {
		t.Fatalf("expected valid DAG, got %v", err)
	}

	cyclic := &Plan{Steps: []Step{
		{ID: "s1", DependsOn: []string{"s2"}},
		{ID: "s2"},
	}}
	if err := cyclic.ValidateDAG(); err == nil {
		t.Fatal("expected forward reference to be rejected")
	}

	dup := &Plan{Steps: []Step{{ID: "s1"}, {ID: "s1"}}}
	if err := dup.ValidateDAG(); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestPlanIndependentSteps(t *testing.T) {
	p := &Plan{Steps: []Step{
		{ID: "s1"},
		{ID: "s2"},
		{ID: "s3", DependsOn: []string{"s1"}},
	}}
	indep := p.IndependentSteps()
	if len(indep) != 2 {
		t.Fatalf("expected 2 independent steps, got %d", len(indep))
	}
}
