package planner

import (
	"context"
	"testing"

	"github.com/trioctl/trio/pkg/models"
)

type fakeDrafter struct {
	draft Draft
	err   error
}

func (f fakeDrafter) Draft(ctx context.Context, request models.Request, contextSummary string) (Draft, error) {
	return f.draft, f.err
}

func TestPlanConversationalShortCircuits(t *testing.T) {
	p := New(fakeDrafter{draft: Draft{DirectResponse: "hi there"}})
	plan, err := p.Plan(context.Background(), models.NewRequest("hello", models.ModeDefault), "")
	if err != nil {
		t.Fatal(err)
	}
	if !plan.IsConversational() {
		t.Fatal("expected conversational plan")
	}
}

func TestPlanRejectsStepWithNoToolAndNotAnalysis(t *testing.T) {
	draft := Draft{Steps: []models.Step{{ID: "s1", Kind: models.StepGeneral}}}
	p := New(fakeDrafter{draft: draft})
	_, err := p.Plan(context.Background(), models.NewRequest("do it", models.ModeDefault), "")
	if err == nil {
		t.Fatal("expected validation error for missing tool")
	}
}

func TestPlanRejectsFileStepWithoutPath(t *testing.T) {
	draft := Draft{Steps: []models.Step{{ID: "s1", Tool: "write_file", Kind: models.StepFile, Args: map[string]any{}}}}
	p := New(fakeDrafter{draft: draft})
	_, err := p.Plan(context.Background(), models.NewRequest("write something", models.ModeDefault), "")
	if err == nil {
		t.Fatal("expected validation error for missing path")
	}
}

func TestComplexityFormula(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{ID: "s1", Tool: "search", Kind: models.StepSearch},
		{ID: "s2", Tool: "write_file", Kind: models.StepFile, DependsOn: []string{"s1"}, Args: map[string]any{"path": "a.go"}},
	}}
	got := Complexity(plan)
	// 0.5*2 + 0.3*2(distinct tools: search, write_file) + 0(not nested, depth 1) + 0.5(file ops) = 1+0.6+0.5 = 2.1
	want := 2.1
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected complexity %.4f, got %.4f", want, got)
	}
}

func TestComplexityCapsAtTen(t *testing.T) {
	var steps []models.Step
	for i := 0; i < 40; i++ {
		steps = append(steps, models.Step{ID: string(rune('a' + i)), Kind: models.StepAnalysis})
	}
	plan := &models.Plan{Steps: steps}
	if got := Complexity(plan); got != 10 {
		t.Fatalf("expected complexity capped at 10, got %f", got)
	}
}

func TestParallelizabilityAllIndependent(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{ID: "s1", Kind: models.StepAnalysis},
		{ID: "s2", Kind: models.StepAnalysis},
	}}
	if got := Parallelizability(plan); got != 1.0 {
		t.Fatalf("expected 1.0, got %f", got)
	}
}

func TestParallelizabilityWithOneDependency(t *testing.T) {
	plan := &models.Plan{Steps: []models.Step{
		{ID: "s1", Kind: models.StepAnalysis},
		{ID: "s2", Kind: models.StepAnalysis, DependsOn: []string{"s1"}},
	}}
	if got := Parallelizability(plan); got != 0.5 {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

func TestNestedDependencyAddsComplexity(t *testing.T) {
	flat := &models.Plan{Steps: []models.Step{
		{ID: "s1", Kind: models.StepAnalysis},
		{ID: "s2", Kind: models.StepAnalysis, DependsOn: []string{"s1"}},
	}}
	nested := &models.Plan{Steps: []models.Step{
		{ID: "s1", Kind: models.StepAnalysis},
		{ID: "s2", Kind: models.StepAnalysis, DependsOn: []string{"s1"}},
		{ID: "s3", Kind: models.StepAnalysis, DependsOn: []string{"s2"}},
	}}
	if Complexity(nested)-Complexity(flat) < 1.4 {
		t.Fatal("expected nested chain to add the +1 nested bonus on top of the extra step")
	}
}
