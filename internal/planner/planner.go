// Package planner implements the Planner (C7): it turns a drafted
// sequence of steps into a validated, scored Plan. Drafting itself is
// delegated to an injected Drafter (the LLM-driven part); everything this
// package does on top of a draft — DAG validation, complexity and
// parallelizability scoring, the conversational short-circuit — is pure
// and deterministic.
package planner

import (
	"context"

	"github.com/trioctl/trio/pkg/models"
)

// Draft is what a Drafter proposes before the Planner validates and scores
// it. A Draft with no steps and a non-empty DirectResponse signals a
// conversational turn.
type Draft struct {
	Steps          []models.Step
	DirectResponse string
}

// Drafter abstracts "ask the LLM for a plan" so this package has no
// dependency on any concrete model client.
type Drafter interface {
	Draft(ctx context.Context, request models.Request, contextSummary string) (Draft, error)
}

// Planner is the Planner component.
type Planner struct {
	drafter Drafter
}

// New constructs a Planner around the given Drafter.
func New(drafter Drafter) *Planner {
	return &Planner{drafter: drafter}
}

// Plan drafts, validates, and scores a Plan for request.
func (p *Planner) Plan(ctx context.Context, request models.Request, contextSummary string) (*models.Plan, error) {
	draft, err := p.drafter.Draft(ctx, request, contextSummary)
	if err != nil {
		return nil, models.WrapError(models.ErrUpstreamFailure, "planning failed", err)
	}

	plan := &models.Plan{Steps: draft.Steps, DirectResponse: draft.DirectResponse}
	if plan.IsConversational() {
		return plan, nil
	}

	if err := validateStructure(plan); err != nil {
		return nil, err
	}
	if err := plan.ValidateDAG(); err != nil {
		return nil, err
	}

	plan.Complexity = Complexity(plan)
	plan.Parallelizability = Parallelizability(plan)
	return plan, nil
}

// validateStructure enforces the non-DAG structural rules §4.7 names:
// every step declares a tool or is an analysis step, file-writing steps
// name an explicit path, command steps name an explicit command.
func validateStructure(plan *models.Plan) error {
	for _, s := range plan.Steps {
		if s.Tool == "" && s.Kind != models.StepAnalysis {
			return models.NewError(models.ErrInvalidArgument, "step "+s.ID+" declares no tool and is not kind=analysis")
		}
		switch s.Kind {
		case models.StepFile, models.StepEdit:
			if path, ok := s.Args["path"].(string); !ok || path == "" {
				return models.NewError(models.ErrInvalidArgument, "step "+s.ID+" is a file/edit step with no explicit path")
			}
		case models.StepCommand:
			if cmd, ok := s.Args["command"].(string); !ok || cmd == "" {
				return models.NewError(models.ErrInvalidArgument, "step "+s.ID+" is a command step with no explicit command")
			}
		}
	}
	return nil
}

// Complexity implements §4.7's formula:
// complexity = min(10, 0.5·|steps| + 0.3·|distinct tools| + (1 if nested) + (0.5 if file ops)).
// "nested" means some step depends on another that itself has a
// dependency — a chain of depth ≥ 2.
func Complexity(plan *models.Plan) float64 {
	distinctTools := make(map[string]bool)
	hasFileOps := false
	for _, s := range plan.Steps {
		if s.Tool != "" {
			distinctTools[s.Tool] = true
		}
		if s.Kind == models.StepFile || s.Kind == models.StepEdit {
			hasFileOps = true
		}
	}

	score := 0.5*float64(len(plan.Steps)) + 0.3*float64(len(distinctTools))
	if isNested(plan) {
		score += 1
	}
	if hasFileOps {
		score += 0.5
	}
	if score > 10 {
		score = 10
	}
	return score
}

// isNested reports whether any dependency chain has depth ≥ 2, i.e. some
// step depends on a step that itself has a dependency.
func isNested(plan *models.Plan) bool {
	hasDeps := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if len(s.DependsOn) > 0 {
			hasDeps[s.ID] = true
		}
	}
	for _, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			if hasDeps[dep] {
				return true
			}
		}
	}
	return false
}

// Parallelizability implements §4.7's formula:
// |independent steps| / max(|steps|, 1).
func Parallelizability(plan *models.Plan) float64 {
	total := len(plan.Steps)
	if total == 0 {
		return 0
	}
	independent := len(plan.IndependentSteps())
	return float64(independent) / float64(total)
}
