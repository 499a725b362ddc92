package models

// StepKind classifies what a Step does, independent of which tool (if any)
// carries it out.
type StepKind string

const (
	StepFile     StepKind = "file"
	StepCommand  StepKind = "command"
	StepSearch   StepKind = "search"
	StepEdit     StepKind = "edit"
	StepAnalysis StepKind = "analysis"
	StepGeneral  StepKind = "general"
)

// Step is a single unit of work inside a Plan: one tool invocation, or a
// single analytical action when Tool is empty and Kind is StepAnalysis.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
	Kind        StepKind       `json:"kind"`
}

// Plan is an ordered, DAG-dependent sequence of Steps produced from a user
// Request. A zero-step Plan paired with a non-empty DirectResponse is the
// Planner's degenerate, conversational-turn plan.
type Plan struct {
	Steps           []Step `json:"steps"`
	DirectResponse  string `json:"directResponse,omitempty"`
	Complexity      float64 `json:"complexity"`
	Parallelizability float64 `json:"parallelizability"`
}

// IsConversational reports whether this Plan is the Planner's degenerate
// zero-step, direct-response shortcut.
func (p *Plan) IsConversational() bool {
	return len(p.Steps) == 0 && p.DirectResponse != ""
}

// StepByID returns the step with the given id, or false if absent.
func (p *Plan) StepByID(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// ValidateDAG checks that every dependsOn id refers to an earlier step in
// the sequence and that no id is repeated, i.e. dependencies cannot form a
// cycle because they may only point backward in step order.
func (p *Plan) ValidateDAG() error {
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return NewError(ErrInvalidArgument, "step has empty id")
		}
		if seen[s.ID] {
			return NewError(ErrInvalidArgument, "duplicate step id: "+s.ID)
		}
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return NewError(ErrInvalidArgument, "step "+s.ID+" depends on unknown or later step "+dep)
			}
		}
		seen[s.ID] = true
	}
	return nil
}

// IndependentSteps returns the steps that have no direct dependency edge
// from any prior step — the set used by the parallelizability formula.
func (p *Plan) IndependentSteps() []Step {
	out := make([]Step, 0, len(p.Steps))
	for _, s := range p.Steps {
		if len(s.DependsOn) == 0 {
			out = append(out, s)
		}
	}
	return out
}
