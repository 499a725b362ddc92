package orchestrator

import "github.com/trioctl/trio/pkg/models"

// Strategy names one of the four execution strategies §4.9 selects
// between, based purely on a Plan's complexity and parallelizability.
type Strategy string

const (
	StrategyMainOnly           Strategy = "main_only"
	StrategyMainWithDelegation Strategy = "main_with_delegation"
	StrategyHybrid             Strategy = "hybrid"
	StrategyMiniAgentsOnly     Strategy = "mini_agents_only"
)

// SelectStrategy applies §4.9's selection table to a scored Plan.
func SelectStrategy(plan *models.Plan) Strategy {
	c, p := plan.Complexity, plan.Parallelizability
	switch {
	case c >= 7 && p > 0.8:
		return StrategyMiniAgentsOnly
	case c >= 4 && p > 0.5:
		return StrategyHybrid
	case c >= 2 && p > 0.3:
		return StrategyMainWithDelegation
	default:
		return StrategyMainOnly
	}
}

// StepGroup is a contiguous run of steps sharing an inferred task type,
// capped in size, destined to become a single MiniAgentTask under
// strategies that delegate.
type StepGroup struct {
	Type         models.StepKind
	Steps        []models.Step
	AllowedTools []string
}

// DefaultGroupCap is the maximum number of steps a single group may hold
// before the grouping scan forces a new group regardless of type.
const DefaultGroupCap = 5

// commonToolsByKind names a small set of tools every group of a given type
// may use regardless of which specific tools its steps mention — e.g. a
// file-oriented group can always read back what it just wrote.
var commonToolsByKind = map[models.StepKind][]string{
	models.StepFile:     {"read_file"},
	models.StepEdit:     {"read_file"},
	models.StepCommand:  {"exec"},
	models.StepSearch:   {"web_search"},
	models.StepAnalysis: {},
	models.StepGeneral:  {},
}

// GroupSteps implements §4.9's grouping rule: scan in order, start a new
// group whenever the inferred type changes or the current group reaches
// DefaultGroupCap.
func GroupSteps(steps []models.Step) []StepGroup {
	var groups []StepGroup
	var current *StepGroup

	for _, s := range steps {
		if current == nil || current.Type != s.Kind || len(current.Steps) >= DefaultGroupCap {
			if current != nil {
				groups = append(groups, finalizeGroup(*current))
			}
			current = &StepGroup{Type: s.Kind}
		}
		current.Steps = append(current.Steps, s)
	}
	if current != nil {
		groups = append(groups, finalizeGroup(*current))
	}
	return groups
}

func finalizeGroup(g StepGroup) StepGroup {
	seen := make(map[string]bool)
	var tools []string
	for _, s := range g.Steps {
		if s.Tool != "" && !seen[s.Tool] {
			seen[s.Tool] = true
			tools = append(tools, s.Tool)
		}
	}
	for _, t := range commonToolsByKind[g.Type] {
		if !seen[t] {
			seen[t] = true
			tools = append(tools, t)
		}
	}
	g.AllowedTools = tools
	return g
}
