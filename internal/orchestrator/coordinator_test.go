package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/trioctl/trio/internal/executor"
	"github.com/trioctl/trio/pkg/models"
)

func TestSelectStrategyTable(t *testing.T) {
	cases := []struct {
		complexity, parallel float64
		want                 Strategy
	}{
		{8, 0.9, StrategyMiniAgentsOnly},
		{5, 0.6, StrategyHybrid},
		{3, 0.4, StrategyMainWithDelegation},
		{1, 0.1, StrategyMainOnly},
		{7, 0.8, StrategyMainWithDelegation}, // parallelizability not > 0.8, falls through
	}
	for _, c := range cases {
		plan := &models.Plan{Complexity: c.complexity, Parallelizability: c.parallel}
		if got := SelectStrategy(plan); got != c.want {
			t.Errorf("complexity=%.1f parallel=%.1f: want %s, got %s", c.complexity, c.parallel, c.want, got)
		}
	}
}

func TestGroupStepsSplitsOnTypeChange(t *testing.T) {
	steps := []models.Step{
		{ID: "s1", Kind: models.StepSearch, Tool: "web_search"},
		{ID: "s2", Kind: models.StepSearch, Tool: "web_search"},
		{ID: "s3", Kind: models.StepFile, Tool: "write_file"},
	}
	groups := GroupSteps(steps)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Steps) != 2 || len(groups[1].Steps) != 1 {
		t.Fatalf("unexpected group sizes: %+v", groups)
	}
}

func TestGroupStepsSplitsOnCap(t *testing.T) {
	var steps []models.Step
	for i := 0; i < 7; i++ {
		steps = append(steps, models.Step{ID: string(rune('a' + i)), Kind: models.StepAnalysis})
	}
	groups := GroupSteps(steps)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups from cap split, got %d", len(groups))
	}
	if len(groups[0].Steps) != DefaultGroupCap {
		t.Fatalf("expected first group capped at %d, got %d", DefaultGroupCap, len(groups[0].Steps))
	}
}

type fakePlanner struct{ plan *models.Plan }

func (f fakePlanner) Plan(ctx context.Context, request models.Request, contextSummary string) (*models.Plan, error) {
	return f.plan, nil
}

type fakeExecutor struct {
	result executor.ExecutionResult
}

func (f fakeExecutor) Run(ctx context.Context, plan *models.Plan) executor.ExecutionResult {
	return f.result
}

func TestExecuteConversationalShortCircuits(t *testing.T) {
	plan := &models.Plan{DirectResponse: "hi"}
	c := New(Config{Planner: fakePlanner{plan: plan}})
	result, err := c.Execute(context.Background(), models.NewRequest("hi", models.ModeDefault), "", models.Permissions{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Response != "hi" {
		t.Fatalf("expected direct response, got %q", result.Response)
	}
}

func TestExecuteMainOnlyStrategy(t *testing.T) {
	plan := &models.Plan{
		Steps:      []models.Step{{ID: "s1", Kind: models.StepAnalysis}},
		Complexity: 1,
	}
	exec := executor.ExecutionResult{
		OverallSuccess: true,
		Response:       "all steps completed successfully",
		StepResults:    []executor.StepResult{{StepID: "s1", Result: models.Ok("ok", 1)}},
	}
	c := New(Config{Planner: fakePlanner{plan: plan}, Executor: fakeExecutor{result: exec}})
	result, err := c.Execute(context.Background(), models.NewRequest("do it", models.ModeDefault), "", models.Permissions{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Strategy != StrategyMainOnly {
		t.Fatalf("expected main_only strategy, got %s", result.Strategy)
	}
	if result.Aggregated.SucceededCount != 1 {
		t.Fatalf("expected 1 succeeded step aggregated, got %d", result.Aggregated.SucceededCount)
	}
}

type fakeAgents struct {
	mu      sync.Mutex
	spawned int
}

func (f *fakeAgents) Spawn(ctx context.Context, task models.MiniAgentTask, perms models.Permissions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned++
	return task.Type + "-agent", nil
}

type fakeLifecycle struct{}

func (fakeLifecycle) Get(agentID string) (models.AgentInstance, bool) {
	return models.AgentInstance{ID: agentID, State: models.AgentCompleted, Counters: models.AgentCounters{Tokens: 5}}, true
}

func TestExecuteHybridStrategyAggregatesAgents(t *testing.T) {
	plan := &models.Plan{
		Steps: []models.Step{
			{ID: "s1", Kind: models.StepSearch, Tool: "web_search"},
			{ID: "s2", Kind: models.StepFile, Tool: "write_file", Args: map[string]any{"path": "a.go"}},
		},
		Complexity:        5,
		Parallelizability: 1,
	}
	agents := &fakeAgents{}
	c := New(Config{
		Planner:   fakePlanner{plan: plan},
		Agents:    agents,
		Lifecycle: fakeLifecycle{},
	})
	result, err := c.Execute(context.Background(), models.NewRequest("build it", models.ModeDefault), "", models.Permissions{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Strategy != StrategyHybrid {
		t.Fatalf("expected hybrid strategy, got %s", result.Strategy)
	}
	if result.Aggregated.SucceededCount != 2 {
		t.Fatalf("expected 2 succeeded agents, got %d", result.Aggregated.SucceededCount)
	}
	if agents.spawned != 2 {
		t.Fatalf("expected 2 agents spawned, got %d", agents.spawned)
	}
}

type fakeSnapshots struct {
	mu      sync.Mutex
	written []*models.Snapshot
}

func (f *fakeSnapshots) LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil, nil
	}
	return f.written[len(f.written)-1], nil
}

func (f *fakeSnapshots) AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, snapshot)
	return nil
}

func TestExecuteWritesSnapshotBeforeExecution(t *testing.T) {
	plan := &models.Plan{
		Steps:      []models.Step{{ID: "s1", Kind: models.StepAnalysis}},
		Complexity: 1,
	}
	exec := executor.ExecutionResult{OverallSuccess: true, Response: "all steps completed successfully"}
	snaps := &fakeSnapshots{}
	c := New(Config{
		Planner:   fakePlanner{plan: plan},
		Executor:  fakeExecutor{result: exec},
		Snapshots: snaps,
	})

	_, err := c.Execute(context.Background(), models.NewRequest("do it", models.ModeDefault), "", models.Permissions{}, "session-1")
	if err != nil {
		t.Fatal(err)
	}

	if len(snaps.written) != 1 {
		t.Fatalf("expected 1 snapshot written, got %d", len(snaps.written))
	}
	got := snaps.written[0]
	if got.SessionID != "session-1" || got.SequenceNumber != 1 || got.LastCommand != "do it" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestExecuteSkipsSnapshotWithoutSessionID(t *testing.T) {
	plan := &models.Plan{
		Steps:      []models.Step{{ID: "s1", Kind: models.StepAnalysis}},
		Complexity: 1,
	}
	exec := executor.ExecutionResult{OverallSuccess: true, Response: "all steps completed successfully"}
	snaps := &fakeSnapshots{}
	c := New(Config{
		Planner:   fakePlanner{plan: plan},
		Executor:  fakeExecutor{result: exec},
		Snapshots: snaps,
	})

	if _, err := c.Execute(context.Background(), models.NewRequest("do it", models.ModeDefault), "", models.Permissions{}, ""); err != nil {
		t.Fatal(err)
	}
	if len(snaps.written) != 0 {
		t.Fatalf("expected no snapshot written without a sessionID, got %d", len(snaps.written))
	}
}
