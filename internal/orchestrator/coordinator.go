// Package orchestrator implements the Trio Coordinator (C9): it plans a
// turn, selects an execution strategy from the plan's complexity and
// parallelizability, runs the plan through the Executor and/or delegates
// step-groups to mini-agents, falls back to main_only at most once on
// mini-agent failure, and aggregates the turn's results.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/trioctl/trio/internal/executor"
	"github.com/trioctl/trio/internal/sessions"
	"github.com/trioctl/trio/pkg/models"
)

var tracer = otel.Tracer("trioctl/trio/orchestrator")

// Planner is the narrow view of the Planner (C7) the coordinator needs.
type Planner interface {
	Plan(ctx context.Context, request models.Request, contextSummary string) (*models.Plan, error)
}

// Executor is the narrow view of the Executor (C8) the coordinator needs.
type Executor interface {
	Run(ctx context.Context, plan *models.Plan) executor.ExecutionResult
}

// AgentRunner is the narrow view of the Agent Spawner (C6) the coordinator
// needs to admit a mini-agent.
type AgentRunner interface {
	Spawn(ctx context.Context, task models.MiniAgentTask, perms models.Permissions) (string, error)
}

// LifecycleReader is the narrow view of the Lifecycle Manager (C5) the
// coordinator needs to observe a spawned mini-agent's outcome.
type LifecycleReader interface {
	Get(agentID string) (models.AgentInstance, bool)
}

// Publisher is the narrow view of the Event Bus (C3) the coordinator needs.
type Publisher interface {
	Publish(event models.Event)
}

// SnapshotWriter is the narrow view of the Session + Snapshot store (C11)
// the coordinator needs to record a turn's pre-execution state.
type SnapshotWriter interface {
	LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error)
	AppendSnapshot(ctx context.Context, snapshot *models.Snapshot) error
}

// Config wires the coordinator's collaborators and tuning knobs.
type Config struct {
	Planner            Planner
	Executor           Executor
	Agents             AgentRunner
	Lifecycle          LifecycleReader
	Bus                Publisher
	Snapshots          SnapshotWriter
	FallbackToMain     bool
	MaxDelegatedGroups int // cap for main_with_delegation, default 2
	PollInterval       time.Duration
}

// Coordinator is the Trio Coordinator.
type Coordinator struct {
	cfg Config
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.MaxDelegatedGroups <= 0 {
		cfg.MaxDelegatedGroups = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Coordinator{cfg: cfg}
}

// AgentOutcome is one mini-agent's contribution to the turn.
type AgentOutcome struct {
	AgentID string
	State   models.AgentState
	Tokens  int
	Elapsed time.Duration
}

// Aggregated summarizes every participant's outcome for the turn.
type Aggregated struct {
	SucceededCount int
	FailedCount    int
	TotalTokens    int
	TotalElapsed   time.Duration
	PerAgent       map[string]AgentOutcome
	Summary        string
}

// Result is the Coordinator's entry-point return value.
type Result struct {
	Response   string
	Strategy   Strategy
	Plan       *models.Plan
	Execution  *executor.ExecutionResult
	Aggregated Aggregated
}

// Execute runs one turn end to end: plan, snapshot, select strategy,
// execute, aggregate. sessionID may be empty, in which case no snapshot is
// written (callers that never construct a session, e.g. tests, opt out this
// way rather than the coordinator inventing one).
func (c *Coordinator) Execute(ctx context.Context, request models.Request, contextSummary string, basePerms models.Permissions, sessionID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Execute")
	defer span.End()

	plan, err := c.cfg.Planner.Plan(ctx, request, contextSummary)
	if err != nil {
		return nil, err
	}
	if plan.IsConversational() {
		return &Result{Response: plan.DirectResponse, Plan: plan, Strategy: StrategyMainOnly}, nil
	}

	if err := c.writeSnapshot(ctx, sessionID, plan, request); err != nil {
		return nil, err
	}

	strategy := SelectStrategy(plan)
	result, err := c.runStrategy(ctx, strategy, plan, basePerms)
	if err != nil && c.cfg.FallbackToMain && strategy != StrategyMainOnly {
		result, err = c.runStrategy(ctx, StrategyMainOnly, plan, basePerms)
		strategy = StrategyMainOnly
	}
	if err != nil {
		return nil, err
	}
	result.Strategy = strategy
	result.Plan = plan
	return result, nil
}

func (c *Coordinator) runStrategy(ctx context.Context, strategy Strategy, plan *models.Plan, basePerms models.Permissions) (*Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.strategy."+string(strategy))
	defer span.End()

	switch strategy {
	case StrategyMainOnly:
		return c.runMainOnly(ctx, plan)
	case StrategyMainWithDelegation:
		return c.runMainWithDelegation(ctx, plan, basePerms)
	case StrategyHybrid:
		return c.runHybrid(ctx, plan, basePerms)
	case StrategyMiniAgentsOnly:
		return c.runMiniAgentsOnly(ctx, plan, basePerms)
	default:
		return c.runMainOnly(ctx, plan)
	}
}

func (c *Coordinator) runMainOnly(ctx context.Context, plan *models.Plan) (*Result, error) {
	exec := c.cfg.Executor.Run(ctx, plan)
	if !exec.OverallSuccess {
		return &Result{Execution: &exec, Response: exec.Response, Aggregated: aggregateExecution(exec)}, models.NewError(models.ErrUpstreamFailure, "plan execution had failures")
	}
	return &Result{Execution: &exec, Response: exec.Response, Aggregated: aggregateExecution(exec)}, nil
}

// runMainWithDelegation runs the full plan through the Executor but first
// peels off up to MaxDelegatedGroups suitable groups (file/edit/search
// groups — anything not command-typed, since commands usually need the
// main session's working directory context) to mini-agents, synthesizing
// via the Executor over the remaining steps plus the delegated groups'
// results.
func (c *Coordinator) runMainWithDelegation(ctx context.Context, plan *models.Plan, basePerms models.Permissions) (*Result, error) {
	groups := GroupSteps(plan.Steps)
	delegated := 0
	outcomes := make(map[string]AgentOutcome)
	delegatedSteps := make(map[string]bool)

	for _, g := range groups {
		if delegated >= c.cfg.MaxDelegatedGroups {
			break
		}
		if g.Type == models.StepCommand {
			continue
		}
		outcome, err := c.runGroupAsAgent(ctx, g, basePerms)
		if err != nil {
			continue // delegation is best-effort at this strategy level
		}
		outcomes[outcome.AgentID] = outcome
		for _, s := range g.Steps {
			delegatedSteps[s.ID] = true
		}
		delegated++
	}

	remaining := &models.Plan{Complexity: plan.Complexity, Parallelizability: plan.Parallelizability}
	for _, s := range plan.Steps {
		if !delegatedSteps[s.ID] {
			remaining.Steps = append(remaining.Steps, s)
		}
	}

	exec := c.cfg.Executor.Run(ctx, remaining)
	agg := aggregateExecution(exec)
	mergeAgentOutcomes(&agg, outcomes)
	return &Result{Execution: &exec, Response: exec.Response, Aggregated: agg}, nil
}

// runGroupsConcurrently converts every step group into a MiniAgentTask,
// runs them all concurrently, and tallies the resulting outcomes. It holds
// no opinion on what happens after — hybrid synthesizes over the result via
// the Executor, mini_agents_only returns it as-is.
func (c *Coordinator) runGroupsConcurrently(ctx context.Context, plan *models.Plan, basePerms models.Permissions) (Aggregated, error) {
	groups := GroupSteps(plan.Steps)
	type outcomeOrErr struct {
		outcome AgentOutcome
		err     error
	}
	results := make(chan outcomeOrErr, len(groups))
	for _, g := range groups {
		g := g
		go func() {
			outcome, err := c.runGroupAsAgent(ctx, g, basePerms)
			results <- outcomeOrErr{outcome, err}
		}()
	}

	outcomes := make(map[string]AgentOutcome)
	var firstErr error
	for i := 0; i < len(groups); i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		outcomes[r.outcome.AgentID] = r.outcome
	}

	agg := Aggregated{PerAgent: outcomes}
	for _, o := range outcomes {
		if o.State == models.AgentCompleted {
			agg.SucceededCount++
		} else {
			agg.FailedCount++
		}
		agg.TotalTokens += o.Tokens
		agg.TotalElapsed += o.Elapsed
	}
	return agg, firstErr
}

// runHybrid converts every independent-enough step group into a
// MiniAgentTask, runs them concurrently, then synthesizes over their
// results via the Executor: a one-step analysis Plan carrying the
// per-agent outcomes, run through C8 so the final response goes through
// the same aggregation path a main_only turn does rather than being
// assembled ad hoc here.
func (c *Coordinator) runHybrid(ctx context.Context, plan *models.Plan, basePerms models.Permissions) (*Result, error) {
	agg, firstErr := c.runGroupsConcurrently(ctx, plan, basePerms)

	if c.cfg.Executor == nil {
		agg.Summary = fmt.Sprintf("%d agents succeeded, %d failed", agg.SucceededCount, agg.FailedCount)
		if agg.FailedCount > 0 && agg.SucceededCount == 0 {
			return &Result{Aggregated: agg, Response: agg.Summary}, firstErr
		}
		return &Result{Aggregated: agg, Response: agg.Summary}, nil
	}

	synthesis := synthesisPlan(agg.PerAgent)
	exec := c.cfg.Executor.Run(ctx, synthesis)
	agg.Summary = exec.Response

	if agg.FailedCount > 0 && agg.SucceededCount == 0 {
		return &Result{Execution: &exec, Aggregated: agg, Response: agg.Summary}, firstErr
	}
	return &Result{Execution: &exec, Aggregated: agg, Response: agg.Summary}, nil
}

// runMiniAgentsOnly converts the entire plan into grouped MiniAgentTasks
// and aggregates, with no Executor involvement at all — distinct from
// hybrid, which hands the same kind of aggregated outcome to C8 for a
// final synthesis pass.
func (c *Coordinator) runMiniAgentsOnly(ctx context.Context, plan *models.Plan, basePerms models.Permissions) (*Result, error) {
	agg, firstErr := c.runGroupsConcurrently(ctx, plan, basePerms)
	agg.Summary = fmt.Sprintf("%d agents succeeded, %d failed", agg.SucceededCount, agg.FailedCount)

	if agg.FailedCount > 0 && agg.SucceededCount == 0 {
		return &Result{Aggregated: agg, Response: agg.Summary}, firstErr
	}
	return &Result{Aggregated: agg, Response: agg.Summary}, nil
}

// synthesisPlan builds the single-step analysis Plan runHybrid hands to
// the Executor once every delegated group has reported back. The step
// carries no tool: it exists to let C8 produce its usual one-line summary
// over the agent outcomes rather than duplicating that formatting here.
func synthesisPlan(outcomes map[string]AgentOutcome) *models.Plan {
	ids := make([]string, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &models.Plan{Steps: []models.Step{{
		ID:          "synthesis",
		Description: "synthesize mini-agent outcomes",
		Kind:        models.StepAnalysis,
		Args:        map[string]any{"agentIds": ids},
	}}}
}

// runGroupAsAgent spawns one StepGroup as a mini-agent and blocks until it
// reaches a terminal state.
func (c *Coordinator) runGroupAsAgent(ctx context.Context, g StepGroup, basePerms models.Permissions) (AgentOutcome, error) {
	perms := basePerms
	perms.Allowed = g.AllowedTools
	perms.DangerousOperations = false

	task := models.MiniAgentTask{
		Type:          string(g.Type),
		Prompt:        groupPrompt(g),
		MaxIterations: len(g.Steps) + 1,
		Priority:      models.PriorityNormal,
	}

	start := time.Now()
	agentID, err := c.cfg.Agents.Spawn(ctx, task, perms)
	if err != nil {
		return AgentOutcome{}, err
	}

	for {
		inst, ok := c.cfg.Lifecycle.Get(agentID)
		if ok && inst.State.IsTerminal() {
			return AgentOutcome{
				AgentID: agentID,
				State:   inst.State,
				Tokens:  inst.Counters.Tokens,
				Elapsed: time.Since(start),
			}, nil
		}
		select {
		case <-ctx.Done():
			return AgentOutcome{AgentID: agentID, State: models.AgentCancelled, Elapsed: time.Since(start)}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func groupPrompt(g StepGroup) string {
	s := fmt.Sprintf("Complete %d %s step(s): ", len(g.Steps), g.Type)
	for i, step := range g.Steps {
		if i > 0 {
			s += "; "
		}
		s += step.Description
	}
	return s
}

func aggregateExecution(exec executor.ExecutionResult) Aggregated {
	agg := Aggregated{PerAgent: map[string]AgentOutcome{}}
	for _, r := range exec.StepResults {
		switch {
		case r.Skipped:
			agg.FailedCount++
		case r.Result.Success:
			agg.SucceededCount++
		default:
			agg.FailedCount++
		}
		agg.TotalElapsed += time.Duration(r.Result.DurationMs) * time.Millisecond
	}
	agg.Summary = exec.Response
	return agg
}

// writeSnapshot records the plan produced for this turn before any of its
// steps run, per §4.11's "write a Snapshot after the plan is produced but
// before execution" — the replay-on-abnormal-termination invariant depends
// on this snapshot existing even if the turn never reaches a response. A
// nil Snapshots collaborator or empty sessionID is a no-op, not an error:
// not every caller threads a session through the coordinator.
func (c *Coordinator) writeSnapshot(ctx context.Context, sessionID string, plan *models.Plan, request models.Request) error {
	if c.cfg.Snapshots == nil || sessionID == "" {
		return nil
	}
	latest, err := c.cfg.Snapshots.LatestSnapshot(ctx, sessionID)
	if err != nil {
		return models.WrapError(models.ErrInternal, "load latest snapshot", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return models.WrapError(models.ErrInternal, "encode plan for snapshot", err)
	}
	snapshot := &models.Snapshot{
		SessionID:      sessionID,
		SequenceNumber: sessions.NextSequenceNumber(latest),
		EphemeralState: string(planJSON),
		LastCommand:    request.Text,
	}
	if err := c.cfg.Snapshots.AppendSnapshot(ctx, snapshot); err != nil {
		return models.WrapError(models.ErrInternal, "append snapshot", err)
	}
	return nil
}

func mergeAgentOutcomes(agg *Aggregated, outcomes map[string]AgentOutcome) {
	if agg.PerAgent == nil {
		agg.PerAgent = map[string]AgentOutcome{}
	}
	for id, o := range outcomes {
		agg.PerAgent[id] = o
		if o.State == models.AgentCompleted {
			agg.SucceededCount++
		} else {
			agg.FailedCount++
		}
		agg.TotalTokens += o.Tokens
		agg.TotalElapsed += o.Elapsed
	}
}
