// Package executor implements the Executor (C8): it walks a Plan's steps
// in topological order, running independent steps through a
// bounded-parallelism pool, composing each step's input from its own args
// plus the outputs of its dependencies, and short-circuiting dependents of
// a failed step.
package executor

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trioctl/trio/pkg/models"
)

var tracer = otel.Tracer("trioctl/trio/executor")

// ToolRunner abstracts the Tool Registry (C1), already wired to the
// Approval Gate (C2).
type ToolRunner interface {
	Execute(ctx context.Context, call models.ToolCall) models.ToolResult
}

// StepResult is one step's outcome, including steps that never ran because
// an upstream dependency failed.
type StepResult struct {
	StepID     string
	Result     models.ToolResult
	Skipped    bool
	SkipReason string // upstream step id that caused the skip
}

// ExecutionResult aggregates every step's outcome for one Plan run.
type ExecutionResult struct {
	StepResults    []StepResult
	OverallSuccess bool
	Response       string
}

// Config sizes the bounded-parallelism pool.
type Config struct {
	MaxConcurrentSteps int
}

// DefaultConfig caps concurrency at 4, per §4.8.
func DefaultConfig() Config {
	return Config{MaxConcurrentSteps: 4}
}

// Executor is the Executor component.
type Executor struct {
	cfg   Config
	tools ToolRunner
}

// New constructs an Executor bound to a ToolRunner.
func New(cfg Config, tools ToolRunner) *Executor {
	if cfg.MaxConcurrentSteps <= 0 {
		cfg.MaxConcurrentSteps = 4
	}
	return &Executor{cfg: cfg, tools: tools}
}

// Run walks plan in topological order (steps already listed in an order
// consistent with their declared dependencies, per Plan.ValidateDAG),
// executing each wave of mutually-independent, not-yet-failed steps
// concurrently under the configured cap.
func (e *Executor) Run(ctx context.Context, plan *models.Plan) ExecutionResult {
	ctx, span := tracer.Start(ctx, "executor.Run", trace.WithAttributes(attribute.Int("step_count", len(plan.Steps))))
	defer span.End()

	results := make(map[string]StepResult, len(plan.Steps))
	var mu sync.Mutex

	remaining := make([]models.Step, len(plan.Steps))
	copy(remaining, plan.Steps)

	for len(remaining) > 0 {
		ready, rest := partitionReady(remaining, results)
		if len(ready) == 0 {
			// Every remaining step depends on something not yet resolved —
			// only possible if all remaining steps depend (directly or
			// transitively) on a failed/skipped step. Skip them all.
			for _, s := range rest {
				results[s.ID] = StepResult{StepID: s.ID, Skipped: true, SkipReason: firstFailedDependency(s, results)}
			}
			break
		}

		sem := make(chan struct{}, e.cfg.MaxConcurrentSteps)
		var wg sync.WaitGroup
		for _, step := range ready {
			step := step
			if skip, reason := shouldSkip(step, results); skip {
				mu.Lock()
				results[step.ID] = StepResult{StepID: step.ID, Skipped: true, SkipReason: reason}
				mu.Unlock()
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				stepCtx, stepSpan := tracer.Start(ctx, "executor.step",
					trace.WithAttributes(
						attribute.String("step.id", step.ID),
						attribute.String("step.tool", step.Tool),
						attribute.String("step.kind", string(step.Kind)),
					))
				defer stepSpan.End()
				call := composeCall(step, results, &mu)
				var result models.ToolResult
				if step.Tool == "" {
					// An analysis step names no tool (validateStructure
					// only requires one for Kind != StepAnalysis); there is
					// nothing to invoke, so it succeeds immediately with
					// its description as output.
					result = models.Ok(step.Description, 0)
				} else {
					result = e.tools.Execute(stepCtx, call)
				}
				if !result.Success {
					stepSpan.RecordError(fmt.Errorf("%s", result.Error))
				}
				mu.Lock()
				results[step.ID] = StepResult{StepID: step.ID, Result: result}
				mu.Unlock()
			}()
		}
		wg.Wait()
		remaining = rest
	}

	return aggregate(plan, results)
}

// partitionReady splits steps into those whose every dependency already
// has a recorded result, and the rest.
func partitionReady(steps []models.Step, results map[string]StepResult) (ready, rest []models.Step) {
	for _, s := range steps {
		allResolved := true
		for _, dep := range s.DependsOn {
			if _, ok := results[dep]; !ok {
				allResolved = false
				break
			}
		}
		if allResolved {
			ready = append(ready, s)
		} else {
			rest = append(rest, s)
		}
	}
	return ready, rest
}

// shouldSkip reports whether step must be skipped because one of its
// direct dependencies failed or was itself skipped.
func shouldSkip(step models.Step, results map[string]StepResult) (bool, string) {
	for _, dep := range step.DependsOn {
		r, ok := results[dep]
		if !ok {
			continue
		}
		if r.Skipped {
			return true, r.SkipReason
		}
		if !r.Result.Success {
			return true, dep
		}
	}
	return false, ""
}

// firstFailedDependency finds the dependency (direct or transitive) that
// caused step to become unreachable, for a readable skip reason.
func firstFailedDependency(step models.Step, results map[string]StepResult) string {
	for _, dep := range step.DependsOn {
		if r, ok := results[dep]; ok && (r.Skipped || !r.Result.Success) {
			return dep
		}
	}
	if len(step.DependsOn) > 0 {
		return step.DependsOn[0]
	}
	return "unknown"
}

// composeCall builds a step's ToolCall from its own args plus the outputs
// of its dependencies, addressed by step id under a "deps" key so a tool
// can look up "deps.<stepId>.output" if it needs upstream results.
func composeCall(step models.Step, results map[string]StepResult, mu *sync.Mutex) models.ToolCall {
	args := make(map[string]any, len(step.Args)+1)
	for k, v := range step.Args {
		args[k] = v
	}
	if len(step.DependsOn) > 0 {
		mu.Lock()
		deps := make(map[string]any, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if r, ok := results[dep]; ok {
				deps[dep] = r.Result.Output
			}
		}
		mu.Unlock()
		args["deps"] = deps
	}
	return models.ToolCall{ID: step.ID, Name: step.Tool, Args: args}
}

// aggregate computes overall success and a one-line human-readable summary.
func aggregate(plan *models.Plan, results map[string]StepResult) ExecutionResult {
	ordered := make([]StepResult, 0, len(plan.Steps))
	overallSuccess := true
	succeeded, failed, skipped := 0, 0, 0
	for _, s := range plan.Steps {
		r := results[s.ID]
		ordered = append(ordered, r)
		switch {
		case r.Skipped:
			skipped++
			overallSuccess = false
		case r.Result.Success:
			succeeded++
		default:
			failed++
			overallSuccess = false
		}
	}
	return ExecutionResult{
		StepResults:    ordered,
		OverallSuccess: overallSuccess,
		Response:       summarize(succeeded, failed, skipped),
	}
}

func summarize(succeeded, failed, skipped int) string {
	if failed == 0 && skipped == 0 {
		return "all steps completed successfully"
	}
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped", succeeded, failed, skipped)
}
