package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
)

// Planner executes action plans one step per invocation. Each call is a
// pure state transition on the workflow state: resolve the step's
// parameter references, gate on its dependencies, run it through the
// credit meter, append exactly one result, advance the cursor. Because
// nothing is held between invocations, a crash loses at most the step
// that was in flight.
type Planner struct {
	registry *tooling.Registry
	meter    *Meter
	emitter  *Emitter
	log      *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(registry *tooling.Registry, meter *Meter, emitter *Emitter, log *slog.Logger) *Planner {
	return &Planner{registry: registry, meter: meter, emitter: emitter, log: log}
}

// ExecuteNext runs the step at the cursor. A nil error with a failed
// result means the failure is scoped to that step and the plan may
// continue; a non-nil error is workflow-level and the caller must stop
// the plan. Steps whose dependencies did not complete successfully
// fail closed: no tool call, no credit check, zero consumption.
func (p *Planner) ExecuteNext(ctx context.Context, st *workflow.State) (*action.StepResult, error) {
	step, ok := st.NextStep()
	if !ok {
		return nil, fmt.Errorf("execute step: cursor %d past plan end", st.Cursor)
	}

	result := action.StepResult{
		StepID:    step.ID,
		Tool:      step.Tool,
		StartedAt: time.Now().UTC(),
	}
	p.emitter.Emit(ctx, st, event.TypeStepStarted, messagequeue.StepPayload{
		StepID: step.ID, Tool: step.Tool,
	})

	if unmet := action.UnmetDependencies(*step, st.Results); len(unmet) > 0 {
		p.log.Warn("step dependency unmet",
			"session_id", st.SessionID,
			"step_id", step.ID,
			"tool", step.Tool,
			"unmet", unmet)
		return p.failStep(ctx, st, result,
			fmt.Sprintf("step %s skipped: required step %s did not complete successfully", step.ID, strings.Join(unmet, ", "))), nil
	}

	def, err := p.registry.Get(step.Tool)
	if err != nil {
		p.log.Warn("unknown tool in plan",
			"session_id", st.SessionID,
			"step_id", step.ID,
			"tool", step.Tool)
		return p.failStep(ctx, st, result,
			fmt.Sprintf("step %s skipped: tool %q is not available", step.ID, step.Tool)), nil
	}

	params, misses := action.ResolveParams(step.Params, st.Results)
	for _, miss := range misses {
		p.log.Warn("parameter reference resolved to null",
			"session_id", st.SessionID,
			"step_id", step.ID,
			"reference", miss)
	}

	out, err := p.meter.Run(ctx, st, step, def.Handler, params)
	result.Attempts = out.Attempts
	if err != nil {
		p.log.Error("step execution failed",
			"session_id", st.SessionID,
			"step_id", step.ID,
			"tool", step.Tool,
			"attempts", out.Attempts,
			"error", err)

		result = *p.failStep(ctx, st, result, sanitizeStepError(step, err))

		// Validation failures are scoped to the step; everything else
		// (credit refusal, ledger outage, exhausted retries, unexpected
		// tool errors) aborts the rest of the plan.
		var vErr *tooling.ValidationError
		if errors.As(err, &vErr) {
			return &result, nil
		}
		return &result, err
	}

	result.Success = true
	result.Data = out.Data
	result.CreditsConsumed = out.Credits
	finished := time.Now().UTC()
	result.FinishedAt = &finished
	st.RecordResult(result)

	p.emitter.Emit(ctx, st, event.TypeStepCompleted, messagequeue.StepPayload{
		StepID: step.ID, Tool: step.Tool, Success: true,
		CreditsConsumed: out.Credits, Attempts: out.Attempts,
	})
	p.log.Info("step completed",
		"session_id", st.SessionID,
		"step_id", step.ID,
		"tool", step.Tool,
		"attempts", out.Attempts,
		"credits", out.Credits)
	return &result, nil
}

// failStep appends a failed result for the current step and advances
// the cursor. Failed steps never consume credit.
func (p *Planner) failStep(ctx context.Context, st *workflow.State, result action.StepResult, message string) *action.StepResult {
	result.Success = false
	result.Error = message
	result.CreditsConsumed = 0
	finished := time.Now().UTC()
	result.FinishedAt = &finished
	st.RecordResult(result)

	p.emitter.Emit(ctx, st, event.TypeStepFailed, messagequeue.StepPayload{
		StepID: result.StepID, Tool: result.Tool,
		Attempts: result.Attempts, Error: message,
	})
	return &result
}

// sanitizeStepError renders a failure for the user: what refused or
// broke, without internal codes or wrapped transport detail. The full
// error stays in the logs.
func sanitizeStepError(step *action.Step, err error) string {
	var insufficient *credit.InsufficientError
	if errors.As(err, &insufficient) {
		return fmt.Sprintf("step %s needs %d credits but only %d are available",
			step.ID, insufficient.Required, insufficient.Available)
	}

	var vErr *tooling.ValidationError
	if errors.As(err, &vErr) {
		return fmt.Sprintf("step %s has invalid parameters for %s", step.ID, step.Tool)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("step %s (%s) ran out of time", step.ID, step.Tool)
	}

	return fmt.Sprintf("step %s (%s) failed", step.ID, step.Tool)
}
