package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
)

// Reply is the produced boundary of one turn, handed to the transport
// layer as-is.
type Reply struct {
	SessionID            string              `json:"session_id"`
	TurnID               string              `json:"turn_id"`
	Text                 string              `json:"response_text"`
	Success              bool                `json:"success"`
	Results              []action.StepResult `json:"tool_results,omitempty"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	CreditsConsumed      int64               `json:"credits_consumed"`
	Error                string              `json:"error,omitempty"`
}

// phase is one state of the turn machine. The set is closed; the driver
// loop switches over it with a default arm that fails loudly, so an
// impossible phase is a bug report, not silent misbehavior.
type phase int

const (
	phaseRoute phase = iota
	phaseExec
	phaseConfirm
	phaseRespond
	phasePersist
	phaseEnd
)

// Router drives one turn through the phase machine:
// ROUTE -> EXEC -> CONFIRM -> RESPOND -> PERSIST -> END.
// Informational intents skip straight from ROUTE to RESPOND; EXEC loops
// the planner one step at a time until the plan drains, a workflow
// error stops it, or the gate demands a confirmation.
type Router struct {
	planner     *Planner
	gate        *Gate
	store       statestore.Store
	emitter     *Emitter
	maxSteps    int
	turnTimeout time.Duration
	log         *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(planner *Planner, gate *Gate, store statestore.Store, emitter *Emitter, maxSteps int, turnTimeout time.Duration, log *slog.Logger) *Router {
	return &Router{
		planner:     planner,
		gate:        gate,
		store:       store,
		emitter:     emitter,
		maxSteps:    maxSteps,
		turnTimeout: turnTimeout,
		log:         log,
	}
}

// turn carries the in-flight state between phases.
type turn struct {
	st          *workflow.State
	reply       *Reply
	pendingStep *action.Step
	pendingDesc string
}

// RunTurn executes one turn to completion or suspension. The turn
// timeout bounds the whole plan; on expiry completed results and
// already-deducted credit stay intact.
func (r *Router) RunTurn(ctx context.Context, st *workflow.State) (*Reply, error) {
	if r.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.turnTimeout)
		defer cancel()
	}

	t := &turn{
		st:    st,
		reply: &Reply{SessionID: st.SessionID, TurnID: st.TurnID},
	}

	for ph := phaseRoute; ph != phaseEnd; {
		var err error
		switch ph {
		case phaseRoute:
			ph = r.route(ctx, t)
		case phaseExec:
			ph = r.exec(ctx, t)
		case phaseConfirm:
			ph = r.confirm(ctx, t)
		case phaseRespond:
			ph = r.respond(ctx, t)
		case phasePersist:
			ph, err = r.persist(ctx, t)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("turn %s: impossible phase %d", st.TurnID, ph)
		}
	}

	return t.reply, nil
}

// route dispatches on the recognized intent kind. Informational intents
// answer directly; task intents admit the plan and move to execution.
func (r *Router) route(ctx context.Context, t *turn) phase {
	st := t.st

	switch st.Intent.Kind {
	case intent.KindClarification:
		t.reply.Text = st.Intent.Clarification
		if t.reply.Text == "" {
			t.reply.Text = "Could you give me a bit more detail about what you want to do?"
		}
		return phaseRespond

	case intent.KindQuery:
		t.reply.Text = st.Intent.Answer
		if t.reply.Text == "" {
			t.reply.Text = "I don't have an answer for that yet."
		}
		return phaseRespond

	case intent.KindTask:
		if len(st.Plan) == 0 {
			t.reply.Text = "I understood the request but there is nothing to execute."
			return phaseRespond
		}

		// Resumed plans were admitted on their first turn.
		if st.Cursor > 0 || len(st.Results) > 0 {
			return phaseExec
		}

		if err := action.ValidatePlan(st.Plan, r.maxSteps); err != nil {
			if errors.Is(err, action.ErrUnknownModule) {
				// Degrade, never fail: a module this build does not know
				// yields a warning reply instead of an execution attempt.
				r.log.Warn("plan names unknown module",
					"session_id", st.SessionID,
					"error", err)
				st.Plan = nil
				t.reply.Text = "Part of that request needs a capability this assistant does not support yet, so nothing was executed."
				return phaseRespond
			}
			r.log.Warn("plan rejected",
				"session_id", st.SessionID,
				"error", err)
			st.Fail(err)
			t.reply.Text = "That request could not be turned into a runnable plan."
			return phaseRespond
		}
		return phaseExec

	default:
		r.log.Warn("unrecognized intent kind",
			"session_id", st.SessionID,
			"kind", st.Intent.Kind)
		t.reply.Text = "I couldn't work out what to do with that request."
		return phaseRespond
	}
}

// exec drains the plan one step at a time. The gate is consulted before
// each step's first side effect; a workflow-level error stops the plan
// with everything completed so far preserved.
func (r *Router) exec(ctx context.Context, t *turn) phase {
	st := t.st

	for !st.Exhausted() {
		if ctx.Err() != nil {
			st.Fail(workflow.ErrTurnTimeout)
			return phaseRespond
		}

		step, _ := st.NextStep()
		if desc, needed := r.gate.Intercept(st, step); needed {
			t.pendingStep = step
			t.pendingDesc = desc
			return phaseConfirm
		}

		if _, err := r.planner.ExecuteNext(ctx, st); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				st.Fail(workflow.ErrTurnTimeout)
			} else {
				st.Fail(err)
			}
			return phaseRespond
		}
	}

	return phaseRespond
}

// confirm suspends the workflow on the gated step and shapes the
// confirmation request reply.
func (r *Router) confirm(ctx context.Context, t *turn) phase {
	r.gate.Suspend(ctx, t.st, t.pendingStep, t.pendingDesc)

	t.reply.RequiresConfirmation = true
	t.reply.Text = fmt.Sprintf(
		"This action needs your explicit confirmation before I run it:\n- %s\nReply \"confirm\" (确认) to proceed or \"cancel\" (取消) to stop.",
		t.pendingDesc)
	t.reply.Results = t.st.Results
	t.reply.CreditsConsumed = t.st.CreditsConsumed()
	return phasePersist
}

// respond finalizes the workflow status and builds the reply payload.
func (r *Router) respond(ctx context.Context, t *turn) phase {
	st := t.st

	if st.Status == workflow.StatusActive {
		st.Complete()
	}

	t.reply.Results = st.Results
	t.reply.CreditsConsumed = st.CreditsConsumed()
	t.reply.Error = st.LastError
	t.reply.Success = st.Status == workflow.StatusCompleted && st.LastError == "" && allSucceeded(st.Results)

	if t.reply.Text == "" {
		t.reply.Text = summarize(st)
	}

	succeeded := 0
	for i := range st.Results {
		if st.Results[i].Success {
			succeeded++
		}
	}
	outcome := messagequeue.OutcomePayload{
		Steps:           len(st.Results),
		Succeeded:       succeeded,
		CreditsConsumed: st.CreditsConsumed(),
		Error:           st.LastError,
	}
	switch st.Status {
	case workflow.StatusCompleted:
		r.emitter.Emit(ctx, st, event.TypeCompleted, outcome)
	case workflow.StatusFailed:
		r.emitter.Emit(ctx, st, event.TypeFailed, outcome)
	}

	return phasePersist
}

// persist writes the state. Optimistic versioning surfaces concurrent
// turns on the same session as a conflict for the transport layer.
func (r *Router) persist(ctx context.Context, t *turn) (phase, error) {
	if err := r.store.SaveState(ctx, t.st); err != nil {
		return phaseEnd, fmt.Errorf("persist workflow %s: %w", t.st.SessionID, err)
	}
	return phaseEnd, nil
}

func allSucceeded(results []action.StepResult) bool {
	for i := range results {
		if !results[i].Success {
			return false
		}
	}
	return true
}

// summarize renders a human reply for a finished plan. Per-step errors
// are already sanitized when the results are appended.
func summarize(st *workflow.State) string {
	if st.Status == workflow.StatusCancelled {
		return "Understood — I've cancelled the remaining actions. Nothing further will be charged."
	}

	if len(st.Results) == 0 {
		if st.LastError != "" {
			return "I couldn't start on that request. Please try again in a moment."
		}
		return "Nothing needed to be executed for that request."
	}

	var b strings.Builder
	succeeded := 0
	for i := range st.Results {
		if st.Results[i].Success {
			succeeded++
		}
	}

	switch {
	case st.Status == workflow.StatusFailed && st.LastError == workflow.ErrTurnTimeout.Error():
		fmt.Fprintf(&b, "I ran out of time after finishing %d of %d steps. Completed work and charges are preserved.", succeeded, len(st.Plan))
	case st.Status == workflow.StatusFailed:
		fmt.Fprintf(&b, "I completed %d of %d steps before hitting a problem.", succeeded, len(st.Plan))
	case succeeded == len(st.Results):
		fmt.Fprintf(&b, "Done — all %d steps completed, %d credits used.", succeeded, st.CreditsConsumed())
	default:
		fmt.Fprintf(&b, "Finished with %d of %d steps successful, %d credits used.", succeeded, len(st.Results), st.CreditsConsumed())
	}

	for i := range st.Results {
		if !st.Results[i].Success && st.Results[i].Error != "" {
			fmt.Fprintf(&b, "\n- %s", st.Results[i].Error)
		}
	}
	return b.String()
}
