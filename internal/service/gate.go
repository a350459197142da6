package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/confirm"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/notifier"
)

// Gate suspends a workflow before its first high-risk step and resolves
// the user's follow-up reply. Suspension is persistence, not blocking:
// the gate marks the state awaiting confirmation and the turn returns;
// the confirmation arrives as a fresh request against the stored state.
type Gate struct {
	ttl     time.Duration
	emitter *Emitter
	notify  *notifier.Fanout
	log     *slog.Logger
	now     func() time.Time
}

// NewGate creates a Gate. ttl bounds how long a pending confirmation
// stays answerable; past it the pending action is treated as cancelled.
func NewGate(ttl time.Duration, emitter *Emitter, notify *notifier.Fanout, log *slog.Logger) *Gate {
	return &Gate{
		ttl:     ttl,
		emitter: emitter,
		notify:  notify,
		log:     log,
		now:     time.Now,
	}
}

// Intercept reports whether the step must suspend for confirmation,
// with the prompt description. A plan the user has already approved
// passes every subsequent step: the decision is one per plan.
func (g *Gate) Intercept(st *workflow.State, step *action.Step) (string, bool) {
	if st.Confirmed != nil {
		return "", false
	}
	needed, description := confirm.RequiresConfirmation(*step)
	if !needed {
		return "", false
	}
	return description, true
}

// Suspend parks the workflow on the given step and announces the
// pending confirmation.
func (g *Gate) Suspend(ctx context.Context, st *workflow.State, step *action.Step, description string) {
	now := g.now().UTC()
	pending := workflow.PendingConfirmation{
		StepID:      step.ID,
		Tool:        step.Tool,
		Description: description,
		RequestedAt: now,
		ExpiresAt:   now.Add(g.ttl),
	}
	st.Suspend(pending)

	g.log.Info("workflow suspended for confirmation",
		"session_id", st.SessionID,
		"step_id", step.ID,
		"tool", step.Tool)
	g.emitter.Emit(ctx, st, event.TypeSuspended, messagequeue.SuspensionPayload{
		StepID:      step.ID,
		Tool:        step.Tool,
		Description: description,
		ExpiresAt:   pending.ExpiresAt.Format(time.RFC3339),
	})
	if g.notify != nil {
		g.notify.Send(ctx, notifier.Notification{
			Title:     "Confirmation required",
			Message:   description,
			Level:     "warning",
			Source:    string(event.TypeSuspended),
			SessionID: st.SessionID,
		})
	}
}

// Resolve classifies the user's reply against the pending confirmation
// and applies the decision to the state. An expired confirmation is
// cancelled regardless of the reply; an unclear reply changes nothing
// so the caller re-asks.
func (g *Gate) Resolve(ctx context.Context, st *workflow.State, text string) confirm.Decision {
	if st.Pending != nil && st.Pending.Expired(g.now()) {
		g.log.Info("pending confirmation expired",
			"session_id", st.SessionID,
			"step_id", st.Pending.StepID)
		g.cancel(ctx, st, "confirmation expired")
		return confirm.Cancelled
	}

	decision := confirm.Classify(text)
	switch decision {
	case confirm.Confirmed:
		st.Decide(true)
		st.Resume()
		g.log.Info("workflow confirmed by user", "session_id", st.SessionID)
		g.emitter.Emit(ctx, st, event.TypeResumed, messagequeue.DecisionPayload{
			Decision: string(confirm.Confirmed),
		})
	case confirm.Cancelled:
		g.cancel(ctx, st, "cancelled by user")
	}
	return decision
}

func (g *Gate) cancel(ctx context.Context, st *workflow.State, reason string) {
	st.Decide(false)
	st.Plan = st.Plan[:st.Cursor]
	st.Cancel(reason)
	g.emitter.Emit(ctx, st, event.TypeCancelled, messagequeue.DecisionPayload{
		Decision: string(confirm.Cancelled),
		Reason:   reason,
	})
}
