package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/confirm"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/recognizer"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
	"github.com/zhuermu/zmead-sub004/internal/resilience"
)

// Assistant is the turn driver: it receives a user message, decides
// whether it resolves a pending confirmation or opens a new turn, and
// hands the resulting workflow state to the router. One session runs
// one turn at a time; concurrent turns on the same session lose the
// optimistic version race at persist time.
type Assistant struct {
	recognizer recognizer.Recognizer
	store      statestore.Store
	router     *Router
	gate       *Gate
	emitter    *Emitter
	retrier    *resilience.Retrier
	log        *slog.Logger
}

// NewAssistant creates an Assistant.
func NewAssistant(rec recognizer.Recognizer, store statestore.Store, router *Router, gate *Gate, emitter *Emitter, retrier *resilience.Retrier, log *slog.Logger) *Assistant {
	return &Assistant{
		recognizer: rec,
		store:      store,
		router:     router,
		gate:       gate,
		emitter:    emitter,
		retrier:    retrier,
		log:        log,
	}
}

// HandleMessage processes one user message for the session. A message
// arriving while the session awaits a confirmation is treated as the
// confirmation reply; anything else starts a fresh turn through the
// intent recognizer.
func (a *Assistant) HandleMessage(ctx context.Context, userID, sessionID, text string) (*Reply, error) {
	prior, err := a.store.GetState(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if prior != nil && prior.Status == workflow.StatusAwaitingConfirmation {
		return a.resolveConfirmation(ctx, prior, text)
	}

	var in *intent.Intent
	err = a.retrier.Do(ctx, "recognize intent", func(ctx context.Context) error {
		recognized, recErr := a.recognizer.Recognize(ctx, recognizer.Request{
			SessionID: sessionID,
			UserID:    userID,
			Text:      text,
		})
		if recErr != nil {
			return recErr
		}
		in = recognized
		return nil
	})
	if err != nil {
		a.log.Error("intent recognition failed",
			"session_id", sessionID,
			"error", err)
		return &Reply{
			SessionID: sessionID,
			Text:      "I'm having trouble understanding requests right now. Please try again in a moment.",
		}, nil
	}

	st := workflow.NewState(sessionID, userID, uuid.NewString(), *in)
	if prior != nil {
		// A finished (or crashed) turn's state may still occupy the
		// session row; the new turn overwrites it under its version.
		st.Version = prior.Version
	}

	a.emitter.Emit(ctx, st, event.TypeTurnStarted, messagequeue.TurnPayload{
		Intent: st.Intent.Name,
		Steps:  len(st.Plan),
	})

	return a.router.RunTurn(ctx, st)
}

// ResolveConfirmation applies a decision reply to the session's pending
// confirmation. Used by the explicit confirmation endpoint; free-text
// messages on a suspended session take the same path through
// HandleMessage.
func (a *Assistant) ResolveConfirmation(ctx context.Context, sessionID, text string) (*Reply, error) {
	st, err := a.store.GetState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if st.Status != workflow.StatusAwaitingConfirmation {
		return nil, fmt.Errorf("session %s has no pending confirmation: %w", sessionID, domain.ErrConflict)
	}
	return a.resolveConfirmation(ctx, st, text)
}

func (a *Assistant) resolveConfirmation(ctx context.Context, st *workflow.State, text string) (*Reply, error) {
	description := ""
	if st.Pending != nil {
		description = st.Pending.Description
	}

	switch a.gate.Resolve(ctx, st, text) {
	case confirm.Confirmed:
		// The suspended plan picks up exactly where it stopped.
		return a.router.RunTurn(ctx, st)

	case confirm.Cancelled:
		if err := a.store.SaveState(ctx, st); err != nil {
			return nil, fmt.Errorf("persist cancellation %s: %w", st.SessionID, err)
		}
		return &Reply{
			SessionID:       st.SessionID,
			TurnID:          st.TurnID,
			Text:            summarize(st),
			Results:         st.Results,
			CreditsConsumed: st.CreditsConsumed(),
		}, nil

	default:
		// Unclear: re-ask without consuming the pending confirmation.
		return &Reply{
			SessionID:            st.SessionID,
			TurnID:               st.TurnID,
			RequiresConfirmation: true,
			Text: fmt.Sprintf(
				"I still need a clear yes or no for this action:\n- %s\nReply \"confirm\" (确认) to proceed or \"cancel\" (取消) to stop.",
				description),
		}, nil
	}
}
