package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/confirm"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
)

// WorkflowService exposes stored workflow state for inspection and
// out-of-band cancellation.
type WorkflowService struct {
	store   statestore.Store
	emitter *Emitter
	log     *slog.Logger
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(store statestore.Store, emitter *Emitter, log *slog.Logger) *WorkflowService {
	return &WorkflowService{store: store, emitter: emitter, log: log}
}

// Get returns the persisted state for a session.
func (s *WorkflowService) Get(ctx context.Context, sessionID string) (*workflow.State, error) {
	return s.store.GetState(ctx, sessionID)
}

// ListSuspended returns workflows parked on a confirmation, oldest first.
func (s *WorkflowService) ListSuspended(ctx context.Context, limit int) ([]workflow.State, error) {
	return s.store.ListSuspended(ctx, limit)
}

// Cancel aborts an active or suspended workflow. Completed results and
// already-deducted credit stay untouched; remaining steps are dropped
// and never charged.
func (s *WorkflowService) Cancel(ctx context.Context, sessionID, reason string) (*workflow.State, error) {
	st, err := s.store.GetState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if st.Status.IsTerminal() {
		return nil, fmt.Errorf("workflow %s already %s: %w", sessionID, st.Status, domain.ErrConflict)
	}

	if reason == "" {
		reason = "cancelled by operator"
	}
	st.Plan = st.Plan[:st.Cursor]
	st.Cancel(reason)

	if err := s.store.SaveState(ctx, st); err != nil {
		return nil, fmt.Errorf("persist cancellation %s: %w", sessionID, err)
	}

	s.log.Info("workflow cancelled", "session_id", sessionID, "reason", reason)
	s.emitter.Emit(ctx, st, event.TypeCancelled, messagequeue.DecisionPayload{
		Decision: string(confirm.Cancelled),
		Reason:   reason,
	})
	return st, nil
}
