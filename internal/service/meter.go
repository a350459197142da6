package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/ledger"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/notifier"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
	"github.com/zhuermu/zmead-sub004/internal/resilience"
)

// Meter runs the credit protocol around one tool execution:
// estimate, check, execute, deduct. The check is a non-binding balance
// test, never a hold; the deduction charges the actual consumed amount
// under a journaled idempotency key so a charge lands at most once per
// step, whatever the retries and resumes in between.
type Meter struct {
	ledger    ledger.Ledger
	store     statestore.Store
	estimator *credit.Estimator
	retrier   *resilience.Retrier
	emitter   *Emitter
	notify    *notifier.Fanout
	log       *slog.Logger
}

// NewMeter creates a Meter.
func NewMeter(lg ledger.Ledger, store statestore.Store, estimator *credit.Estimator, retrier *resilience.Retrier, emitter *Emitter, notify *notifier.Fanout, log *slog.Logger) *Meter {
	return &Meter{
		ledger:    lg,
		store:     store,
		estimator: estimator,
		retrier:   retrier,
		emitter:   emitter,
		notify:    notify,
		log:       log,
	}
}

// Metered is the outcome of a metered execution. Attempts counts tool
// invocations including retries; Credits is the amount charged (or
// meant to be charged when the deduction itself failed).
type Metered struct {
	Data     any
	Credits  int64
	Attempts int
}

// Run executes the full protocol for one step. The returned error is
// nil only when the tool executed successfully; a failed deduction
// after successful execution is logged and journaled, never surfaced
// as a step failure.
func (m *Meter) Run(ctx context.Context, st *workflow.State, step *action.Step, handler tooling.Handler, params map[string]json.RawMessage) (Metered, error) {
	out := Metered{}

	estimate := m.estimator.Estimate(step.Tool, params)

	// Check: a refusal (insufficient balance) is terminal and skips the
	// tool entirely; an unreachable ledger is retried per policy.
	err := m.retrier.Do(ctx, "ledger check", func(ctx context.Context) error {
		return m.ledger.Check(ctx, st.UserID, estimate)
	})
	if err != nil {
		return out, fmt.Errorf("credit check for %s: %w", step.Tool, err)
	}

	// Journal the operation before any side effect so a crash between
	// execute and deduct leaves a reconcilable trace.
	op := credit.Operation{
		OperationID: uuid.NewString(),
		SessionID:   st.SessionID,
		UserID:      st.UserID,
		StepID:      step.ID,
		Tool:        step.Tool,
		Estimated:   estimate,
		Status:      credit.OperationReserved,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := m.store.AppendOperation(ctx, &op); err != nil {
		return out, fmt.Errorf("journal credit operation for %s: %w", step.Tool, err)
	}
	m.emitter.Emit(ctx, st, event.TypeCreditsReserved, messagequeue.CreditPayload{
		OperationID: op.OperationID, StepID: step.ID, Tool: step.Tool,
		Estimated: estimate, Status: string(credit.OperationReserved),
	})

	// Execute under the retry policy. Only transient failures burn
	// extra attempts; validation and other permanent errors return on
	// the first call.
	var result *tooling.Result
	err = m.retrier.Do(ctx, "tool "+step.Tool, func(ctx context.Context) error {
		out.Attempts++
		r, execErr := handler.Execute(ctx, params)
		if execErr != nil {
			return execErr
		}
		result = r
		return nil
	})
	if err != nil {
		m.release(ctx, op.OperationID, step.Tool)
		return out, err
	}
	out.Data = result.Data

	// Deduct the actual cost. The operation ID makes replays harmless
	// on the ledger side; a failure here is an accepted billing
	// discrepancy handled by offline reconciliation, so the user keeps
	// the result either way.
	actual := m.estimator.Actual(step.Tool, params, result.Units)
	out.Credits = actual

	err = m.retrier.Do(ctx, "ledger deduct", func(ctx context.Context) error {
		return m.ledger.Deduct(ctx, ledger.DeductRequest{
			OperationID: op.OperationID,
			UserID:      st.UserID,
			SessionID:   st.SessionID,
			Amount:      actual,
			Tool:        step.Tool,
			Reason:      "step " + step.ID,
		})
	})
	if err != nil {
		m.log.Warn("credit deduction failed after successful execution",
			"session_id", st.SessionID,
			"step_id", step.ID,
			"tool", step.Tool,
			"operation_id", op.OperationID,
			"amount", actual,
			"error", err)
		m.journalStatus(ctx, op.OperationID, credit.OperationDeductFailed, actual)
		m.emitter.Emit(ctx, st, event.TypeDeductFailed, messagequeue.CreditPayload{
			OperationID: op.OperationID, StepID: step.ID, Tool: step.Tool,
			Estimated: estimate, Actual: actual, Status: string(credit.OperationDeductFailed),
		})
		if m.notify != nil {
			m.notify.Send(ctx, notifier.Notification{
				Title:     "Credit deduction failed",
				Message:   fmt.Sprintf("Step %s (%s) executed but %d credits were not charged; operation %s needs reconciliation.", step.ID, step.Tool, actual, op.OperationID),
				Level:     "warning",
				Source:    string(event.TypeDeductFailed),
				SessionID: st.SessionID,
			})
		}
		return out, nil
	}

	m.journalStatus(ctx, op.OperationID, credit.OperationDeducted, actual)
	m.emitter.Emit(ctx, st, event.TypeCreditsDeducted, messagequeue.CreditPayload{
		OperationID: op.OperationID, StepID: step.ID, Tool: step.Tool,
		Estimated: estimate, Actual: actual, Status: string(credit.OperationDeducted),
	})
	return out, nil
}

// release marks the reservation abandoned after a failed execution.
func (m *Meter) release(ctx context.Context, operationID, tool string) {
	m.journalStatus(ctx, operationID, credit.OperationReleased, 0)
	m.log.Debug("credit reservation released", "operation_id", operationID, "tool", tool)
}

func (m *Meter) journalStatus(ctx context.Context, operationID string, status credit.OperationStatus, actual int64) {
	if err := m.store.UpdateOperation(ctx, operationID, status, actual); err != nil {
		m.log.Error("update credit operation",
			"operation_id", operationID,
			"status", status,
			"error", err)
	}
}
