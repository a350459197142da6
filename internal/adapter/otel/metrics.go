package otel

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
)

const meterName = "zmead-core"

// Metrics holds the workflow and credit metric instruments.
type Metrics struct {
	TurnsStarted    metric.Int64Counter
	TurnsCompleted  metric.Int64Counter
	TurnsFailed     metric.Int64Counter
	StepsExecuted   metric.Int64Counter
	StepRetries     metric.Int64Counter
	Suspensions     metric.Int64Counter
	CreditsDeducted metric.Int64Counter
	DeductFailures  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("zmead.turns.started",
		metric.WithDescription("Number of assistant turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("zmead.turns.completed",
		metric.WithDescription("Number of turns that finished their plan"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("zmead.turns.failed",
		metric.WithDescription("Number of turns stopped by a workflow-level error"))
	if err != nil {
		return nil, err
	}

	m.StepsExecuted, err = meter.Int64Counter("zmead.steps.executed",
		metric.WithDescription("Number of plan steps executed, by outcome"))
	if err != nil {
		return nil, err
	}

	m.StepRetries, err = meter.Int64Counter("zmead.steps.retries",
		metric.WithDescription("Number of retry attempts beyond the first"))
	if err != nil {
		return nil, err
	}

	m.Suspensions, err = meter.Int64Counter("zmead.confirmations.requested",
		metric.WithDescription("Number of workflows suspended for confirmation"))
	if err != nil {
		return nil, err
	}

	m.CreditsDeducted, err = meter.Int64Counter("zmead.credits.deducted",
		metric.WithDescription("Credits deducted from the ledger"))
	if err != nil {
		return nil, err
	}

	m.DeductFailures, err = meter.Int64Counter("zmead.credits.deduct_failures",
		metric.WithDescription("Deductions that failed after tool execution"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Observe maps one workflow event onto the instruments. Wired as a
// subscriber on the event stream so the hot path never touches the
// meter directly.
func (m *Metrics) Observe(ctx context.Context, ev event.Event) {
	switch ev.Type {
	case event.TypeTurnStarted:
		m.TurnsStarted.Add(ctx, 1)
	case event.TypeCompleted:
		m.TurnsCompleted.Add(ctx, 1)
	case event.TypeFailed:
		m.TurnsFailed.Add(ctx, 1)
	case event.TypeSuspended:
		m.Suspensions.Add(ctx, 1)
	case event.TypeStepCompleted, event.TypeStepFailed:
		var p messagequeue.StepPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			m.StepsExecuted.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", p.Tool),
				attribute.Bool("success", p.Success),
			))
			if p.Attempts > 1 {
				m.StepRetries.Add(ctx, int64(p.Attempts-1), metric.WithAttributes(
					attribute.String("tool", p.Tool),
				))
			}
		}
	case event.TypeCreditsDeducted:
		var p messagequeue.CreditPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			m.CreditsDeducted.Add(ctx, p.Actual, metric.WithAttributes(
				attribute.String("tool", p.Tool),
			))
		}
	case event.TypeDeductFailed:
		m.DeductFailures.Add(ctx, 1)
	}
}
