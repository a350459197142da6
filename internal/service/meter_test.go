package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
)

func TestInsufficientCreditsSkipsTool(t *testing.T) {
	e := newEngine(t, newFakeLedger(20))
	e.tool("generate_creative", action.ModuleCreative, nil)

	// generate_creative base cost is 100; the account holds 20.
	st := newState(step(0, "generate_creative", action.ModuleCreative, map[string]any{"product": "widget"}))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err == nil {
		t.Fatal("expected workflow-level error for credit refusal")
	}

	var insufficient *credit.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if insufficient.Required != 100 || insufficient.Available != 20 {
		t.Errorf("shortfall = %d/%d, want 100/20", insufficient.Required, insufficient.Available)
	}
	if got := e.calls("generate_creative"); got != 0 {
		t.Errorf("tool called %d times, want 0", got)
	}
	if e.ledger.deductCalls != 0 {
		t.Errorf("deduct called %d times, want 0", e.ledger.deductCalls)
	}
	if result.CreditsConsumed != 0 || result.Success {
		t.Errorf("result = success=%v credits=%d, want failed/0", result.Success, result.CreditsConsumed)
	}
	// A refusal never reaches the journal: nothing was reserved.
	ops, opErr := e.store.ListOperations(context.Background(), "sess-1")
	if opErr != nil {
		t.Fatalf("ListOperations: %v", opErr)
	}
	if len(ops) != 0 {
		t.Errorf("journal rows = %d, want 0", len(ops))
	}
	if e.ledger.checkCalls != 1 {
		t.Errorf("check calls = %d, want 1 (refusal is not retried)", e.ledger.checkCalls)
	}
}

func TestTransientCheckRetriedThenSucceeds(t *testing.T) {
	lg := newFakeLedger(1000)
	lg.transientChecks = 2
	e := newEngine(t, lg)
	e.tool("create_campaign", action.ModuleCampaign, nil)

	st := newState(step(0, "create_campaign", action.ModuleCampaign, nil))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err != nil {
		t.Fatalf("ExecuteNext: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if lg.checkCalls != 3 {
		t.Errorf("check calls = %d, want 3", lg.checkCalls)
	}
}

func TestDeductExactlyOnceUnderToolRetry(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))

	failures := 2
	e.tool("create_campaign", action.ModuleCampaign, func(_ context.Context, _ map[string]json.RawMessage) (*tooling.Result, error) {
		if failures > 0 {
			failures--
			return nil, domain.Transient(domain.TransientUpstream, errors.New("502"))
		}
		return &tooling.Result{Data: map[string]any{"campaign_id": "c-1"}}, nil
	})

	st := newState(step(0, "create_campaign", action.ModuleCampaign, nil))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err != nil {
		t.Fatalf("ExecuteNext: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if len(e.ledger.deductions) != 1 {
		t.Fatalf("deductions = %d, want exactly 1", len(e.ledger.deductions))
	}
	if e.ledger.deductions[0].OperationID == "" {
		t.Error("deduction missing operation ID")
	}

	ops, _ := e.store.ListOperations(context.Background(), "sess-1")
	if len(ops) != 1 || ops[0].Status != credit.OperationDeducted {
		t.Fatalf("journal = %+v, want one deducted row", ops)
	}
	if ops[0].OperationID != e.ledger.deductions[0].OperationID {
		t.Error("journal and ledger disagree on operation ID")
	}
}

func TestExecuteFailureNeverDeducts(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("create_campaign", action.ModuleCampaign, func(_ context.Context, _ map[string]json.RawMessage) (*tooling.Result, error) {
		return nil, domain.Transient(domain.TransientUpstream, errors.New("500"))
	})

	st := newState(step(0, "create_campaign", action.ModuleCampaign, nil))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err == nil {
		t.Fatal("expected workflow-level error after retry exhaustion")
	}
	if got := e.calls("create_campaign"); got != 3 {
		t.Errorf("tool called %d times, want 3", got)
	}
	if e.ledger.deductCalls != 0 {
		t.Errorf("deduct called %d times, want 0", e.ledger.deductCalls)
	}
	if result.CreditsConsumed != 0 {
		t.Errorf("credits = %d, want 0", result.CreditsConsumed)
	}

	ops, _ := e.store.ListOperations(context.Background(), "sess-1")
	if len(ops) != 1 || ops[0].Status != credit.OperationReleased {
		t.Fatalf("journal = %+v, want one released row", ops)
	}
}

func TestDeductFailureKeepsResult(t *testing.T) {
	lg := newFakeLedger(1000)
	lg.deductErr = domain.Transient(domain.TransientConnection, errors.New("ledger down"))
	e := newEngine(t, lg)
	e.tool("create_campaign", action.ModuleCampaign, nil)

	st := newState(step(0, "create_campaign", action.ModuleCampaign, nil))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err != nil {
		t.Fatalf("deduct failure must not fail the step: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful result, got %q", result.Error)
	}
	if result.CreditsConsumed != 10 {
		t.Errorf("credits = %d, want the intended charge 10", result.CreditsConsumed)
	}

	ops, _ := e.store.ListOperations(context.Background(), "sess-1")
	if len(ops) != 1 || ops[0].Status != credit.OperationDeductFailed {
		t.Fatalf("journal = %+v, want one deduct_failed row", ops)
	}
	if ops[0].Actual != 10 {
		t.Errorf("journal actual = %d, want 10", ops[0].Actual)
	}
}

func TestActualCostFollowsReportedUnits(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("generate_creative", action.ModuleCreative, func(_ context.Context, _ map[string]json.RawMessage) (*tooling.Result, error) {
		// Asked for 2 variants, produced 3.
		return &tooling.Result{
			Data:  map[string]any{"creatives": []any{"a", "b", "c"}},
			Units: 3,
		}, nil
	})

	st := newState(step(0, "generate_creative", action.ModuleCreative, map[string]any{
		"product": "widget",
		"count":   2,
	}))
	result, err := e.planner.ExecuteNext(context.Background(), st)
	if err != nil {
		t.Fatalf("ExecuteNext: %v", err)
	}

	// Estimate: 100 base + 80 for the second unit = 180.
	// Actual: 100 base + 80*2 additional units = 260.
	if result.CreditsConsumed != 260 {
		t.Errorf("credits = %d, want 260", result.CreditsConsumed)
	}
	ops, _ := e.store.ListOperations(context.Background(), "sess-1")
	if len(ops) != 1 {
		t.Fatalf("journal rows = %d, want 1", len(ops))
	}
	if ops[0].Estimated != 180 || ops[0].Actual != 260 {
		t.Errorf("journal estimated/actual = %d/%d, want 180/260", ops[0].Estimated, ops[0].Actual)
	}
}
