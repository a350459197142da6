package credit_test

import (
	"encoding/json"
	"testing"

	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
)

func TestEstimateBase(t *testing.T) {
	e := credit.NewEstimator()

	if got := e.Estimate("create_campaign", nil); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := e.Estimate("pause_all_campaigns", nil); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestEstimateQuantity(t *testing.T) {
	e := credit.NewEstimator()

	params := map[string]json.RawMessage{"count": json.RawMessage(`3`)}
	// First unit in the base, two more at 80 each.
	if got := e.Estimate("generate_creative", params); got != 100+2*80 {
		t.Fatalf("expected 260, got %d", got)
	}

	params["count"] = json.RawMessage(`1`)
	if got := e.Estimate("generate_creative", params); got != 100 {
		t.Fatalf("single unit is the base cost, got %d", got)
	}

	params["count"] = json.RawMessage(`"three"`)
	if got := e.Estimate("generate_creative", params); got != 100 {
		t.Fatalf("non-numeric count is ignored, got %d", got)
	}
}

func TestEstimateSurcharges(t *testing.T) {
	e := credit.NewEstimator()

	params := map[string]json.RawMessage{
		"count":       json.RawMessage(`2`),
		"with_images": json.RawMessage(`true`),
	}
	if got := e.Estimate("generate_creative", params); got != 100+80+50 {
		t.Fatalf("expected 230, got %d", got)
	}

	params["with_images"] = json.RawMessage(`false`)
	if got := e.Estimate("generate_creative", params); got != 100+80 {
		t.Fatalf("false option adds nothing, got %d", got)
	}

	params["with_images"] = json.RawMessage(`null`)
	if got := e.Estimate("generate_creative", params); got != 100+80 {
		t.Fatalf("null option adds nothing, got %d", got)
	}
}

func TestEstimateUnknownTool(t *testing.T) {
	e := credit.NewEstimator()
	if got := e.Estimate("mystery_tool", nil); got != 10 {
		t.Fatalf("expected default cost 10, got %d", got)
	}
}

func TestSummarize(t *testing.T) {
	ops := []credit.Operation{
		{OperationID: "op-1", Estimated: 100, Actual: 90, Status: credit.OperationDeducted},
		{OperationID: "op-2", Estimated: 20, Actual: 20, Status: credit.OperationDeductFailed},
		{OperationID: "op-3", Estimated: 5, Status: credit.OperationReleased},
	}

	s := credit.Summarize("sess-1", ops)
	if s.Operations != 3 {
		t.Fatalf("expected 3 operations, got %d", s.Operations)
	}
	if s.TotalEstimated != 125 {
		t.Fatalf("expected estimated 125, got %d", s.TotalEstimated)
	}
	if s.TotalDeducted != 90 {
		t.Fatalf("only deducted entries count, got %d", s.TotalDeducted)
	}
	if s.FailedDeductions != 1 {
		t.Fatalf("expected 1 failed deduction, got %d", s.FailedDeductions)
	}
}

func TestInsufficientErrorMessage(t *testing.T) {
	err := &credit.InsufficientError{Required: 260, Available: 40}
	want := "insufficient credits: need 260, have 40"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
