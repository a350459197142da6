package workflow_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

func taskState() *workflow.State {
	in := intent.Intent{
		Kind: intent.KindTask,
		Name: "launch_campaign",
		Actions: []action.Step{
			{ID: "0", Tool: "generate_creative", Module: action.ModuleCreative},
			{ID: "1", Tool: "create_campaign", Module: action.ModuleCampaign, DependsOn: []string{"0"}},
		},
	}
	return workflow.NewState("sess-1", "user-1", "turn-1", in)
}

func TestStateCursorWalk(t *testing.T) {
	s := taskState()

	step, ok := s.NextStep()
	if !ok || step.Tool != "generate_creative" {
		t.Fatalf("expected first step, got %v ok=%v", step, ok)
	}

	s.RecordResult(action.StepResult{StepID: "0", Tool: step.Tool, Success: true, CreditsConsumed: 100})

	step, ok = s.NextStep()
	if !ok || step.Tool != "create_campaign" {
		t.Fatalf("expected second step, got %v ok=%v", step, ok)
	}
	if s.Exhausted() {
		t.Fatal("plan must not be exhausted with one step left")
	}

	s.RecordResult(action.StepResult{StepID: "1", Tool: step.Tool, Success: true, CreditsConsumed: 10})

	if _, ok := s.NextStep(); ok {
		t.Fatal("expected no next step after last result")
	}
	if !s.Exhausted() {
		t.Fatal("plan must be exhausted")
	}
	if s.CreditsConsumed() != 110 {
		t.Fatalf("expected 110 credits, got %d", s.CreditsConsumed())
	}
}

func TestStateSuspendResumeRoundTrip(t *testing.T) {
	s := taskState()
	s.RecordResult(action.StepResult{StepID: "0", Success: true, CreditsConsumed: 100})

	s.Suspend(workflow.PendingConfirmation{
		StepID:      "1",
		Tool:        "create_campaign",
		Description: "Create campaign with a daily budget of 500",
		RequestedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	restored, err := workflow.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if restored.Status != workflow.StatusAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", restored.Status)
	}
	if restored.Cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", restored.Cursor)
	}
	if len(restored.Results) != 1 || !restored.Results[0].Success {
		t.Fatalf("expected completed first result, got %v", restored.Results)
	}
	if restored.Pending == nil || restored.Pending.Tool != "create_campaign" {
		t.Fatalf("expected pending confirmation, got %v", restored.Pending)
	}

	restored.Resume()
	if restored.Status != workflow.StatusActive || restored.Pending != nil {
		t.Fatal("resume must reactivate and clear the pending confirmation")
	}

	step, ok := restored.NextStep()
	if !ok || step.ID != "1" {
		t.Fatalf("resume must continue at the cursor, got %v ok=%v", step, ok)
	}
}

func TestStateNoLiveHandles(t *testing.T) {
	// Everything on the state must survive a JSON round-trip unchanged.
	s := taskState()
	s.RecordResult(action.StepResult{
		StepID:  "0",
		Success: true,
		Data:    map[string]any{"campaign_id": "cmp-1"},
	})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := workflow.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	again, err := restored.Encode()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if string(data) != string(again) {
		t.Fatal("state must round-trip losslessly")
	}
}

func TestStateTerminalTransitions(t *testing.T) {
	s := taskState()
	s.Fail(workflow.ErrTurnTimeout)
	if s.Status != workflow.StatusFailed || s.LastError == "" {
		t.Fatalf("expected failed with error, got %s %q", s.Status, s.LastError)
	}
	if !s.Status.IsTerminal() {
		t.Fatal("failed must be terminal")
	}

	s = taskState()
	s.Cancel("user declined")
	if s.Status != workflow.StatusCancelled || s.LastError != "user declined" {
		t.Fatalf("expected cancelled, got %s %q", s.Status, s.LastError)
	}

	s = taskState()
	s.Complete()
	if s.Status != workflow.StatusCompleted {
		t.Fatalf("expected completed, got %s", s.Status)
	}
	if workflow.StatusActive.IsTerminal() || workflow.StatusAwaitingConfirmation.IsTerminal() {
		t.Fatal("active states must not be terminal")
	}
}

func TestPendingConfirmationExpiry(t *testing.T) {
	p := workflow.PendingConfirmation{ExpiresAt: time.Now().Add(-time.Minute)}
	if !p.Expired(time.Now()) {
		t.Fatal("past expiry must report expired")
	}
	p.ExpiresAt = time.Now().Add(time.Minute)
	if p.Expired(time.Now()) {
		t.Fatal("future expiry must not report expired")
	}
	p.ExpiresAt = time.Time{}
	if p.Expired(time.Now()) {
		t.Fatal("zero expiry means no deadline")
	}
}
