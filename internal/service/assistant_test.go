package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

func TestHandleMessageSuspendResumeRoundTrip(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("get_campaign_report", action.ModuleCampaign, nil)
	e.tool("pause_all_campaigns", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(
		step(0, "get_campaign_report", action.ModuleCampaign, nil),
		step(1, "pause_all_campaigns", action.ModuleCampaign, nil),
	)

	ctx := context.Background()
	first, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "pause everything")
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if !first.RequiresConfirmation {
		t.Fatal("expected suspension on pause_all_campaigns")
	}
	if got := e.calls("pause_all_campaigns"); got != 0 {
		t.Fatalf("gated tool ran %d times before approval", got)
	}

	// The confirmation arrives as an ordinary follow-up message on the
	// suspended session.
	second, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "确认")
	if err != nil {
		t.Fatalf("confirmation message: %v", err)
	}
	if second.RequiresConfirmation {
		t.Fatal("resumed turn must not re-ask")
	}
	if !second.Success {
		t.Fatalf("resumed turn failed: %q / %q", second.Text, second.Error)
	}
	if got := e.calls("pause_all_campaigns"); got != 1 {
		t.Errorf("gated tool ran %d times after approval, want 1", got)
	}
	// Step 0 ran during the first turn only; the resume picks up at the
	// pending step instead of replaying the plan.
	if got := e.calls("get_campaign_report"); got != 1 {
		t.Errorf("pre-gate tool ran %d times, want 1", got)
	}
	if e.rec.calls != 1 {
		t.Errorf("recognizer called %d times, want 1 (confirmation bypasses it)", e.rec.calls)
	}

	stored, _ := e.store.GetState(ctx, "sess-1")
	if stored.Status != workflow.StatusCompleted {
		t.Errorf("stored status = %s, want completed", stored.Status)
	}
	if !stored.UserConfirmed() {
		t.Error("decision not recorded on the state")
	}
}

func TestHandleMessageCancellationChargesNothingFurther(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("get_campaign_report", action.ModuleCampaign, nil)
	e.tool("pause_all_campaigns", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(
		step(0, "get_campaign_report", action.ModuleCampaign, nil),
		step(1, "pause_all_campaigns", action.ModuleCampaign, nil),
	)

	ctx := context.Background()
	if _, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "pause everything"); err != nil {
		t.Fatalf("first message: %v", err)
	}
	deductsBefore := e.ledger.deductCalls

	reply, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "取消")
	if err != nil {
		t.Fatalf("cancellation message: %v", err)
	}
	if reply.RequiresConfirmation {
		t.Fatal("cancelled turn must not re-ask")
	}
	if got := e.calls("pause_all_campaigns"); got != 0 {
		t.Errorf("cancelled tool ran %d times, want 0", got)
	}
	if e.ledger.deductCalls != deductsBefore {
		t.Errorf("cancellation deducted credit: %d -> %d calls", deductsBefore, e.ledger.deductCalls)
	}
	// Pre-gate work and its charge stay on the record.
	if reply.CreditsConsumed != 20 {
		t.Errorf("credits = %d, want 20 from the pre-gate step", reply.CreditsConsumed)
	}

	stored, _ := e.store.GetState(ctx, "sess-1")
	if stored.Status != workflow.StatusCancelled {
		t.Fatalf("stored status = %s, want cancelled", stored.Status)
	}
	if len(stored.Plan) != stored.Cursor {
		t.Errorf("pending actions remain: plan=%d cursor=%d", len(stored.Plan), stored.Cursor)
	}
	if stored.Pending != nil {
		t.Error("pending confirmation survived cancellation")
	}
}

func TestHandleMessageUnclearReplyReAsks(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("pause_all_campaigns", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(step(0, "pause_all_campaigns", action.ModuleCampaign, nil))

	ctx := context.Background()
	if _, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "pause everything"); err != nil {
		t.Fatalf("first message: %v", err)
	}

	reply, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "hmm maybe")
	if err != nil {
		t.Fatalf("unclear reply: %v", err)
	}
	if !reply.RequiresConfirmation {
		t.Fatal("unclear reply must re-ask")
	}
	if got := e.calls("pause_all_campaigns"); got != 0 {
		t.Errorf("tool ran %d times on an unclear reply, want 0", got)
	}

	// The pending confirmation is untouched; a clear answer still works.
	stored, _ := e.store.GetState(ctx, "sess-1")
	if stored.Status != workflow.StatusAwaitingConfirmation {
		t.Fatalf("stored status = %s, want awaiting_confirmation", stored.Status)
	}

	final, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "confirm")
	if err != nil {
		t.Fatalf("confirm after re-ask: %v", err)
	}
	if !final.Success {
		t.Fatalf("final reply failed: %q", final.Error)
	}
	if got := e.calls("pause_all_campaigns"); got != 1 {
		t.Errorf("tool ran %d times, want 1", got)
	}
}

func TestHandleMessageExpiredConfirmationCancels(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("pause_all_campaigns", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(step(0, "pause_all_campaigns", action.ModuleCampaign, nil))

	ctx := context.Background()
	if _, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "pause everything"); err != nil {
		t.Fatalf("first message: %v", err)
	}

	// Age the pending confirmation past its window.
	stored, err := e.store.GetState(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	stored.Pending.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := e.store.SaveState(ctx, stored); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	reply, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "确认")
	if err != nil {
		t.Fatalf("late confirmation: %v", err)
	}
	if reply.RequiresConfirmation {
		t.Fatal("expired confirmation must not re-ask")
	}
	if got := e.calls("pause_all_campaigns"); got != 0 {
		t.Errorf("tool ran %d times after expiry, want 0", got)
	}

	final, _ := e.store.GetState(ctx, "sess-1")
	if final.Status != workflow.StatusCancelled {
		t.Errorf("stored status = %s, want cancelled", final.Status)
	}
}

func TestHandleMessageRecognizerFailureDegrades(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.rec.err = domain.Transient(domain.TransientModel, errors.New("model overloaded"))

	reply, err := e.assistant.HandleMessage(context.Background(), "user-1", "sess-1", "do something")
	if err != nil {
		t.Fatalf("recognizer failure must degrade, not error: %v", err)
	}
	if reply.Success {
		t.Error("degraded reply must not claim success")
	}
	if reply.Text == "" {
		t.Error("degraded reply has no text")
	}
	if e.rec.calls != 3 {
		t.Errorf("recognizer tried %d times, want 3", e.rec.calls)
	}
	if _, err := e.store.GetState(context.Background(), "sess-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("no state should persist for an unrecognized turn, got %v", err)
	}
}

func TestHandleMessageNewTurnAfterCompletedTurn(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("create_campaign", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(step(0, "create_campaign", action.ModuleCampaign, nil))

	ctx := context.Background()
	first, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "make a campaign")
	if err != nil || !first.Success {
		t.Fatalf("first turn: err=%v success=%v", err, first != nil && first.Success)
	}

	// A second turn on the same session overwrites the finished state.
	second, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "make another")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if !second.Success {
		t.Fatalf("second turn failed: %q", second.Error)
	}
	if second.TurnID == first.TurnID {
		t.Error("turns must get distinct IDs")
	}
	if got := e.calls("create_campaign"); got != 2 {
		t.Errorf("tool ran %d times across two turns, want 2", got)
	}
}

func TestResolveConfirmationWithoutPendingConflicts(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.tool("create_campaign", action.ModuleCampaign, nil)
	e.rec.intent = taskIntent(step(0, "create_campaign", action.ModuleCampaign, nil))

	ctx := context.Background()
	if _, err := e.assistant.HandleMessage(ctx, "user-1", "sess-1", "make a campaign"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	_, err := e.assistant.ResolveConfirmation(ctx, "sess-1", "确认")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestHandleMessageQueryIntent(t *testing.T) {
	e := newEngine(t, newFakeLedger(1000))
	e.rec.intent = &intent.Intent{
		Kind:   intent.KindQuery,
		Name:   "campaign_question",
		Answer: "CPC is your cost per click.",
	}

	reply, err := e.assistant.HandleMessage(context.Background(), "user-1", "sess-1", "what is cpc?")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply.Text != "CPC is your cost per click." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.CreditsConsumed != 0 {
		t.Errorf("query turn charged %d credits", reply.CreditsConsumed)
	}
}
