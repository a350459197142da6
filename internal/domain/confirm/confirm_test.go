package confirm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
)

func TestClassifyChinese(t *testing.T) {
	if got := Classify("确认"); got != Confirmed {
		t.Fatalf("Classify(确认) = %s, want %s", got, Confirmed)
	}
	if got := Classify("取消"); got != Cancelled {
		t.Fatalf("Classify(取消) = %s, want %s", got, Cancelled)
	}
	if got := Classify("请确认这个操作"); got != Confirmed {
		t.Fatalf("Classify(请确认这个操作) = %s, want %s", got, Confirmed)
	}
	if got := Classify("算了吧"); got != Cancelled {
		t.Fatalf("Classify(算了吧) = %s, want %s", got, Cancelled)
	}
}

func TestClassifyEnglish(t *testing.T) {
	cases := map[string]Decision{
		"yes":          Confirmed,
		"Yes, go on":   Confirmed,
		"OK":           Confirmed,
		"proceed":      Confirmed,
		"no":           Cancelled,
		"cancel that":  Cancelled,
		"please abort": Cancelled,
	}
	for text, want := range cases {
		if got := Classify(text); got != want {
			t.Errorf("Classify(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestClassifyUnclear(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"what does this do?",
		"帮我看看报表",
		"yes and no",
		"notably absent", // "no" must not match inside other words
	} {
		if got := Classify(text); got != Unclear {
			t.Errorf("Classify(%q) = %s, want %s", text, got, Unclear)
		}
	}
}

func TestPauseAllAlwaysConfirms(t *testing.T) {
	step := action.Step{ID: "0", Tool: "pause_all_campaigns", Module: action.ModuleCampaign}
	required, desc := RequiresConfirmation(step)
	if !required {
		t.Fatal("pause_all_campaigns must always require confirmation")
	}
	if !strings.Contains(desc, "every active campaign") {
		t.Fatalf("unexpected description %q", desc)
	}
}

func TestBudgetThreshold(t *testing.T) {
	mk := func(oldBudget, newBudget string) action.Step {
		return action.Step{
			ID:     "0",
			Tool:   "update_campaign_budget",
			Module: action.ModuleCampaign,
			Params: map[string]json.RawMessage{
				"campaign_id":    json.RawMessage(`"cmp-1"`),
				"current_budget": json.RawMessage(oldBudget),
				"new_budget":     json.RawMessage(newBudget),
			},
		}
	}

	if required, _ := RequiresConfirmation(mk("100", "160")); !required {
		t.Error("+60% budget change should require confirmation")
	}
	if required, _ := RequiresConfirmation(mk("100", "40")); !required {
		t.Error("-60% budget change should require confirmation")
	}
	if required, _ := RequiresConfirmation(mk("100", "130")); required {
		t.Error("+30% budget change should not require confirmation")
	}
	if required, _ := RequiresConfirmation(mk("100", "150")); required {
		t.Error("exactly +50% sits on the threshold, not above it")
	}
}

func TestBudgetRatioNotComputable(t *testing.T) {
	step := action.Step{
		ID:     "0",
		Tool:   "update_campaign_budget",
		Module: action.ModuleCampaign,
		Params: map[string]json.RawMessage{
			"campaign_id": json.RawMessage(`"cmp-1"`),
			"new_budget":  json.RawMessage(`999999`),
		},
	}
	if required, _ := RequiresConfirmation(step); required {
		t.Error("missing current budget leaves the ratio uncomputable, no confirmation")
	}
}

func TestDescribeBudgetChange(t *testing.T) {
	step := action.Step{
		ID:     "0",
		Tool:   "update_campaign_budget",
		Module: action.ModuleCampaign,
		Params: map[string]json.RawMessage{
			"campaign_id":    json.RawMessage(`"cmp-7"`),
			"current_budget": json.RawMessage(`200`),
			"new_budget":     json.RawMessage(`320`),
		},
	}
	desc := Describe(step)
	if !strings.Contains(desc, "cmp-7") || !strings.Contains(desc, "+60%") {
		t.Fatalf("unexpected description %q", desc)
	}
}

func TestDescribeFallback(t *testing.T) {
	step := action.Step{ID: "0", Tool: "create_campaign", Module: action.ModuleCampaign}
	if got := Describe(step); got != "Execute create_campaign" {
		t.Fatalf("Describe = %q", got)
	}
	step.Description = "Launch the summer campaign"
	if got := Describe(step); got != "Launch the summer campaign" {
		t.Fatalf("Describe with description = %q", got)
	}
}
