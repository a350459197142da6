// Package confirm decides which actions need explicit user approval and
// classifies the user's reply when one is requested.
package confirm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
)

// BudgetChangeThreshold is the relative budget change above which a
// mutation counts as high risk.
const BudgetChangeThreshold = 0.5

// irreversibleTools always require confirmation, whatever their params.
var irreversibleTools = map[string]struct{}{
	"pause_all_campaigns": {},
	"delete_campaign":     {},
	"archive_campaign":    {},
	"delete_landing_page": {},
}

// RequiresConfirmation reports whether the step must pause for user
// approval, and a human-readable description of what is about to happen.
// The check runs before the step's first billable side effect.
func RequiresConfirmation(step action.Step) (bool, string) {
	if _, ok := irreversibleTools[step.Tool]; ok {
		return true, Describe(step)
	}

	if step.Tool == "update_campaign_budget" {
		if ratio, ok := budgetChangeRatio(step.Params); ok && ratio > BudgetChangeThreshold {
			return true, Describe(step)
		}
	}

	return false, ""
}

// budgetChangeRatio computes |new-old|/old from the step params.
// Both values must be present and the old budget positive; otherwise
// the ratio is not computable and the threshold rule does not apply.
func budgetChangeRatio(params map[string]json.RawMessage) (float64, bool) {
	oldBudget, okOld := floatParam(params, "current_budget")
	newBudget, okNew := floatParam(params, "new_budget")
	if !okOld || !okNew || oldBudget <= 0 {
		return 0, false
	}
	return math.Abs(newBudget-oldBudget) / oldBudget, true
}

// Describe renders the pending action for the confirmation prompt.
func Describe(step action.Step) string {
	switch step.Tool {
	case "pause_all_campaigns":
		return "Pause every active campaign in the account"
	case "delete_campaign":
		return fmt.Sprintf("Permanently delete campaign %s", stringParam(step.Params, "campaign_id"))
	case "archive_campaign":
		return fmt.Sprintf("Archive campaign %s", stringParam(step.Params, "campaign_id"))
	case "delete_landing_page":
		return fmt.Sprintf("Permanently delete landing page %s", stringParam(step.Params, "page_id"))
	case "update_campaign_budget":
		oldBudget, _ := floatParam(step.Params, "current_budget")
		newBudget, _ := floatParam(step.Params, "new_budget")
		if _, ok := budgetChangeRatio(step.Params); ok {
			return fmt.Sprintf("Change campaign %s daily budget from %.2f to %.2f (%+.0f%%)",
				stringParam(step.Params, "campaign_id"), oldBudget, newBudget,
				100*(newBudget-oldBudget)/oldBudget)
		}
		return fmt.Sprintf("Change campaign %s daily budget to %.2f",
			stringParam(step.Params, "campaign_id"), newBudget)
	}
	if step.Description != "" {
		return step.Description
	}
	return fmt.Sprintf("Execute %s", step.Tool)
}

func floatParam(params map[string]json.RawMessage, name string) (float64, bool) {
	raw, ok := params[name]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func stringParam(params map[string]json.RawMessage, name string) string {
	raw, ok := params[name]
	if !ok {
		return "?"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "?"
	}
	return s
}
