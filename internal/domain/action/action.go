// Package action defines the marketing action plan entities: the steps a
// recognized intent expands into and the results each execution produces.
package action

import (
	"encoding/json"
	"time"
)

// Module identifies which marketing capability a tool belongs to.
type Module string

const (
	ModuleCreative Module = "creative"
	ModuleCampaign Module = "campaign"
	ModuleReport   Module = "report"
	ModuleLanding  Module = "landing"
	ModuleInsight  Module = "insight"
)

// Known reports whether the module is one the engine can dispatch.
// Unknown modules degrade the turn to a plain reply instead of failing it.
func (m Module) Known() bool {
	switch m {
	case ModuleCreative, ModuleCampaign, ModuleReport, ModuleLanding, ModuleInsight:
		return true
	}
	return false
}

// Step is one unit of work in an action plan. ID is the step's index in
// the plan rendered as a string ("0", "1", ...), which is also the form
// DependsOn entries and parameter references use.
type Step struct {
	ID          string                     `json:"id"`
	Tool        string                     `json:"tool"`
	Module      Module                     `json:"module"`
	Params      map[string]json.RawMessage `json:"params,omitempty"`
	DependsOn   []string                   `json:"depends_on,omitempty"`
	Description string                     `json:"description,omitempty"`
}

// StepResult records the outcome of one executed step. Failed steps get a
// result too, with Success=false and CreditsConsumed=0.
type StepResult struct {
	StepID          string     `json:"step_id"`
	Tool            string     `json:"tool"`
	Success         bool       `json:"success"`
	Data            any        `json:"data,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreditsConsumed int64      `json:"credits_consumed"`
	Attempts        int        `json:"attempts"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// ResultByStep returns the result for the given step ID, or nil if the
// step has not produced one yet.
func ResultByStep(results []StepResult, stepID string) *StepResult {
	for i := range results {
		if results[i].StepID == stepID {
			return &results[i]
		}
	}
	return nil
}

// TotalCredits sums the credits consumed across all results.
func TotalCredits(results []StepResult) int64 {
	var total int64
	for i := range results {
		total += results[i].CreditsConsumed
	}
	return total
}
