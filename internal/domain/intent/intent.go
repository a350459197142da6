// Package intent defines the recognized-intent entity produced by the
// external extraction service. The engine consumes intents; it never
// produces them.
package intent

import (
	"encoding/json"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
)

// Kind classifies what the user asked for.
type Kind string

const (
	// KindTask means the intent expands into an executable action plan.
	KindTask Kind = "task_execution"
	// KindQuery means a plain informational reply with no side effects.
	KindQuery Kind = "general_query"
	// KindClarification means the extractor needs more input before it
	// can produce a plan.
	KindClarification Kind = "clarification_needed"
)

// Intent is the extraction result for one user message.
type Intent struct {
	Kind          Kind                       `json:"kind"`
	Name          string                     `json:"name,omitempty"`
	Confidence    float64                    `json:"confidence"`
	Params        map[string]json.RawMessage `json:"params,omitempty"`
	Actions       []action.Step              `json:"actions,omitempty"`
	Answer        string                     `json:"answer,omitempty"`
	Clarification string                     `json:"clarification,omitempty"`
}
