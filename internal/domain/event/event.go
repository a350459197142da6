// Package event defines the immutable workflow event record used for
// auditing and live progress streaming.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of workflow event.
type Type string

const (
	TypeTurnStarted   Type = "workflow.turn_started"
	TypeStepStarted   Type = "workflow.step_started"
	TypeStepCompleted Type = "workflow.step_completed"
	TypeStepFailed    Type = "workflow.step_failed"
	TypeSuspended     Type = "workflow.suspended"
	TypeResumed       Type = "workflow.resumed"
	TypeCompleted     Type = "workflow.completed"
	TypeFailed        Type = "workflow.failed"
	TypeCancelled     Type = "workflow.cancelled"

	// Credit protocol events.
	TypeCreditsReserved Type = "credit.reserved"
	TypeCreditsDeducted Type = "credit.deducted"
	TypeDeductFailed    Type = "credit.deduct_failed"
)

// Event represents a single immutable entry in a workflow's audit trail.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	TurnID    string          `json:"turn_id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	Sequence  int             `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
}

// Subject returns the broker routing key for the event, grouped by
// workflow versus credit concerns.
func (e Event) Subject() string {
	switch e.Type {
	case TypeCreditsReserved, TypeCreditsDeducted, TypeDeductFailed:
		return "zmead.credit." + e.SessionID
	default:
		return "zmead.workflow." + e.SessionID
	}
}
