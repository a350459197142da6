// Package workflow defines the persisted workflow state: the single
// serializable checkpoint a session's execution suspends to and resumes
// from. A suspended workflow is a stored record, never a parked goroutine.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
)

// ErrTurnTimeout marks a turn that hit its deadline. Completed results
// are preserved on the state.
var ErrTurnTimeout = errors.New("turn deadline exceeded")

// Status represents the lifecycle state of a workflow.
type Status string

const (
	StatusActive               Status = "active"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// IsTerminal returns true if the workflow is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PendingConfirmation describes the action a suspended workflow is
// waiting on. ExpiresAt bounds how long the suspension stays resumable.
type PendingConfirmation struct {
	StepID      string    `json:"step_id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the confirmation window has passed.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// State is the complete execution state of one session's workflow.
// Every field serializes to JSON; no live handles, channels or
// callbacks ever live here.
type State struct {
	SessionID string               `json:"session_id"`
	UserID    string               `json:"user_id"`
	TurnID    string               `json:"turn_id"`
	Status    Status               `json:"status"`
	Intent    intent.Intent        `json:"intent"`
	Plan      []action.Step        `json:"plan,omitempty"`
	Cursor    int                  `json:"cursor"`
	Results   []action.StepResult  `json:"results,omitempty"`
	Pending   *PendingConfirmation `json:"pending_confirmation,omitempty"`
	Confirmed *bool                `json:"user_confirmed,omitempty"`
	LastError string               `json:"last_error,omitempty"`
	Version   int                  `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewState creates an active workflow state for a turn.
func NewState(sessionID, userID, turnID string, in intent.Intent) *State {
	now := time.Now().UTC()
	return &State{
		SessionID: sessionID,
		UserID:    userID,
		TurnID:    turnID,
		Status:    StatusActive,
		Intent:    in,
		Plan:      in.Actions,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NextStep returns the step at the cursor, or false when the plan is
// exhausted.
func (s *State) NextStep() (*action.Step, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Plan) {
		return nil, false
	}
	return &s.Plan[s.Cursor], true
}

// RecordResult appends a step result and advances the cursor.
func (s *State) RecordResult(r action.StepResult) {
	s.Results = append(s.Results, r)
	s.Cursor++
	s.UpdatedAt = time.Now().UTC()
}

// Exhausted reports whether every plan step has been executed.
func (s *State) Exhausted() bool {
	return s.Cursor >= len(s.Plan)
}

// Suspend parks the workflow on a pending confirmation.
func (s *State) Suspend(p PendingConfirmation) {
	s.Status = StatusAwaitingConfirmation
	s.Pending = &p
	s.UpdatedAt = time.Now().UTC()
}

// Decide records the user's confirmation decision. The decision is
// one-shot per plan: once set it never changes again.
func (s *State) Decide(confirmed bool) {
	if s.Confirmed != nil {
		return
	}
	s.Confirmed = &confirmed
	s.UpdatedAt = time.Now().UTC()
}

// UserConfirmed reports whether the user has approved this plan.
func (s *State) UserConfirmed() bool {
	return s.Confirmed != nil && *s.Confirmed
}

// Resume clears the pending confirmation and reactivates the workflow.
func (s *State) Resume() {
	s.Status = StatusActive
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()
}

// Complete marks the workflow finished.
func (s *State) Complete() {
	s.Status = StatusCompleted
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()
}

// Fail marks the workflow failed, keeping all completed results.
func (s *State) Fail(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.LastError = err.Error()
	}
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()
}

// Cancel marks the workflow cancelled by the user.
func (s *State) Cancel(reason string) {
	s.Status = StatusCancelled
	s.LastError = reason
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()
}

// CreditsConsumed sums credits across all recorded results.
func (s *State) CreditsConsumed() int64 {
	return action.TotalCredits(s.Results)
}

// Encode serializes the state for storage or caching.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode workflow state: %w", err)
	}
	return data, nil
}

// Decode restores a state from its serialized form.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return &s, nil
}
