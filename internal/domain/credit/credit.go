// Package credit defines credit metering entities: cost estimation
// profiles, the deduction journal, and the terminal insufficient-balance
// error.
package credit

import (
	"errors"
	"fmt"
	"time"
)

// ErrLedgerUnavailable indicates the external ledger could not be
// reached. The ledger adapter wraps it as transient so the retry
// executor picks it up.
var ErrLedgerUnavailable = errors.New("credit ledger unavailable")

// InsufficientError is terminal: the step fails without tool execution
// and is never retried.
type InsufficientError struct {
	Required  int64
	Available int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

// OperationStatus tracks a journal entry through the deduction protocol.
type OperationStatus string

const (
	// OperationReserved is written before the deduct call goes out.
	OperationReserved OperationStatus = "reserved"
	// OperationDeducted means the ledger accepted the charge.
	OperationDeducted OperationStatus = "deducted"
	// OperationDeductFailed means execution succeeded but the charge
	// did not land; reconciliation picks these up offline.
	OperationDeductFailed OperationStatus = "deduct_failed"
	// OperationReleased means the reservation was abandoned without a
	// charge (tool failed before any deduction).
	OperationReleased OperationStatus = "released"
)

// Operation is one journaled deduction attempt. OperationID is unique:
// retries of the same step reuse the ID, so a charge lands at most once.
type Operation struct {
	OperationID string          `json:"operation_id"`
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id"`
	StepID      string          `json:"step_id"`
	Tool        string          `json:"tool"`
	Estimated   int64           `json:"estimated"`
	Actual      int64           `json:"actual"`
	Status      OperationStatus `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Summary aggregates a session's journal for audit surfaces.
type Summary struct {
	SessionID        string `json:"session_id"`
	TotalEstimated   int64  `json:"total_estimated"`
	TotalDeducted    int64  `json:"total_deducted"`
	Operations       int    `json:"operations"`
	FailedDeductions int    `json:"failed_deductions"`
}

// Summarize folds journal entries into a Summary.
func Summarize(sessionID string, ops []Operation) Summary {
	s := Summary{SessionID: sessionID, Operations: len(ops)}
	for i := range ops {
		s.TotalEstimated += ops[i].Estimated
		switch ops[i].Status {
		case OperationDeducted:
			s.TotalDeducted += ops[i].Actual
		case OperationDeductFailed:
			s.FailedDeductions++
		}
	}
	return s
}
