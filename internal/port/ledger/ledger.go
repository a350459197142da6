// Package ledger defines the port interface for the remote credit
// ledger service.
package ledger

import "context"

// DeductRequest describes one idempotent deduction. OperationID is the
// idempotency key: the ledger applies at most one deduction per ID.
type DeductRequest struct {
	OperationID string `json:"operation_id"`
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
	Amount      int64  `json:"amount"`
	Tool        string `json:"tool"`
	Reason      string `json:"reason,omitempty"`
}

// Ledger is the port interface for credit balance checks and deductions.
// Check returns credit.InsufficientError when the balance cannot cover
// the amount, and a transient domain error when the ledger is
// unreachable so callers can distinguish retry from refusal.
type Ledger interface {
	// Balance returns the user's current credit balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Check verifies the balance covers amount without reserving it.
	Check(ctx context.Context, userID string, amount int64) error

	// Deduct applies the deduction. Replaying the same OperationID is a no-op.
	Deduct(ctx context.Context, req DeductRequest) error
}
