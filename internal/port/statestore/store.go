// Package statestore defines the persistence port for workflow state
// and the credit operation journal.
package statestore

import (
	"context"

	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

// Store is the port interface for workflow persistence. Save enforces
// optimistic concurrency: writing a state whose Version does not match
// the stored row returns domain.ErrConflict.
type Store interface {
	// Workflow state
	SaveState(ctx context.Context, st *workflow.State) error
	GetState(ctx context.Context, sessionID string) (*workflow.State, error)
	DeleteState(ctx context.Context, sessionID string) error
	ListSuspended(ctx context.Context, limit int) ([]workflow.State, error)

	// Credit operation journal
	AppendOperation(ctx context.Context, op *credit.Operation) error
	UpdateOperation(ctx context.Context, operationID string, status credit.OperationStatus, actualCost int64) error
	ListOperations(ctx context.Context, sessionID string) ([]credit.Operation, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
