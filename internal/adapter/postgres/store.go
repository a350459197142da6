package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

// Store implements statestore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveState upserts the workflow state. The version column guards the
// update: a stale st.Version affects zero rows and returns ErrConflict,
// so two concurrent turns on one session cannot interleave writes.
func (s *Store) SaveState(ctx context.Context, st *workflow.State) error {
	raw, err := st.Encode()
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.SessionID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_states (session_id, user_id, turn_id, status, state, version)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 ON CONFLICT (session_id) DO UPDATE
		 SET user_id = EXCLUDED.user_id, turn_id = EXCLUDED.turn_id, status = EXCLUDED.status,
		     state = EXCLUDED.state, version = workflow_states.version + 1, updated_at = now()
		 WHERE workflow_states.version = $6`,
		st.SessionID, st.UserID, st.TurnID, string(st.Status), raw, st.Version)
	if err != nil {
		return fmt.Errorf("save state %s: %w", st.SessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save state %s: %w", st.SessionID, domain.ErrConflict)
	}
	st.Version++
	return nil
}

// GetState loads the workflow state for a session. The version column
// is authoritative over whatever version the JSON snapshot carries.
func (s *Store) GetState(ctx context.Context, sessionID string) (*workflow.State, error) {
	var raw []byte
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT state, version FROM workflow_states WHERE session_id = $1`, sessionID).
		Scan(&raw, &version)
	if err != nil {
		return nil, notFoundWrap(err, "get state %s", sessionID)
	}

	st, err := workflow.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	st.Version = version
	return st, nil
}

func (s *Store) DeleteState(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflow_states WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete state %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete state %s: %w", sessionID, domain.ErrNotFound)
	}
	return nil
}

// ListSuspended returns workflows waiting on a confirmation, oldest
// first, for the expiry sweep.
func (s *Store) ListSuspended(ctx context.Context, limit int) ([]workflow.State, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT state, version FROM workflow_states
		 WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		string(workflow.StatusAwaitingConfirmation), limit)
	if err != nil {
		return nil, fmt.Errorf("list suspended: %w", err)
	}
	defer rows.Close()

	var states []workflow.State
	for rows.Next() {
		var raw []byte
		var version int
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, fmt.Errorf("scan suspended state: %w", err)
		}
		st, err := workflow.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode suspended state: %w", err)
		}
		st.Version = version
		states = append(states, *st)
	}
	return states, rows.Err()
}

// --- Credit operation journal ---

func (s *Store) AppendOperation(ctx context.Context, op *credit.Operation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credit_operations (operation_id, session_id, user_id, step_id, tool, estimated_cost, actual_cost, status, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.OperationID, op.SessionID, op.UserID, op.StepID, op.Tool,
		op.Estimated, op.Actual, string(op.Status), op.Reason)
	if err != nil {
		return fmt.Errorf("append operation %s: %w", op.OperationID, err)
	}
	return nil
}

func (s *Store) UpdateOperation(ctx context.Context, operationID string, status credit.OperationStatus, actualCost int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credit_operations SET status = $2, actual_cost = $3, updated_at = now()
		 WHERE operation_id = $1`,
		operationID, string(status), actualCost)
	if err != nil {
		return fmt.Errorf("update operation %s: %w", operationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update operation %s: %w", operationID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOperations(ctx context.Context, sessionID string) ([]credit.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT operation_id, session_id, user_id, step_id, tool, estimated_cost, actual_cost, status, reason, created_at, updated_at
		 FROM credit_operations WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list operations %s: %w", sessionID, err)
	}
	defer rows.Close()

	var ops []credit.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanOperation(row scannable) (credit.Operation, error) {
	var op credit.Operation
	var status string
	err := row.Scan(&op.OperationID, &op.SessionID, &op.UserID, &op.StepID, &op.Tool,
		&op.Estimated, &op.Actual, &status, &op.Reason, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return op, fmt.Errorf("scan operation: %w", err)
	}
	op.Status = credit.OperationStatus(status)
	return op, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
