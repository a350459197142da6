// Package memstore provides an in-memory statestore.Store and
// eventstore.Store for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/eventstore"
)

type stateRow struct {
	raw       []byte
	status    workflow.Status
	version   int
	updatedAt time.Time
}

// Store keeps workflow state and the credit journal in process memory.
// States round-trip through their JSON encoding on every save and load,
// so anything that would not survive real persistence fails here too.
type Store struct {
	mu     sync.RWMutex
	states map[string]*stateRow
	ops    map[string][]credit.Operation // keyed by session ID
	opByID map[string]*credit.Operation
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		states: make(map[string]*stateRow),
		ops:    make(map[string][]credit.Operation),
		opByID: make(map[string]*credit.Operation),
	}
}

func (s *Store) SaveState(_ context.Context, st *workflow.State) error {
	raw, err := st.Encode()
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.SessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.states[st.SessionID]
	if exists {
		if row.version != st.Version {
			return fmt.Errorf("save state %s: %w", st.SessionID, domain.ErrConflict)
		}
		row.raw = raw
		row.status = st.Status
		row.version++
		row.updatedAt = time.Now()
	} else {
		if st.Version != 0 {
			return fmt.Errorf("save state %s: %w", st.SessionID, domain.ErrConflict)
		}
		s.states[st.SessionID] = &stateRow{raw: raw, status: st.Status, version: 1, updatedAt: time.Now()}
	}
	st.Version++
	return nil
}

func (s *Store) GetState(_ context.Context, sessionID string) (*workflow.State, error) {
	s.mu.RLock()
	row, ok := s.states[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get state %s: %w", sessionID, domain.ErrNotFound)
	}
	st, err := workflow.Decode(row.raw)
	if err != nil {
		return nil, fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	st.Version = row.version
	return st, nil
}

func (s *Store) DeleteState(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[sessionID]; !ok {
		return fmt.Errorf("delete state %s: %w", sessionID, domain.ErrNotFound)
	}
	delete(s.states, sessionID)
	return nil
}

func (s *Store) ListSuspended(_ context.Context, limit int) ([]workflow.State, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	type pending struct {
		raw       []byte
		version   int
		updatedAt time.Time
	}
	var rows []pending
	for _, row := range s.states {
		if row.status == workflow.StatusAwaitingConfirmation {
			rows = append(rows, pending{raw: row.raw, version: row.version, updatedAt: row.updatedAt})
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].updatedAt.Before(rows[j].updatedAt) })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	states := make([]workflow.State, 0, len(rows))
	for _, row := range rows {
		st, err := workflow.Decode(row.raw)
		if err != nil {
			return nil, fmt.Errorf("decode suspended state: %w", err)
		}
		st.Version = row.version
		states = append(states, *st)
	}
	return states, nil
}

func (s *Store) AppendOperation(_ context.Context, op *credit.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.opByID[op.OperationID]; exists {
		return fmt.Errorf("append operation %s: %w", op.OperationID, domain.ErrConflict)
	}

	cp := *op
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.ops[op.SessionID] = append(s.ops[op.SessionID], cp)
	s.opByID[op.OperationID] = &s.ops[op.SessionID][len(s.ops[op.SessionID])-1]
	return nil
}

func (s *Store) UpdateOperation(_ context.Context, operationID string, status credit.OperationStatus, actualCost int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.opByID[operationID]
	if !ok {
		return fmt.Errorf("update operation %s: %w", operationID, domain.ErrNotFound)
	}
	op.Status = status
	op.Actual = actualCost
	op.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListOperations(_ context.Context, sessionID string) ([]credit.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]credit.Operation, len(s.ops[sessionID]))
	copy(ops, s.ops[sessionID])
	return ops, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() {}

// --- Event store ---

// EventStore is an in-memory append-only event log.
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]event.Event // keyed by session ID
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]event.Event)}
}

func (s *EventStore) Append(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Sequence = len(s.events[ev.SessionID]) + 1
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%d", ev.SessionID, ev.Sequence)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events[ev.SessionID] = append(s.events[ev.SessionID], *ev)
	return nil
}

func (s *EventStore) LoadBySession(_ context.Context, sessionID string, filter eventstore.Filter) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, ev := range s.events[sessionID] {
		if !matchFilter(ev, filter) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *EventStore) LoadByTurn(_ context.Context, sessionID, turnID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, ev := range s.events[sessionID] {
		if ev.TurnID == turnID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func matchFilter(ev event.Event, filter eventstore.Filter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.After != nil && !ev.CreatedAt.After(*filter.After) {
		return false
	}
	if filter.Before != nil && !ev.CreatedAt.Before(*filter.Before) {
		return false
	}
	return true
}
