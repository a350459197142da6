// Package cachedstore decorates a statestore.Store with a read-through
// cache. GetState is served from the cache when possible; SaveState and
// DeleteState write through to the store and refresh or invalidate the
// cached entry. Journal operations always go to the store: the credit
// journal is an audit surface and must never serve stale rows.
package cachedstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/port/cache"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
)

const keyPrefix = "wf:state:"

// Store wraps an inner statestore.Store with a cache.Cache.
type Store struct {
	inner statestore.Store
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

var _ statestore.Store = (*Store)(nil)

// New creates a caching decorator around inner. Cached states expire
// after ttl even without writes, bounding staleness across replicas.
func New(inner statestore.Store, c cache.Cache, ttl time.Duration, log *slog.Logger) *Store {
	return &Store{inner: inner, cache: c, ttl: ttl, log: log}
}

// SaveState writes through to the store, then refreshes the cache with
// the post-save state. Cache failures are logged and swallowed: the
// store is the source of truth.
func (s *Store) SaveState(ctx context.Context, st *workflow.State) error {
	if err := s.inner.SaveState(ctx, st); err != nil {
		return err
	}
	data, err := st.Encode()
	if err != nil {
		s.log.Warn("state cache encode failed", "session_id", st.SessionID, "error", err)
		return nil
	}
	if err := s.cache.Set(ctx, keyPrefix+st.SessionID, data, s.ttl); err != nil {
		s.log.Warn("state cache set failed", "session_id", st.SessionID, "error", err)
	}
	return nil
}

// GetState serves from the cache when possible and falls back to the
// store, backfilling the cache on a store hit.
func (s *Store) GetState(ctx context.Context, sessionID string) (*workflow.State, error) {
	data, ok, err := s.cache.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		s.log.Warn("state cache get failed", "session_id", sessionID, "error", err)
	} else if ok {
		st, decErr := workflow.Decode(data)
		if decErr == nil {
			return st, nil
		}
		s.log.Warn("state cache decode failed", "session_id", sessionID, "error", decErr)
	}

	st, err := s.inner.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if encoded, encErr := st.Encode(); encErr == nil {
		_ = s.cache.Set(ctx, keyPrefix+sessionID, encoded, s.ttl)
	}
	return st, nil
}

// DeleteState removes the row and invalidates the cached entry.
func (s *Store) DeleteState(ctx context.Context, sessionID string) error {
	if err := s.inner.DeleteState(ctx, sessionID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, keyPrefix+sessionID); err != nil {
		s.log.Warn("state cache delete failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// ListSuspended is a scan; it bypasses the cache.
func (s *Store) ListSuspended(ctx context.Context, limit int) ([]workflow.State, error) {
	return s.inner.ListSuspended(ctx, limit)
}

func (s *Store) AppendOperation(ctx context.Context, op *credit.Operation) error {
	return s.inner.AppendOperation(ctx, op)
}

func (s *Store) UpdateOperation(ctx context.Context, operationID string, status credit.OperationStatus, actualCost int64) error {
	return s.inner.UpdateOperation(ctx, operationID, status, actualCost)
}

func (s *Store) ListOperations(ctx context.Context, sessionID string) ([]credit.Operation, error) {
	return s.inner.ListOperations(ctx, sessionID)
}

func (s *Store) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *Store) Close() { s.inner.Close() }
