// Package redisstate implements statestore.Store on Redis for
// single-node deployments that run without PostgreSQL.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

const (
	stateKeyPrefix = "zmead:state:"
	opsKeyPrefix   = "zmead:ops:"
	opIndexPrefix  = "zmead:opidx:"
	awaitingSetKey = "zmead:awaiting"
)

// Store keeps workflow state and the credit journal in Redis.
// Optimistic concurrency uses WATCH: a state write that races another
// writer aborts and surfaces domain.ErrConflict.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg config.Redis, stateTTL time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client, ttl: stateTTL}, nil
}

func stateKey(sessionID string) string { return stateKeyPrefix + sessionID }
func opsKey(sessionID string) string   { return opsKeyPrefix + sessionID }

func (s *Store) SaveState(ctx context.Context, st *workflow.State) error {
	key := stateKey(st.SessionID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if st.Version != 0 {
				return domain.ErrConflict
			}
		case err != nil:
			return err
		default:
			stored, err := workflow.Decode(raw)
			if err != nil {
				return err
			}
			if stored.Version != st.Version {
				return domain.ErrConflict
			}
		}

		next := *st
		next.Version = st.Version + 1
		encoded, err := next.Encode()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			if next.Status == workflow.StatusAwaitingConfirmation {
				pipe.SAdd(ctx, awaitingSetKey, st.SessionID)
			} else {
				pipe.SRem(ctx, awaitingSetKey, st.SessionID)
			}
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = domain.ErrConflict
		}
		return fmt.Errorf("save state %s: %w", st.SessionID, err)
	}
	st.Version++
	return nil
}

func (s *Store) GetState(ctx context.Context, sessionID string) (*workflow.State, error) {
	raw, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get state %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", sessionID, err)
	}
	st, err := workflow.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode state %s: %w", sessionID, err)
	}
	return st, nil
}

func (s *Store) DeleteState(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, stateKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete state %s: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete state %s: %w", sessionID, domain.ErrNotFound)
	}
	s.client.SRem(ctx, awaitingSetKey, sessionID)
	return nil
}

func (s *Store) ListSuspended(ctx context.Context, limit int) ([]workflow.State, error) {
	if limit <= 0 {
		limit = 100
	}

	sessions, err := s.client.SMembers(ctx, awaitingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list suspended: %w", err)
	}

	var states []workflow.State
	for _, sessionID := range sessions {
		st, err := s.GetState(ctx, sessionID)
		if errors.Is(err, domain.ErrNotFound) {
			// State expired out from under the index.
			s.client.SRem(ctx, awaitingSetKey, sessionID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if st.Status == workflow.StatusAwaitingConfirmation {
			states = append(states, *st)
		}
	}

	sort.Slice(states, func(i, j int) bool { return states[i].UpdatedAt.Before(states[j].UpdatedAt) })
	if len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

// --- Credit operation journal ---

func (s *Store) AppendOperation(ctx context.Context, op *credit.Operation) error {
	cp := *op
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt

	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", op.OperationID, err)
	}

	ok, err := s.client.HSetNX(ctx, opsKey(op.SessionID), op.OperationID, raw).Result()
	if err != nil {
		return fmt.Errorf("append operation %s: %w", op.OperationID, err)
	}
	if !ok {
		return fmt.Errorf("append operation %s: %w", op.OperationID, domain.ErrConflict)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, opIndexPrefix+op.OperationID, op.SessionID, s.ttl)
	pipe.Expire(ctx, opsKey(op.SessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index operation %s: %w", op.OperationID, err)
	}
	return nil
}

func (s *Store) UpdateOperation(ctx context.Context, operationID string, status credit.OperationStatus, actualCost int64) error {
	sessionID, err := s.client.Get(ctx, opIndexPrefix+operationID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("update operation %s: %w", operationID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update operation %s: %w", operationID, err)
	}

	raw, err := s.client.HGet(ctx, opsKey(sessionID), operationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("update operation %s: %w", operationID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update operation %s: %w", operationID, err)
	}

	var op credit.Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return fmt.Errorf("unmarshal operation %s: %w", operationID, err)
	}
	op.Status = status
	op.Actual = actualCost
	op.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", operationID, err)
	}
	if err := s.client.HSet(ctx, opsKey(sessionID), operationID, updated).Err(); err != nil {
		return fmt.Errorf("update operation %s: %w", operationID, err)
	}
	return nil
}

func (s *Store) ListOperations(ctx context.Context, sessionID string) ([]credit.Operation, error) {
	entries, err := s.client.HGetAll(ctx, opsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list operations %s: %w", sessionID, err)
	}

	ops := make([]credit.Operation, 0, len(entries))
	for _, raw := range entries {
		var op credit.Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, fmt.Errorf("unmarshal operation: %w", err)
		}
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].OperationID < ops[j].OperationID
		}
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() {
	_ = s.client.Close()
}
