package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/port/eventstore"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event. Sequence numbers are per-session and
// assigned here; steps within a session run sequentially, so two
// appends for one session never race.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO workflow_events (session_id, user_id, turn_id, event_type, payload, request_id, sequence)
		 VALUES ($1, $2, $3, $4, $5, $6,
		         COALESCE((SELECT MAX(sequence) + 1 FROM workflow_events WHERE session_id = $1), 1))
		 RETURNING id, sequence, created_at`,
		ev.SessionID, ev.UserID, ev.TurnID, string(ev.Type), ev.Payload, ev.RequestID).
		Scan(&ev.ID, &ev.Sequence, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// eventColumns is the SELECT column list for workflow_events queries.
const eventColumns = `id, session_id, user_id, turn_id, event_type, payload, request_id, sequence, created_at`

func scanEvent(row scannable, ev *event.Event) error {
	return row.Scan(
		&ev.ID, &ev.SessionID, &ev.UserID, &ev.TurnID,
		&ev.Type, &ev.Payload, &ev.RequestID, &ev.Sequence, &ev.CreatedAt,
	)
}

// LoadBySession returns all events for the session matching the filter,
// ordered by sequence ascending.
func (s *EventStore) LoadBySession(ctx context.Context, sessionID string, filter eventstore.Filter) ([]event.Event, error) {
	args := []any{sessionID}
	conditions := []string{"session_id = $1"}
	argIdx := 2

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argIdx))
		args = append(args, types)
		argIdx++
	}
	if filter.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, *filter.After)
		argIdx++
	}
	if filter.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *filter.Before)
	}

	query := fmt.Sprintf(`SELECT %s FROM workflow_events WHERE %s ORDER BY sequence ASC`,
		eventColumns, strings.Join(conditions, " AND "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load events for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LoadByTurn returns all events for one turn, ordered by sequence ascending.
func (s *EventStore) LoadByTurn(ctx context.Context, sessionID, turnID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM workflow_events WHERE session_id = $1 AND turn_id = $2 ORDER BY sequence ASC`, eventColumns),
		sessionID, turnID)
	if err != nil {
		return nil, fmt.Errorf("load events for turn %s/%s: %w", sessionID, turnID, err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
