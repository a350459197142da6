// Package eventstore defines the port interface for the append-only
// workflow event log.
package eventstore

import (
	"context"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain/event"
)

// Filter controls which events are returned by LoadBySession.
type Filter struct {
	Types  []event.Type `json:"types,omitempty"`
	After  *time.Time   `json:"after,omitempty"`
	Before *time.Time   `json:"before,omitempty"`
}

// Store is the port interface for appending and loading workflow events.
type Store interface {
	// Append persists a new event. Sequence is assigned by the store.
	Append(ctx context.Context, ev *event.Event) error

	// LoadBySession returns all events for the session, ordered by sequence.
	LoadBySession(ctx context.Context, sessionID string, filter Filter) ([]event.Event, error)

	// LoadByTurn returns all events for one turn, ordered by sequence.
	LoadByTurn(ctx context.Context, sessionID, turnID string) ([]event.Event, error)
}
