package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
	"github.com/zhuermu/zmead-sub004/internal/logger"
	"github.com/zhuermu/zmead-sub004/internal/port/broadcast"
	"github.com/zhuermu/zmead-sub004/internal/port/eventstore"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
)

// Emitter records workflow lifecycle events on every sink at once: the
// append-only audit log, the broker stream, and connected WebSocket
// clients. Every sink is best-effort — an event that cannot be
// delivered is logged and dropped, never allowed to fail the turn that
// produced it.
type Emitter struct {
	events eventstore.Store
	queue  messagequeue.Queue
	hub    broadcast.Broadcaster
	log    *slog.Logger
}

// NewEmitter creates an Emitter. Any sink may be nil and is skipped.
func NewEmitter(events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, log *slog.Logger) *Emitter {
	return &Emitter{events: events, queue: queue, hub: hub, log: log}
}

// Emit publishes one event for the given workflow state.
func (e *Emitter) Emit(ctx context.Context, st *workflow.State, typ event.Type, payload any) {
	if e == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("marshal event payload", "type", typ, "error", err)
		body = []byte("{}")
	}

	ev := event.Event{
		ID:        uuid.NewString(),
		SessionID: st.SessionID,
		UserID:    st.UserID,
		TurnID:    st.TurnID,
		Type:      typ,
		Payload:   body,
		RequestID: logger.RequestID(ctx),
		CreatedAt: time.Now().UTC(),
	}

	if e.events != nil {
		if err := e.events.Append(ctx, &ev); err != nil {
			e.log.Error("append event", "type", typ, "session_id", st.SessionID, "error", err)
		}
	}

	if e.queue != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			e.log.Error("marshal event", "type", typ, "error", err)
		} else if err := e.queue.Publish(ctx, ev.Subject(), data); err != nil {
			e.log.Warn("publish event", "type", typ, "subject", ev.Subject(), "error", err)
		}
	}

	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, string(typ), ev)
	}
}
