package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/zhuermu/zmead-sub004/internal/domain/event"
)

// BroadcastEvent marshals a workflow event and fans it out to connected
// clients. Implements the broadcast port.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	msg := Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	}
	if ev, ok := payload.(event.Event); ok {
		msg.SessionID = ev.SessionID
	}
	h.Broadcast(ctx, msg)
}
