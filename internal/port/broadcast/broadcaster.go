// Package broadcast defines the port for pushing live workflow progress
// to connected clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client.
// Implementations drop events for slow consumers rather than block
// the workflow turn.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
