// Package broadcast defines the port for lifecycle event fan-out.
package broadcast

import "context"

// Broadcaster pushes lifecycle events to connected clients. The fan-out
// mechanism itself is external to the registry core.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
