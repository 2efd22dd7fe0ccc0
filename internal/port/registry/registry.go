// Package registry defines the remote registry port (interface).
package registry

import (
	"context"
	"time"

	"github.com/agentdock/agentdock/internal/domain/agent"
)

// Registry is the port interface for the shared, possibly-unavailable remote
// store used for cross-device visibility and presence.
//
// Writes are best-effort: implementations buffer, coalesce, and silently drop
// them while the backing store is judged unavailable. Reads are bounded-time
// and report malformed payloads as not-found. A registry outage must never
// affect local correctness.
type Registry interface {
	// PutAgent enqueues a write of the full record. Never blocks the caller
	// and never returns an error for availability problems.
	PutAgent(ctx context.Context, a *agent.Agent)

	// GetAgent fetches a record within the configured read timeout.
	// Returns (nil, false) on timeout, absence, or malformed payload.
	GetAgent(ctx context.Context, userID, agentID string) (*agent.Agent, bool)

	// ListAgentIDs returns the ids of all agents registered for the user.
	ListAgentIDs(ctx context.Context, userID string) ([]string, error)

	// RemoveAgent deletes the record and drops the id from the online set.
	RemoveAgent(ctx context.Context, userID, agentID string)

	// MarkOnline / MarkOffline toggle membership in the global online set.
	// Both are idempotent read-modify-write operations.
	MarkOnline(ctx context.Context, agentID string)
	MarkOffline(ctx context.Context, agentID string)

	// OnlineAgents returns the current global online set.
	OnlineAgents(ctx context.Context) ([]string, error)

	// Heartbeat refreshes publish_info.last_heartbeat on the registry record.
	Heartbeat(ctx context.Context, userID, agentID string, at time.Time)

	// Available reports the breaker's current judgment of the backing store.
	Available() bool

	// Flush forces pending coalesced writes out. Used in shutdown and tests.
	Flush(ctx context.Context)

	// Close stops the health probe and flush loops.
	Close()
}
