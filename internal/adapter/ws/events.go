package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventAgentCreated     = "agent.created"
	EventAgentUpdated     = "agent.updated"
	EventAgentDeleted     = "agent.deleted"
	EventAgentPublished   = "agent.published"
	EventAgentStopped     = "agent.stopped"
	EventSyncCompleted    = "sync.completed"
	EventAutoStartSummary = "autostart.summary"
)

// AgentEvent is broadcast on agent CRUD and publish lifecycle changes.
type AgentEvent struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Port    int    `json:"port,omitempty"`
	URL     string `json:"url,omitempty"`
}

// SyncEvent is broadcast when a reconciliation run finishes.
type SyncEvent struct {
	UserID     string   `json:"user_id"`
	Downloaded int      `json:"downloaded"`
	Uploaded   int      `json:"uploaded"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// AutoStartEvent is the single boot summary surfaced to the user.
type AutoStartEvent struct {
	UserID  string   `json:"user_id"`
	Total   int      `json:"total"`
	Started int      `json:"started"`
	Errors  []string `json:"errors,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
