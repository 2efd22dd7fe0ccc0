package a2a

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/messagequeue"
)

// Handler serves the discovery endpoints of one published agent.
// Task requests are forwarded to the external execution engine over the
// queue; the handler only acknowledges them as queued and remembers the
// accepted ids so status polls can distinguish queued from unknown.
type Handler struct {
	agentID   string
	card      AgentCard
	queue     messagequeue.Queue
	startedAt time.Time

	mu       sync.Mutex
	accepted map[string]time.Time
}

// NewHandler creates the endpoint handler for one agent.
func NewHandler(a *agent.Agent, endpointURL string, queue messagequeue.Queue) *Handler {
	return &Handler{
		agentID:   a.ID,
		card:      BuildAgentCard(a, endpointURL),
		queue:     queue,
		startedAt: time.Now().UTC(),
		accepted:  make(map[string]time.Time),
	}
}

// Card returns the capability descriptor served by this endpoint.
func (h *Handler) Card() AgentCard {
	return h.card
}

// Routes builds the chi router for this agent's endpoint server.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Get("/health", h.handleHealth)
	r.Post("/a2a/tasks", h.handleCreateTask)
	r.Get("/a2a/tasks/{taskID}", h.handleGetTask)
	return r
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.card)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"agent_id":   h.agentID,
		"started_at": h.startedAt,
	})
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, `{"error":"id is required"}`, http.StatusBadRequest)
		return
	}

	resp := TaskResponse{ID: req.ID, Status: "queued"}

	if h.queue != nil {
		payload, err := json.Marshal(req)
		if err == nil {
			err = h.queue.Publish(r.Context(), messagequeue.InvokeSubject(h.agentID), payload)
		}
		if err != nil {
			slog.Error("task dispatch failed", "agent_id", h.agentID, "task_id", req.ID, "error", err)
			resp.Status = "failed"
			resp.Error = "dispatch failed"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
	}

	h.mu.Lock()
	h.accepted[req.ID] = time.Now().UTC()
	h.mu.Unlock()

	slog.Info("task queued", "agent_id", h.agentID, "task_id", req.ID, "skill", req.Skill)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	h.mu.Lock()
	_, ok := h.accepted[taskID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}

	// Execution happens in the external engine; this surface only tracks
	// acceptance.
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TaskResponse{ID: taskID, Status: "queued"})
}
