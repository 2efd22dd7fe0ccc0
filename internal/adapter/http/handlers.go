package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/registry"
	"github.com/agentdock/agentdock/internal/service"
)

// Handlers bundles the services exposed over the REST facade.
type Handlers struct {
	agents    *service.AgentService
	endpoints *service.EndpointManager
	sync      *service.SyncService
	autostart *service.AutoStartService
	registry  registry.Registry

	startedAt time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(agents *service.AgentService, endpoints *service.EndpointManager, syncSvc *service.SyncService, autostart *service.AutoStartService, reg registry.Registry) *Handlers {
	return &Handlers{
		agents:    agents,
		endpoints: endpoints,
		sync:      syncSvc,
		autostart: autostart,
		registry:  reg,
		startedAt: time.Now().UTC(),
	}
}

// ---------------------------------------------------------------------------
// Agents
// ---------------------------------------------------------------------------

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userID")
	if !requireField(w, userID, "userID") {
		return
	}
	req, ok := readJSON[agent.CreateRequest](w, r)
	if !ok {
		return
	}

	a, err := h.agents.Create(r.Context(), userID, req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.agents.Get(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := agent.ListOptions{
		Mode:       q.Get("mode"),
		ActiveOnly: q.Get("active") == "true",
		SortBy:     q.Get("sort_by"),
		Order:      agent.SortOrder(q.Get("order")),
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		opts.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		opts.Limit = v
	}

	agents, err := h.agents.List(r.Context(), urlParam(r, "userID"), opts)
	if err != nil {
		writeDomainError(w, err, "agents not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *Handlers) SearchAgents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if !requireField(w, query, "q") {
		return
	}

	agents, err := h.agents.Search(r.Context(), urlParam(r, "userID"), query)
	if err != nil {
		writeDomainError(w, err, "agents not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	upd, ok := readJSON[agent.Update](w, r)
	if !ok {
		return
	}

	a, err := h.agents.Update(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"), upd)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	existed, err := h.agents.Delete(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Todos
// ---------------------------------------------------------------------------

type todoRequest struct {
	Content  string            `json:"content"`
	Status   *agent.TodoStatus `json:"status,omitempty"`
	Priority *int              `json:"priority,omitempty"`
}

func (h *Handlers) AddTodo(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[todoRequest](w, r)
	if !ok {
		return
	}
	if err := agent.ValidateTodo(req.Content, ""); err != nil {
		writeDomainError(w, err, "")
		return
	}
	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
	}

	td, err := h.agents.AddTodo(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"), req.Content, priority)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, td)
}

func (h *Handlers) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[todoRequest](w, r)
	if !ok {
		return
	}
	if req.Status != nil {
		if err := agent.ValidateTodo("-", *req.Status); err != nil {
			writeDomainError(w, err, "")
			return
		}
	}
	var content *string
	if req.Content != "" {
		content = &req.Content
	}

	td, err := h.agents.UpdateTodo(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"), urlParam(r, "todoID"), content, req.Status, req.Priority)
	if err != nil {
		writeDomainError(w, err, "todo not found")
		return
	}
	writeJSON(w, http.StatusOK, td)
}

func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	existed, err := h.agents.DeleteTodo(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"), urlParam(r, "todoID"))
	if err != nil {
		writeDomainError(w, err, "todo not found")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "todo not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Publish lifecycle
// ---------------------------------------------------------------------------

type publishRequest struct {
	PreferredPort int `json:"preferred_port,omitempty"`
}

func (h *Handlers) PublishAgent(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength > 0 {
		var ok bool
		if req, ok = readJSON[publishRequest](w, r); !ok {
			return
		}
	}

	res, err := h.endpoints.Start(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"), req.PreferredPort)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) StopAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.endpoints.Unpublish(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID")); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RestartAgent(w http.ResponseWriter, r *http.Request) {
	res, err := h.endpoints.Restart(r.Context(), urlParam(r, "userID"), urlParam(r, "agentID"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) AgentStatus(w http.ResponseWriter, r *http.Request) {
	userID, agentID := urlParam(r, "userID"), urlParam(r, "agentID")

	a, err := h.agents.Get(r.Context(), userID, agentID)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	info, running := h.endpoints.Status(agentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":     agentID,
		"is_published": a.IsPublished,
		"running":      running,
		"server":       info,
		"publish_info": a.PublishInfo,
	})
}

func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	servers := h.endpoints.ListRunning()
	online, err := h.registry.OnlineAgents(r.Context())
	if err != nil {
		// Registry outage degrades the inventory to local knowledge only.
		online = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"servers": servers,
		"count":   len(servers),
		"online":  online,
	})
}

// ---------------------------------------------------------------------------
// Sync / boot
// ---------------------------------------------------------------------------

func (h *Handlers) AutoStart(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userID")
	if !requireField(w, userID, "userID") {
		return
	}

	res, err := h.autostart.Boot(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) ForceSync(w http.ResponseWriter, r *http.Request) {
	userID := urlParam(r, "userID")
	if !requireField(w, userID, "userID") {
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Reconcile(r.Context(), userID))
}

func (h *Handlers) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sync.CheckConsistency(r.Context(), urlParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"uptime_seconds":     int(time.Since(h.startedAt).Seconds()),
		"registry_available": h.registry.Available(),
		"running_servers":    len(h.endpoints.ListRunning()),
	})
}
