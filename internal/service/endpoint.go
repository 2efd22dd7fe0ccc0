package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/adapter/otel"
	"github.com/agentdock/agentdock/internal/adapter/ws"
	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/pool"
	"github.com/agentdock/agentdock/internal/port/a2a"
	"github.com/agentdock/agentdock/internal/port/broadcast"
	"github.com/agentdock/agentdock/internal/port/database"
	"github.com/agentdock/agentdock/internal/port/messagequeue"
	"github.com/agentdock/agentdock/internal/port/registry"
)

// ServerInfo describes one running endpoint server.
type ServerInfo struct {
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
	// PortReused reports whether the preferred port from the previous
	// publish could be bound again.
	PortReused bool `json:"port_reused"`
}

// StartResult is returned by Start: the live server plus the capability
// descriptor it serves.
type StartResult struct {
	Info ServerInfo    `json:"info"`
	Card a2a.AgentCard `json:"card"`
}

// BatchError is one agent's failure inside a bulk start.
type BatchError struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// BatchResult summarizes a bulk start.
type BatchResult struct {
	Total   int          `json:"total"`
	Started int          `json:"started"`
	Errors  []BatchError `json:"errors,omitempty"`
}

type runningServer struct {
	info ServerInfo
	srv  *http.Server
	ln   net.Listener
}

// EndpointManager owns the lifecycle of per-agent endpoint servers. Each
// published agent gets its own http.Server bound to its own port, serving
// the capability descriptor, a health probe, and task intake. The manager
// guarantees at most one server per agent.
type EndpointManager struct {
	store    database.Store
	registry registry.Registry
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	cfg      config.Endpoint
	metrics  *otel.Metrics // optional

	mu      sync.Mutex
	running map[string]*runningServer

	startPool *pool.Pool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	loopWG   sync.WaitGroup
}

// NewEndpointManager creates an EndpointManager. Call Run to start the
// health and heartbeat loops.
func NewEndpointManager(store database.Store, reg registry.Registry, queue messagequeue.Queue, hub broadcast.Broadcaster, cfg config.Endpoint, metrics *otel.Metrics) *EndpointManager {
	return &EndpointManager{
		store:     store,
		registry:  reg,
		queue:     queue,
		hub:       hub,
		cfg:       cfg,
		metrics:   metrics,
		running:   make(map[string]*runningServer),
		startPool: pool.New(cfg.MaxConcurrentStart),
		stop:      make(chan struct{}),
	}
}

// Start publishes the agent: binds a port, spins up its endpoint server,
// persists the endpoint info locally, and marks the agent online in the
// registry. If the agent is already running this is a no-op returning the
// existing server. preferredPort 0 means "use the port from the last
// publish, else any free port".
func (m *EndpointManager) Start(ctx context.Context, userID, agentID string, preferredPort int) (*StartResult, error) {
	a, err := m.store.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if rs, ok := m.running[agentID]; ok {
		m.mu.Unlock()
		h := a2a.NewHandler(a, rs.info.URL, m.queue)
		return &StartResult{Info: rs.info, Card: h.Card()}, nil
	}

	if preferredPort == 0 && a.PublishInfo != nil {
		preferredPort = a.PublishInfo.ServerPort
	}

	ln, reused, err := m.bind(preferredPort)
	if err != nil {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.EndpointStartFailed.Add(ctx, 1)
		}
		return nil, fmt.Errorf("bind endpoint for agent %s: %w", agentID, err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://%s:%d", m.cfg.Host, port)
	handler := a2a.NewHandler(a, url, m.queue)

	rs := &runningServer{
		info: ServerInfo{
			AgentID:    agentID,
			UserID:     userID,
			Name:       a.Name,
			Port:       port,
			URL:        url,
			StartedAt:  time.Now().UTC(),
			PortReused: reused,
		},
		srv: &http.Server{Handler: handler.Routes()},
		ln:  ln,
	}
	m.running[agentID] = rs
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := rs.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("endpoint server exited", "agent_id", agentID, "port", port, "error", err)
		}
	}()

	if err := m.persistPublished(ctx, userID, agentID, port, url); err != nil {
		// The server is up; a local write failure here must not strand it.
		slog.Error("persist publish info failed", "agent_id", agentID, "error", err)
	}
	m.registry.MarkOnline(ctx, agentID)

	if m.metrics != nil {
		m.metrics.EndpointsStarted.Add(ctx, 1)
		if preferredPort != 0 {
			if reused {
				m.metrics.PortReused.Add(ctx, 1)
			} else {
				m.metrics.PortReassigned.Add(ctx, 1)
			}
		}
	}

	m.hub.BroadcastEvent(ctx, ws.EventAgentPublished, ws.AgentEvent{
		AgentID: agentID, UserID: userID, Name: a.Name, Port: port, URL: url,
	})
	slog.Info("endpoint started", "agent_id", agentID, "port", port, "port_reused", reused)

	return &StartResult{Info: rs.info, Card: handler.Card()}, nil
}

// bind tries the preferred port first and falls back to an OS-assigned one.
func (m *EndpointManager) bind(preferred int) (net.Listener, bool, error) {
	if preferred > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", m.cfg.Host, preferred))
		if err == nil {
			return ln, true, nil
		}
		slog.Debug("preferred port unavailable", "port", preferred, "error", err)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:0", m.cfg.Host))
	if err != nil {
		return nil, false, err
	}
	return ln, false, nil
}

func (m *EndpointManager) persistPublished(ctx context.Context, userID, agentID string, port int, url string) error {
	now := time.Now().UTC()
	status := agent.ServiceRunning
	published := true
	upd := agent.Update{
		IsPublished: &published,
		PublishInfo: &agent.PublishInfoUpdate{
			ServerPort:    &port,
			ServerURL:     &url,
			PublishedAt:   &now,
			ServiceStatus: &status,
			LastHeartbeat: &now,
		},
	}
	updated, err := m.store.UpdateAgent(ctx, userID, agentID, upd)
	if err != nil {
		return err
	}
	m.registry.PutAgent(ctx, updated)
	return nil
}

// Stop shuts the agent's endpoint server down gracefully and marks it
// offline in the registry. The agent's persisted record is left untouched,
// so a stopped-but-still-published agent is picked up again by the next
// bulk start. Callers that mean "unpublish" use Unpublish instead.
// Stopping an agent that is not running is a no-op.
func (m *EndpointManager) Stop(ctx context.Context, userID, agentID string) error {
	m.mu.Lock()
	rs, ok := m.running[agentID]
	if ok {
		delete(m.running, agentID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
	defer cancel()
	if err := rs.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("endpoint shutdown not clean", "agent_id", agentID, "error", err)
		_ = rs.srv.Close()
	}

	m.registry.MarkOffline(ctx, agentID)

	m.hub.BroadcastEvent(ctx, ws.EventAgentStopped, ws.AgentEvent{
		AgentID: agentID, UserID: userID, Port: rs.info.Port,
	})
	slog.Info("endpoint stopped", "agent_id", agentID, "port", rs.info.Port)
	return nil
}

// Unpublish stops the agent's endpoint server and records the agent as no
// longer published, mirroring the change to the registry. This is the
// user-facing stop; process shutdown goes through StopAll, which keeps the
// published flag so agents come back on the next boot.
func (m *EndpointManager) Unpublish(ctx context.Context, userID, agentID string) error {
	if err := m.Stop(ctx, userID, agentID); err != nil {
		return err
	}
	return m.persistStopped(ctx, userID, agentID)
}

func (m *EndpointManager) persistStopped(ctx context.Context, userID, agentID string) error {
	status := agent.ServiceStopped
	published := false
	empty := ""
	// ServerPort is kept so the next publish can prefer the same port.
	upd := agent.Update{
		IsPublished: &published,
		PublishInfo: &agent.PublishInfoUpdate{
			ServerURL:     &empty,
			ServiceStatus: &status,
		},
	}
	updated, err := m.store.UpdateAgent(ctx, userID, agentID, upd)
	if err != nil {
		return err
	}
	m.registry.PutAgent(ctx, updated)
	return nil
}

// Restart stops the agent's server, waits for the port to settle, and
// starts it again preferring the previous port.
func (m *EndpointManager) Restart(ctx context.Context, userID, agentID string) (*StartResult, error) {
	m.mu.Lock()
	var lastPort int
	if rs, ok := m.running[agentID]; ok {
		lastPort = rs.info.Port
	}
	m.mu.Unlock()

	if err := m.Stop(ctx, userID, agentID); err != nil {
		return nil, err
	}

	select {
	case <-time.After(m.cfg.SettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return m.Start(ctx, userID, agentID, lastPort)
}

// StartAllPublished starts endpoint servers for every agent the user has
// marked published. Starts run concurrently up to the configured limit and
// each gets its own timeout; one failure never aborts the rest.
func (m *EndpointManager) StartAllPublished(ctx context.Context, userID string) (*BatchResult, error) {
	agents, err := m.store.ListPublishedAgents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list published agents: %w", err)
	}

	res := &BatchResult{Total: len(agents)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := range agents {
		a := agents[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.startPool.Run(ctx, func() error {
				startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartTimeout)
				defer cancel()
				_, err := m.Start(startCtx, userID, a.ID, 0)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, BatchError{AgentID: a.ID, Error: err.Error()})
				slog.Error("bulk start failed", "agent_id", a.ID, "error", err)
				return
			}
			res.Started++
		}()
	}
	wg.Wait()

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].AgentID < res.Errors[j].AgentID })
	slog.Info("bulk start finished", "user_id", userID,
		"total", res.Total, "started", res.Started, "failed", len(res.Errors))
	return res, nil
}

// Status returns the running server for an agent, if any.
func (m *EndpointManager) Status(agentID string) (*ServerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.running[agentID]
	if !ok {
		return nil, false
	}
	info := rs.info
	return &info, true
}

// ListRunning returns all running servers sorted by agent id.
func (m *EndpointManager) ListRunning() []ServerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ServerInfo, 0, len(m.running))
	for _, rs := range m.running {
		out = append(out, rs.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// StopAll shuts every running server down, tolerating per-server failures.
// Used on process shutdown. The background loops are joined first so a
// health-probe restart cannot rebind a server after it was stopped here.
// Published flags are left alone; the next boot restarts these agents.
func (m *EndpointManager) StopAll(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.stop) })
	m.loopWG.Wait()

	for _, info := range m.ListRunning() {
		if err := m.Stop(ctx, info.UserID, info.AgentID); err != nil {
			slog.Error("stop endpoint on shutdown", "agent_id", info.AgentID, "error", err)
		}
	}
	m.wg.Wait()
}

// Run starts the background health probe and registry heartbeat loops.
// Returns immediately; the loops stop when StopAll is called.
func (m *EndpointManager) Run() {
	m.loopWG.Add(2)
	go m.healthLoop()
	go m.heartbeatLoop()
}

// healthLoop probes every running server's health endpoint and restarts
// servers that stop responding.
func (m *EndpointManager) healthLoop() {
	defer m.loopWG.Done()
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	client := &http.Client{Timeout: m.cfg.ShutdownTimeout}

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, info := range m.ListRunning() {
				if m.probe(client, info.URL) {
					continue
				}
				slog.Warn("endpoint health probe failed, restarting", "agent_id", info.AgentID, "url", info.URL)
				ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StartTimeout)
				if _, err := m.Restart(ctx, info.UserID, info.AgentID); err != nil {
					slog.Error("endpoint restart failed", "agent_id", info.AgentID, "error", err)
					m.markErrored(ctx, info.UserID, info.AgentID)
				}
				cancel()
			}
		}
	}
}

func (m *EndpointManager) probe(client *http.Client, url string) bool {
	resp, err := client.Get(url + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// markErrored reconciles an agent whose server died and could not be
// restarted: it is no longer published, and its status records the failure.
func (m *EndpointManager) markErrored(ctx context.Context, userID, agentID string) {
	status := agent.ServiceError
	published := false
	upd := agent.Update{
		IsPublished: &published,
		PublishInfo: &agent.PublishInfoUpdate{ServiceStatus: &status},
	}
	if updated, err := m.store.UpdateAgent(ctx, userID, agentID, upd); err == nil {
		m.registry.PutAgent(ctx, updated)
	}
	m.registry.MarkOffline(ctx, agentID)
}

// heartbeatLoop refreshes each running agent's registry heartbeat.
func (m *EndpointManager) heartbeatLoop() {
	defer m.loopWG.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, info := range m.ListRunning() {
				m.registry.Heartbeat(context.Background(), info.UserID, info.AgentID, now)
			}
		}
	}
}
