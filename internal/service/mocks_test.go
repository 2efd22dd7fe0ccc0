package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/broadcast"
	"github.com/agentdock/agentdock/internal/port/database"
	"github.com/agentdock/agentdock/internal/port/messagequeue"
	"github.com/agentdock/agentdock/internal/port/registry"
)

// memStore is an in-memory database.Store for service tests.
type memStore struct {
	mu     sync.Mutex
	agents map[string]*agent.Agent
	now    func() time.Time

	failPut bool
}

var _ database.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		agents: make(map[string]*agent.Agent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *memStore) CreateAgent(_ context.Context, userID string, req agent.CreateRequest) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a := &agent.Agent{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            req.Name,
		Avatar:          req.Avatar,
		RoleDescription: req.RoleDescription,
		Mode:            req.Mode,
		APIConfigID:     req.APIConfigID,
		Tools:           req.Tools,
		IsPrivate:       req.IsPrivate,
		ShareScope:      req.ShareScope,
		ShareLevel:      req.ShareLevel,
		AllowedUsers:    req.AllowedUsers,
		AllowedGroups:   req.AllowedGroups,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		Schema:          agent.SchemaVersion,
		Version:         1,
	}
	a.Normalize()
	s.agents[a.ID] = clone(a)
	return a, nil
}

func (s *memStore) GetAgent(_ context.Context, userID, agentID string) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return clone(a), nil
}

func (s *memStore) UpdateAgent(_ context.Context, userID, agentID string, upd agent.Update) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	upd.Apply(a, s.now())
	return clone(a), nil
}

func (s *memStore) DeleteAgent(_ context.Context, userID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	delete(s.agents, agentID)
	return true, nil
}

func (s *memStore) ListAgents(_ context.Context, userID string, _ agent.ListOptions) ([]agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []agent.Agent
	for _, a := range s.agents {
		if a.UserID == userID {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SearchAgents(_ context.Context, userID, query string) ([]agent.Agent, error) {
	all, _ := s.ListAgents(context.Background(), userID, agent.ListOptions{})
	var out []agent.Agent
	for _, a := range all {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(query)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListPublishedAgents(_ context.Context, userID string) ([]agent.Agent, error) {
	all, _ := s.ListAgents(context.Background(), userID, agent.ListOptions{})
	var out []agent.Agent
	for _, a := range all {
		if a.IsPublished {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) PutAgent(_ context.Context, a *agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return fmt.Errorf("store put: disk full")
	}
	if !a.HasIdentity() {
		return fmt.Errorf("put agent: %w: missing identity", domain.ErrValidation)
	}
	s.agents[a.ID] = clone(a)
	return nil
}

func (s *memStore) AddTodo(_ context.Context, userID, agentID, content string, priority int) (*agent.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	now := s.now()
	td := agent.Todo{ID: uuid.NewString(), Content: content, Priority: priority, Status: agent.TodoPending, CreatedAt: now, UpdatedAt: now}
	a.Todos = append(a.Todos, td)
	a.Touch(now)
	return &td, nil
}

func (s *memStore) UpdateTodo(_ context.Context, userID, agentID, todoID string, content *string, status *agent.TodoStatus, priority *int) (*agent.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	td := a.FindTodo(todoID)
	if td == nil {
		return nil, fmt.Errorf("todo %s: %w", todoID, domain.ErrNotFound)
	}
	if content != nil {
		td.Content = *content
	}
	if status != nil {
		td.Status = *status
	}
	if priority != nil {
		td.Priority = *priority
	}
	now := s.now()
	td.UpdatedAt = now
	a.Touch(now)
	out := *td
	return &out, nil
}

func (s *memStore) DeleteTodo(_ context.Context, userID, agentID, todoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || a.UserID != userID {
		return false, nil
	}
	if !a.RemoveTodo(todoID) {
		return false, nil
	}
	a.Touch(s.now())
	return true, nil
}

func clone(a *agent.Agent) *agent.Agent {
	data, _ := json.Marshal(a)
	var out agent.Agent
	_ = json.Unmarshal(data, &out)
	return &out
}

// memRegistry is an in-memory registry.Registry. When down is set, writes
// vanish and reads fail, mimicking the adapter with its breaker open.
type memRegistry struct {
	mu      sync.Mutex
	agents  map[string]*agent.Agent // key userID/agentID
	online  map[string]struct{}
	down    bool
	puts    int
	removes int
}

var _ registry.Registry = (*memRegistry)(nil)

func newMemRegistry() *memRegistry {
	return &memRegistry{
		agents: make(map[string]*agent.Agent),
		online: make(map[string]struct{}),
	}
}

func regKey(userID, agentID string) string { return userID + "/" + agentID }

func (r *memRegistry) PutAgent(_ context.Context, a *agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.down {
		return
	}
	r.agents[regKey(a.UserID, a.ID)] = clone(a)
}

func (r *memRegistry) GetAgent(_ context.Context, userID, agentID string) (*agent.Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, false
	}
	a, ok := r.agents[regKey(userID, agentID)]
	if !ok {
		return nil, false
	}
	return clone(a), true
}

func (r *memRegistry) ListAgentIDs(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, fmt.Errorf("registry unavailable: %w", domain.ErrRegistryUnavailable)
	}
	var ids []string
	prefix := userID + "/"
	for k := range r.agents {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memRegistry) RemoveAgent(_ context.Context, userID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	if r.down {
		return
	}
	delete(r.agents, regKey(userID, agentID))
	delete(r.online, agentID)
}

func (r *memRegistry) MarkOnline(_ context.Context, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return
	}
	r.online[agentID] = struct{}{}
}

func (r *memRegistry) MarkOffline(_ context.Context, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return
	}
	delete(r.online, agentID)
}

func (r *memRegistry) OnlineAgents(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, fmt.Errorf("registry unavailable: %w", domain.ErrRegistryUnavailable)
	}
	var ids []string
	for id := range r.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memRegistry) Heartbeat(ctx context.Context, userID, agentID string, at time.Time) {
	a, ok := r.GetAgent(ctx, userID, agentID)
	if !ok {
		return
	}
	if a.PublishInfo == nil {
		a.PublishInfo = &agent.PublishInfo{}
	}
	a.PublishInfo.LastHeartbeat = at
	r.PutAgent(ctx, a)
}

func (r *memRegistry) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.down
}

func (r *memRegistry) Flush(context.Context) {}
func (r *memRegistry) Close()               {}

func (r *memRegistry) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *memRegistry) get(userID, agentID string) *agent.Agent {
	a, _ := r.GetAgent(context.Background(), userID, agentID)
	return a
}

// memHub records broadcast events.
type memHub struct {
	mu     sync.Mutex
	events []string
}

var _ broadcast.Broadcaster = (*memHub)(nil)

func (h *memHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *memHub) has(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func (h *memHub) count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// memQueue records published messages.
type memQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
}

var _ messagequeue.Queue = (*memQueue)(nil)

func newMemQueue() *memQueue {
	return &memQueue{published: make(map[string][][]byte)}
}

func (q *memQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *memQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *memQueue) Close() error { return nil }
