// Package service implements the use cases of the agent registry core.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentdock/agentdock/internal/adapter/ws"
	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/broadcast"
	"github.com/agentdock/agentdock/internal/port/database"
	"github.com/agentdock/agentdock/internal/port/registry"
)

// AgentService handles agent and todo CRUD. The local store is the source
// of truth; every successful mutation is mirrored to the remote registry
// through its non-blocking write path, so a registry outage never fails a
// local operation.
type AgentService struct {
	store     database.Store
	registry  registry.Registry
	hub       broadcast.Broadcaster
	endpoints *EndpointManager
}

// NewAgentService creates a new AgentService.
func NewAgentService(store database.Store, reg registry.Registry, hub broadcast.Broadcaster) *AgentService {
	return &AgentService{store: store, registry: reg, hub: hub}
}

// SetEndpointManager attaches the endpoint manager so a delete can tear
// down the agent's live server first.
func (s *AgentService) SetEndpointManager(em *EndpointManager) {
	s.endpoints = em
}

// Create validates and persists a new agent, then mirrors it to the registry.
func (s *AgentService) Create(ctx context.Context, userID string, req agent.CreateRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a, err := s.store.CreateAgent(ctx, userID, req)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	s.registry.PutAgent(ctx, a)
	s.hub.BroadcastEvent(ctx, ws.EventAgentCreated, ws.AgentEvent{
		AgentID: a.ID, UserID: userID, Name: a.Name,
	})

	slog.Info("agent created", "agent_id", a.ID, "user_id", userID, "name", a.Name)
	return a, nil
}

// Get returns one agent.
func (s *AgentService) Get(ctx context.Context, userID, agentID string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, userID, agentID)
}

// List returns the user's agents with filtering, sorting, and pagination.
func (s *AgentService) List(ctx context.Context, userID string, opts agent.ListOptions) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx, userID, opts)
}

// Search returns agents whose name, role, or mode contains the query.
func (s *AgentService) Search(ctx context.Context, userID, query string) ([]agent.Agent, error) {
	return s.store.SearchAgents(ctx, userID, query)
}

// Update applies a partial mutation and mirrors the result to the registry.
func (s *AgentService) Update(ctx context.Context, userID, agentID string, upd agent.Update) (*agent.Agent, error) {
	a, err := s.store.UpdateAgent(ctx, userID, agentID, upd)
	if err != nil {
		return nil, err
	}

	s.registry.PutAgent(ctx, a)
	s.hub.BroadcastEvent(ctx, ws.EventAgentUpdated, ws.AgentEvent{
		AgentID: a.ID, UserID: userID, Name: a.Name,
	})
	return a, nil
}

// Delete stops the agent's endpoint server if running, removes the record
// locally, and removes it from the registry. Idempotent: returns false
// without error when the record was already gone.
func (s *AgentService) Delete(ctx context.Context, userID, agentID string) (bool, error) {
	if s.endpoints != nil {
		if err := s.endpoints.Stop(ctx, userID, agentID); err != nil {
			slog.Warn("endpoint stop before delete failed", "agent_id", agentID, "error", err)
		}
	}

	existed, err := s.store.DeleteAgent(ctx, userID, agentID)
	if err != nil {
		return false, err
	}

	s.registry.RemoveAgent(ctx, userID, agentID)
	if existed {
		s.hub.BroadcastEvent(ctx, ws.EventAgentDeleted, ws.AgentEvent{AgentID: agentID, UserID: userID})
		slog.Info("agent deleted", "agent_id", agentID, "user_id", userID)
	}
	return existed, nil
}

// AddTodo appends a todo through the parent agent.
func (s *AgentService) AddTodo(ctx context.Context, userID, agentID, content string, priority int) (*agent.Todo, error) {
	td, err := s.store.AddTodo(ctx, userID, agentID, content, priority)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, userID, agentID)
	return td, nil
}

// UpdateTodo mutates a todo through the parent agent.
func (s *AgentService) UpdateTodo(ctx context.Context, userID, agentID, todoID string, content *string, status *agent.TodoStatus, priority *int) (*agent.Todo, error) {
	td, err := s.store.UpdateTodo(ctx, userID, agentID, todoID, content, status, priority)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, userID, agentID)
	return td, nil
}

// DeleteTodo removes a todo through the parent agent.
func (s *AgentService) DeleteTodo(ctx context.Context, userID, agentID, todoID string) (bool, error) {
	existed, err := s.store.DeleteTodo(ctx, userID, agentID, todoID)
	if err != nil {
		return false, err
	}
	if existed {
		s.mirror(ctx, userID, agentID)
	}
	return existed, nil
}

// mirror pushes the current local record to the registry. Best-effort: a
// read failure here only skips the mirror step.
func (s *AgentService) mirror(ctx context.Context, userID, agentID string) {
	a, err := s.store.GetAgent(ctx, userID, agentID)
	if err != nil {
		slog.Debug("registry mirror skipped", "agent_id", agentID, "error", err)
		return
	}
	s.registry.PutAgent(ctx, a)
}
