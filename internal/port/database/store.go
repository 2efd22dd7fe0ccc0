// Package database defines the local agent store port (interface).
package database

import (
	"context"
	"time"

	"github.com/agentdock/agentdock/internal/domain/agent"
)

// Store is the port interface for the local, always-available agent store.
// It is the source of truth for agent configuration; every method must work
// with no network dependency.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, userID string, req agent.CreateRequest) (*agent.Agent, error)
	GetAgent(ctx context.Context, userID, agentID string) (*agent.Agent, error)
	UpdateAgent(ctx context.Context, userID, agentID string, upd agent.Update) (*agent.Agent, error)
	DeleteAgent(ctx context.Context, userID, agentID string) (bool, error)
	ListAgents(ctx context.Context, userID string, opts agent.ListOptions) ([]agent.Agent, error)
	SearchAgents(ctx context.Context, userID, query string) ([]agent.Agent, error)
	ListPublishedAgents(ctx context.Context, userID string) ([]agent.Agent, error)

	// PutAgent writes a full record as-is, preserving its UpdatedAt. Used by
	// the reconciler to download remote records without re-stamping them.
	PutAgent(ctx context.Context, a *agent.Agent) error

	// Todos (owned by the parent agent; each call bumps the parent's UpdatedAt)
	AddTodo(ctx context.Context, userID, agentID, content string, priority int) (*agent.Todo, error)
	UpdateTodo(ctx context.Context, userID, agentID, todoID string, content *string, status *agent.TodoStatus, priority *int) (*agent.Todo, error)
	DeleteTodo(ctx context.Context, userID, agentID, todoID string) (bool, error)
}

// Clock abstracts wall-clock time so stores and services can be tested with
// a fixed time source.
type Clock func() time.Time
