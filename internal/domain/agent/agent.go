// Package agent defines the Agent domain entity and its owned sub-items.
package agent

import (
	"time"
)

// SchemaVersion is the current persisted record version. Records loaded with
// an older version pass through Normalize before being returned to callers.
const SchemaVersion = 2

// TodoStatus represents the state of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// ShareScope controls who may discover a shared agent.
type ShareScope string

const (
	ScopeNone    ShareScope = "none"
	ScopeFriends ShareScope = "friends"
	ScopeGroups  ShareScope = "groups"
	ScopePublic  ShareScope = "public"
)

// ServiceStatus describes the liveness of a published endpoint.
type ServiceStatus string

const (
	ServiceRunning ServiceStatus = "running"
	ServiceStopped ServiceStatus = "stopped"
	ServiceError   ServiceStatus = "error"
)

// ToolRef is one tool enabled for an agent. Tool execution itself is owned
// by the external task engine; this is configuration only.
type ToolRef struct {
	ToolID  string            `json:"tool_id"`
	Enabled bool              `json:"enabled"`
	Config  map[string]string `json:"config,omitempty"`
}

// Todo is a task item owned exclusively by its parent agent. It is only
// created, updated, or deleted through the parent's update path, which also
// bumps the parent's UpdatedAt.
type Todo struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Status    TodoStatus `json:"status"`
	Priority  int        `json:"priority,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PublishInfo records the network endpoint of a published agent. It survives
// a stop (minus liveness fields) so the next publish can prefer the same port.
type PublishInfo struct {
	TerminalType  string        `json:"terminal_type,omitempty"`
	ServerPort    int           `json:"server_port,omitempty"`
	ServerURL     string        `json:"server_url,omitempty"`
	PublishedAt   time.Time     `json:"published_at,omitzero"`
	ServiceStatus ServiceStatus `json:"service_status,omitempty"`
	LastHeartbeat time.Time     `json:"last_heartbeat,omitzero"`
}

// Agent is a named, user-owned bundle of LLM-provider configuration, mode,
// tools, and todo list, optionally published as a network-reachable service.
type Agent struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Name            string    `json:"name"`
	Avatar          string    `json:"avatar,omitempty"`
	RoleDescription string    `json:"role_description,omitempty"`
	Mode            string    `json:"mode,omitempty"`
	APIConfigID     string    `json:"api_config_id,omitempty"`
	Tools           []ToolRef `json:"tools,omitempty"`
	Todos           []Todo    `json:"todos,omitempty"`

	IsPrivate     bool       `json:"is_private"`
	ShareScope    ShareScope `json:"share_scope,omitempty"`
	ShareLevel    int        `json:"share_level"`
	AllowedUsers  []string   `json:"allowed_users,omitempty"`
	AllowedGroups []string   `json:"allowed_groups,omitempty"`
	DeniedUsers   []string   `json:"denied_users,omitempty"`
	Permissions   []string   `json:"permissions,omitempty"`

	IsPublished bool         `json:"is_published"`
	PublishInfo *PublishInfo `json:"publish_info,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"is_active"`

	Schema  int `json:"schema_version"`
	Version int `json:"version"`
}

// HasIdentity reports whether the record carries the required identity
// fields. Registry payloads missing any of them are treated as absent by
// readers, never as partial records to merge.
func (a *Agent) HasIdentity() bool {
	return a != nil && a.ID != "" && a.UserID != "" && a.Name != ""
}

// NewerThan reports whether a's last mutation happened strictly after b's,
// at millisecond resolution. Wall-clock last-write-wins is the only ordering
// signal available across devices; equal timestamps compare as not-newer.
func (a *Agent) NewerThan(b *Agent) bool {
	return a.UpdatedAt.UnixMilli() > b.UpdatedAt.UnixMilli()
}

// Touch sets UpdatedAt to now. Every mutation goes through here, including
// mutations that only touch Todos or PublishInfo.
func (a *Agent) Touch(now time.Time) {
	a.UpdatedAt = now.UTC()
}

// FindTodo returns the todo with the given id, or nil.
func (a *Agent) FindTodo(todoID string) *Todo {
	for i := range a.Todos {
		if a.Todos[i].ID == todoID {
			return &a.Todos[i]
		}
	}
	return nil
}

// RemoveTodo deletes the todo with the given id and reports whether it existed.
func (a *Agent) RemoveTodo(todoID string) bool {
	for i := range a.Todos {
		if a.Todos[i].ID == todoID {
			a.Todos = append(a.Todos[:i], a.Todos[i+1:]...)
			return true
		}
	}
	return false
}

// ClearLiveness resets the liveness fields of PublishInfo after a stop while
// retaining ServerPort so the next publish can prefer the same port.
func (a *Agent) ClearLiveness() {
	a.IsPublished = false
	if a.PublishInfo == nil {
		return
	}
	a.PublishInfo.ServerURL = ""
	a.PublishInfo.ServiceStatus = ServiceStopped
	a.PublishInfo.LastHeartbeat = time.Time{}
}

// Normalize migrates a record loaded from storage (or downloaded from the
// registry) to the current schema version. It runs once on load and produces
// a fully-populated record; read paths never patch fields ad hoc.
func (a *Agent) Normalize() {
	// The backfill runs unconditionally: empty lists are dropped by
	// omitempty on marshal, so even current-schema records come back
	// from storage with nil slices.
	if a.ShareScope == "" {
		a.ShareScope = ScopeNone
	}
	if a.AllowedUsers == nil {
		a.AllowedUsers = []string{}
	}
	if a.AllowedGroups == nil {
		a.AllowedGroups = []string{}
	}
	if a.DeniedUsers == nil {
		a.DeniedUsers = []string{}
	}
	if a.Permissions == nil {
		a.Permissions = []string{}
	}
	for i := range a.Todos {
		if a.Todos[i].Status == "" {
			a.Todos[i].Status = TodoPending
		}
	}

	a.enforceSharingInvariant()
	a.Schema = SchemaVersion
}

// enforceSharingInvariant strips sharing metadata from private agents:
// ShareLevel 0 or IsPrivate implies scope none and empty allow lists.
func (a *Agent) enforceSharingInvariant() {
	if a.ShareLevel == 0 || a.IsPrivate {
		a.ShareScope = ScopeNone
		a.AllowedUsers = []string{}
		a.AllowedGroups = []string{}
	}
}
