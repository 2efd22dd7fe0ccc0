package agent

import (
	"fmt"

	"github.com/agentdock/agentdock/internal/domain"
)

const maxNameLen = 128

// CreateRequest carries the caller-supplied configuration for a new agent.
// Identity and lifecycle fields are server-assigned.
type CreateRequest struct {
	Name            string     `json:"name"`
	Avatar          string     `json:"avatar,omitempty"`
	RoleDescription string     `json:"role_description,omitempty"`
	Mode            string     `json:"mode,omitempty"`
	APIConfigID     string     `json:"api_config_id,omitempty"`
	Tools           []ToolRef  `json:"tools,omitempty"`
	IsPrivate       bool       `json:"is_private"`
	ShareScope      ShareScope `json:"share_scope,omitempty"`
	ShareLevel      int        `json:"share_level"`
	AllowedUsers    []string   `json:"allowed_users,omitempty"`
	AllowedGroups   []string   `json:"allowed_groups,omitempty"`
}

// Validate checks the request against domain constraints.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(r.Name) > maxNameLen {
		return fmt.Errorf("%w: name too long (max %d chars)", domain.ErrValidation, maxNameLen)
	}
	if r.ShareLevel < 0 || r.ShareLevel > 3 {
		return fmt.Errorf("%w: share_level must be 0-3", domain.ErrValidation)
	}
	switch r.ShareScope {
	case "", ScopeNone, ScopeFriends, ScopeGroups, ScopePublic:
	default:
		return fmt.Errorf("%w: unknown share_scope %q", domain.ErrValidation, r.ShareScope)
	}
	for _, tool := range r.Tools {
		if tool.ToolID == "" {
			return fmt.Errorf("%w: tool_id is required for every tool", domain.ErrValidation)
		}
	}
	return nil
}

// ValidateTodo checks a todo mutation.
func ValidateTodo(content string, status TodoStatus) error {
	if content == "" {
		return fmt.Errorf("%w: todo content is required", domain.ErrValidation)
	}
	switch status {
	case "", TodoPending, TodoInProgress, TodoCompleted:
		return nil
	default:
		return fmt.Errorf("%w: unknown todo status %q", domain.ErrValidation, status)
	}
}
