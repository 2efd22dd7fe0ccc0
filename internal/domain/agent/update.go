package agent

import "time"

// Update is a partial agent mutation. Nil fields are left untouched; set
// fields overwrite. PublishInfo is shallow-merged field-by-field so an update
// that only sets ServerPort does not erase PublishedAt.
type Update struct {
	Name            *string    `json:"name,omitempty"`
	Avatar          *string    `json:"avatar,omitempty"`
	RoleDescription *string    `json:"role_description,omitempty"`
	Mode            *string    `json:"mode,omitempty"`
	APIConfigID     *string    `json:"api_config_id,omitempty"`
	Tools           *[]ToolRef `json:"tools,omitempty"`

	IsPrivate     *bool       `json:"is_private,omitempty"`
	ShareScope    *ShareScope `json:"share_scope,omitempty"`
	ShareLevel    *int        `json:"share_level,omitempty"`
	AllowedUsers  *[]string   `json:"allowed_users,omitempty"`
	AllowedGroups *[]string   `json:"allowed_groups,omitempty"`
	DeniedUsers   *[]string   `json:"denied_users,omitempty"`
	Permissions   *[]string   `json:"permissions,omitempty"`

	IsPublished *bool              `json:"is_published,omitempty"`
	PublishInfo *PublishInfoUpdate `json:"publish_info,omitempty"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
}

// PublishInfoUpdate is a partial PublishInfo mutation.
type PublishInfoUpdate struct {
	TerminalType  *string        `json:"terminal_type,omitempty"`
	ServerPort    *int           `json:"server_port,omitempty"`
	ServerURL     *string        `json:"server_url,omitempty"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	ServiceStatus *ServiceStatus `json:"service_status,omitempty"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
}

// Apply merges the update onto a, bumps the structural version, re-enforces
// the sharing invariant, and sets UpdatedAt to now. ID and UserID are
// immutable and cannot be changed through an Update.
func (u *Update) Apply(a *Agent, now time.Time) {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Avatar != nil {
		a.Avatar = *u.Avatar
	}
	if u.RoleDescription != nil {
		a.RoleDescription = *u.RoleDescription
	}
	if u.Mode != nil {
		a.Mode = *u.Mode
	}
	if u.APIConfigID != nil {
		a.APIConfigID = *u.APIConfigID
	}
	if u.Tools != nil {
		a.Tools = *u.Tools
	}
	if u.IsPrivate != nil {
		a.IsPrivate = *u.IsPrivate
	}
	if u.ShareScope != nil {
		a.ShareScope = *u.ShareScope
	}
	if u.ShareLevel != nil {
		a.ShareLevel = *u.ShareLevel
	}
	if u.AllowedUsers != nil {
		a.AllowedUsers = *u.AllowedUsers
	}
	if u.AllowedGroups != nil {
		a.AllowedGroups = *u.AllowedGroups
	}
	if u.DeniedUsers != nil {
		a.DeniedUsers = *u.DeniedUsers
	}
	if u.Permissions != nil {
		a.Permissions = *u.Permissions
	}
	if u.IsPublished != nil {
		a.IsPublished = *u.IsPublished
	}
	if u.PublishInfo != nil {
		if a.PublishInfo == nil {
			a.PublishInfo = &PublishInfo{}
		}
		u.PublishInfo.apply(a.PublishInfo)
	}
	if u.LastUsedAt != nil {
		a.LastUsedAt = u.LastUsedAt
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}

	a.enforceSharingInvariant()
	a.Version++
	a.Touch(now)
}

func (pu *PublishInfoUpdate) apply(pi *PublishInfo) {
	if pu.TerminalType != nil {
		pi.TerminalType = *pu.TerminalType
	}
	if pu.ServerPort != nil {
		pi.ServerPort = *pu.ServerPort
	}
	if pu.ServerURL != nil {
		pi.ServerURL = *pu.ServerURL
	}
	if pu.PublishedAt != nil {
		pi.PublishedAt = *pu.PublishedAt
	}
	if pu.ServiceStatus != nil {
		pi.ServiceStatus = *pu.ServiceStatus
	}
	if pu.LastHeartbeat != nil {
		pi.LastHeartbeat = *pu.LastHeartbeat
	}
}
