package agent

// SortOrder is the direction of a list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions controls filtering, ordering, and pagination of agent lists.
// The zero value lists everything sorted by updated_at descending.
type ListOptions struct {
	Mode       string    `json:"mode,omitempty"`
	ActiveOnly bool      `json:"active_only,omitempty"`
	SortBy     string    `json:"sort_by,omitempty"`
	Order      SortOrder `json:"order,omitempty"`
	Offset     int       `json:"offset,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// sortableFields whitelists the scalar fields a list may be ordered by.
var sortableFields = map[string]struct{}{
	"name":         {},
	"mode":         {},
	"created_at":   {},
	"updated_at":   {},
	"last_used_at": {},
	"version":      {},
	"share_level":  {},
}

// SortColumn returns the validated sort column and order, falling back to
// updated_at descending for unknown fields.
func (o ListOptions) SortColumn() (string, SortOrder) {
	col := o.SortBy
	if _, ok := sortableFields[col]; !ok {
		col = "updated_at"
	}
	order := o.Order
	if order != SortAsc && order != SortDesc {
		if o.SortBy == "" || o.SortBy == "updated_at" || o.SortBy == "created_at" {
			order = SortDesc
		} else {
			order = SortAsc
		}
	}
	return col, order
}
