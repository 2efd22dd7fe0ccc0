package agent

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeMigratesV1Record(t *testing.T) {
	a := &Agent{
		ID:     "a-1",
		UserID: "u-1",
		Name:   "legacy",
		Schema: 1,
		Todos:  []Todo{{ID: "t-1", Content: "carried over"}},
	}

	a.Normalize()

	if a.Schema != SchemaVersion {
		t.Fatalf("schema = %d, want %d", a.Schema, SchemaVersion)
	}
	if a.ShareScope != ScopeNone {
		t.Fatalf("share scope = %q, want none", a.ShareScope)
	}
	if a.AllowedUsers == nil || a.AllowedGroups == nil || a.DeniedUsers == nil || a.Permissions == nil {
		t.Fatal("nil sharing lists survived normalization")
	}
	if a.Todos[0].Status != TodoPending {
		t.Fatalf("todo status = %q, want pending", a.Todos[0].Status)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	a := &Agent{
		ID:         "a-2",
		UserID:     "u-1",
		Name:       "current",
		Schema:     SchemaVersion,
		ShareScope: ScopePublic,
		ShareLevel: 2,
	}

	a.Normalize()

	// Populated fields of a current-schema record pass through untouched.
	if a.ShareScope != ScopePublic {
		t.Fatalf("share scope = %q, normalization touched a current record", a.ShareScope)
	}
}

func TestNormalizeBackfillsCurrentSchemaAfterRoundTrip(t *testing.T) {
	a := &Agent{
		ID:         "a-7",
		UserID:     "u-1",
		Name:       "round-trip",
		Schema:     SchemaVersion,
		ShareScope: ScopeNone,
	}
	a.Normalize()

	// Empty lists do not survive marshaling, so a reload of a
	// current-schema record starts with nil slices again.
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Agent
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back.Normalize()

	if back.AllowedUsers == nil || back.AllowedGroups == nil || back.DeniedUsers == nil {
		t.Fatal("allow lists nil after reload of a current-schema record")
	}
	if back.Permissions == nil {
		t.Fatal("permissions nil after reload of a current-schema record")
	}
}

func TestSharingInvariantStripsPrivateAgents(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
	}{
		{"share level zero", Agent{ShareLevel: 0, ShareScope: ScopePublic, AllowedUsers: []string{"friend"}}},
		{"private flag", Agent{IsPrivate: true, ShareLevel: 2, ShareScope: ScopeFriends, AllowedGroups: []string{"team"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.agent
			upd := Update{}
			upd.Apply(&a, time.Now())

			if a.ShareScope != ScopeNone {
				t.Fatalf("share scope = %q, want none", a.ShareScope)
			}
			if len(a.AllowedUsers) != 0 || len(a.AllowedGroups) != 0 {
				t.Fatalf("allow lists survived: users=%v groups=%v", a.AllowedUsers, a.AllowedGroups)
			}
		})
	}
}

func TestNewerThanMillisecondResolution(t *testing.T) {
	base := time.UnixMilli(1000).UTC()
	older := &Agent{UpdatedAt: base}
	newer := &Agent{UpdatedAt: base.Add(time.Millisecond)}
	// Sub-millisecond differences are below the comparison resolution.
	sameMilli := &Agent{UpdatedAt: base.Add(500 * time.Microsecond)}

	if !newer.NewerThan(older) {
		t.Fatal("newer should win over older")
	}
	if older.NewerThan(newer) {
		t.Fatal("older must not win over newer")
	}
	if older.NewerThan(older) {
		t.Fatal("equal timestamps must compare as not-newer")
	}
	if sameMilli.NewerThan(older) || older.NewerThan(sameMilli) {
		t.Fatal("sub-millisecond difference must compare as equal")
	}
}

func TestUpdateApplyBumpsVersionAndTimestamp(t *testing.T) {
	a := &Agent{
		ID:        "a-3",
		UserID:    "u-1",
		Name:      "before",
		Version:   3,
		UpdatedAt: time.UnixMilli(1000).UTC(),
	}

	name := "after"
	now := time.UnixMilli(5000).UTC()
	upd := Update{Name: &name}
	upd.Apply(a, now)

	if a.Name != "after" {
		t.Fatalf("name = %q", a.Name)
	}
	if a.Version != 4 {
		t.Fatalf("version = %d, want 4", a.Version)
	}
	if !a.UpdatedAt.Equal(now) {
		t.Fatalf("updated at = %v, want %v", a.UpdatedAt, now)
	}
}

func TestPublishInfoUpdateShallowMerge(t *testing.T) {
	publishedAt := time.UnixMilli(2000).UTC()
	a := &Agent{
		ID:     "a-4",
		UserID: "u-1",
		Name:   "merged",
		PublishInfo: &PublishInfo{
			ServerPort:  8701,
			ServerURL:   "http://127.0.0.1:8701",
			PublishedAt: publishedAt,
		},
	}

	port := 8702
	upd := Update{PublishInfo: &PublishInfoUpdate{ServerPort: &port}}
	upd.Apply(a, time.Now())

	if a.PublishInfo.ServerPort != 8702 {
		t.Fatalf("server port = %d, want 8702", a.PublishInfo.ServerPort)
	}
	if !a.PublishInfo.PublishedAt.Equal(publishedAt) {
		t.Fatal("merge erased PublishedAt")
	}
	if a.PublishInfo.ServerURL != "http://127.0.0.1:8701" {
		t.Fatal("merge erased ServerURL")
	}
}

func TestClearLivenessKeepsPort(t *testing.T) {
	a := &Agent{
		ID:          "a-5",
		UserID:      "u-1",
		Name:        "stopping",
		IsPublished: true,
		PublishInfo: &PublishInfo{
			ServerPort:    8703,
			ServerURL:     "http://127.0.0.1:8703",
			ServiceStatus: ServiceRunning,
			LastHeartbeat: time.Now().UTC(),
		},
	}

	a.ClearLiveness()

	if a.IsPublished {
		t.Fatal("still published after ClearLiveness")
	}
	if a.PublishInfo.ServerPort != 8703 {
		t.Fatal("port must survive a stop")
	}
	if a.PublishInfo.ServerURL != "" || a.PublishInfo.ServiceStatus != ServiceStopped {
		t.Fatalf("liveness fields not cleared: %+v", a.PublishInfo)
	}
	if !a.PublishInfo.LastHeartbeat.IsZero() {
		t.Fatal("heartbeat not cleared")
	}
}

func TestHasIdentity(t *testing.T) {
	full := &Agent{ID: "a", UserID: "u", Name: "n"}
	if !full.HasIdentity() {
		t.Fatal("complete record should have identity")
	}
	for _, a := range []*Agent{
		nil,
		{UserID: "u", Name: "n"},
		{ID: "a", Name: "n"},
		{ID: "a", UserID: "u"},
	} {
		if a.HasIdentity() {
			t.Fatalf("incomplete record reported identity: %+v", a)
		}
	}
}

func TestRemoveTodo(t *testing.T) {
	a := &Agent{Todos: []Todo{{ID: "t-1"}, {ID: "t-2"}, {ID: "t-3"}}}

	if !a.RemoveTodo("t-2") {
		t.Fatal("existing todo not removed")
	}
	if a.RemoveTodo("t-2") {
		t.Fatal("second removal should report absence")
	}
	if len(a.Todos) != 2 || a.Todos[0].ID != "t-1" || a.Todos[1].ID != "t-3" {
		t.Fatalf("todos after removal = %+v", a.Todos)
	}
}

func TestCreateRequestValidate(t *testing.T) {
	valid := CreateRequest{Name: "ok", ShareLevel: 2, ShareScope: ScopeFriends, Tools: []ToolRef{{ToolID: "search", Enabled: true}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"empty name", CreateRequest{}},
		{"long name", CreateRequest{Name: string(make([]byte, 129))}},
		{"share level too high", CreateRequest{Name: "ok", ShareLevel: 4}},
		{"unknown scope", CreateRequest{Name: "ok", ShareScope: "everyone"}},
		{"tool without id", CreateRequest{Name: "ok", Tools: []ToolRef{{Enabled: true}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
