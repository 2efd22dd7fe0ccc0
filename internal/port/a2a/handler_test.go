package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/messagequeue"
)

type recordingQueue struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

var _ messagequeue.Queue = (*recordingQueue)(nil)

func (q *recordingQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return fmt.Errorf("queue gone")
	}
	q.subjects = append(q.subjects, subject)
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *recordingQueue) Close() error { return nil }

func testAgent() *agent.Agent {
	return &agent.Agent{
		ID:              "agent-1",
		UserID:          "user-1",
		Name:            "researcher",
		RoleDescription: "digs through sources",
		Mode:            "research",
		Tools: []agent.ToolRef{
			{ToolID: "web-search", Enabled: true},
			{ToolID: "calculator", Enabled: false},
		},
	}
}

func TestBuildAgentCardSkills(t *testing.T) {
	card := BuildAgentCard(testAgent(), "http://127.0.0.1:9000")

	if card.Name != "researcher" || card.URL != "http://127.0.0.1:9000" {
		t.Fatalf("card = %+v", card)
	}
	// One skill for the mode, one per enabled tool.
	if len(card.Skills) != 2 {
		t.Fatalf("skills = %+v, want mode + enabled tool", card.Skills)
	}
	if card.Skills[0].ID != "mode-research" || card.Skills[1].ID != "tool-web-search" {
		t.Fatalf("skill ids = %q, %q", card.Skills[0].ID, card.Skills[1].ID)
	}
}

func TestAgentCardEndpoint(t *testing.T) {
	h := NewHandler(testAgent(), "http://127.0.0.1:9000", &recordingQueue{})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/.well-known/agent.json")
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	defer resp.Body.Close()

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Name != "researcher" || len(card.Skills) != 2 {
		t.Fatalf("served card = %+v", card)
	}
}

func TestTaskIntakeQueuesAndTracks(t *testing.T) {
	q := &recordingQueue{}
	h := NewHandler(testAgent(), "http://127.0.0.1:9000", q)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(TaskRequest{ID: "task-1", Skill: "mode-research"})
	resp, err := http.Post(srv.URL+"/a2a/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post task: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	q.mu.Lock()
	subjects := append([]string(nil), q.subjects...)
	q.mu.Unlock()
	if len(subjects) != 1 || subjects[0] != messagequeue.InvokeSubject("agent-1") {
		t.Fatalf("published subjects = %v", subjects)
	}

	statusResp, err := http.Get(srv.URL + "/a2a/tasks/task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	defer statusResp.Body.Close()
	var tr TaskResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Status != "queued" {
		t.Fatalf("status = %q, want queued", tr.Status)
	}

	unknown, err := http.Get(srv.URL + "/a2a/tasks/never-seen")
	if err != nil {
		t.Fatalf("get unknown task: %v", err)
	}
	unknown.Body.Close()
	if unknown.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task status = %d, want 404", unknown.StatusCode)
	}
}

func TestTaskIntakeRejectsBadRequests(t *testing.T) {
	h := NewHandler(testAgent(), "http://127.0.0.1:9000", &recordingQueue{})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/a2a/tasks", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}

	body, _ := json.Marshal(TaskRequest{Skill: "x"})
	resp, err = http.Post(srv.URL+"/a2a/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing id status = %d, want 400", resp.StatusCode)
	}
}

func TestTaskIntakeReportsDispatchFailure(t *testing.T) {
	h := NewHandler(testAgent(), "http://127.0.0.1:9000", &recordingQueue{fail: true})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(TaskRequest{ID: "task-2"})
	resp, err := http.Post(srv.URL+"/a2a/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var tr TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Status != "failed" {
		t.Fatalf("status = %q, want failed", tr.Status)
	}
}
