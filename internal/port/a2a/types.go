// Package a2a provides the public discovery surface a published agent
// exposes to remote callers.
package a2a

// AgentCard is the capability descriptor other devices use for discovery.
// It is independent of the storage and sync internals.
type AgentCard struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	URL            string   `json:"url"`
	Version        string   `json:"version"`
	Skills         []Skill  `json:"skills"`
	MessageTypes   []string `json:"messageTypes"`
	TaskTypes      []string `json:"taskTypes"`
	MaxConcurrency int      `json:"maxConcurrency,omitempty"`
	Capabilities   struct {
		Streaming bool `json:"streaming"`
	} `json:"capabilities"`
}

// Skill describes a single capability of the agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	InputModes  []string `json:"inputModes"`
	OutputModes []string `json:"outputModes"`
}

// TaskRequest is an incoming task request on a published endpoint.
type TaskRequest struct {
	ID      string         `json:"id"`
	Skill   string         `json:"skill"`
	Input   map[string]any `json:"input"`
	Context map[string]any `json:"context,omitempty"`
}

// TaskResponse acknowledges a task request. The endpoint never executes
// tasks in-process; requests are handed to the external execution engine.
type TaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "queued", "running", "completed", "failed"
	Error  string `json:"error,omitempty"`
}
