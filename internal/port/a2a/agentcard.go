package a2a

import (
	"github.com/agentdock/agentdock/internal/domain/agent"
)

const cardVersion = "0.1.0"

// defaultMaxConcurrency advertised when the agent config does not set one.
const defaultMaxConcurrency = 1

// BuildAgentCard derives the capability descriptor for one agent from its
// configuration and its live endpoint URL. Each enabled tool is advertised
// as a skill.
func BuildAgentCard(a *agent.Agent, endpointURL string) AgentCard {
	card := AgentCard{
		Name:           a.Name,
		Description:    a.RoleDescription,
		URL:            endpointURL,
		Version:        cardVersion,
		MessageTypes:   []string{"text"},
		TaskTypes:      []string{"chat", "todo"},
		MaxConcurrency: defaultMaxConcurrency,
		Skills:         []Skill{},
	}

	if a.Mode != "" {
		card.Skills = append(card.Skills, Skill{
			ID:          "mode-" + a.Mode,
			Name:        a.Mode,
			Description: "Agent operating mode",
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		})
	}

	for _, tool := range a.Tools {
		if !tool.Enabled {
			continue
		}
		card.Skills = append(card.Skills, Skill{
			ID:          "tool-" + tool.ToolID,
			Name:        tool.ToolID,
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		})
	}

	card.Capabilities.Streaming = false
	return card
}
