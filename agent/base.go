package agent

import (
	"fmt"

	"github.com/hupe1980/clinagents/core"
)

// BaseAgent bundles identity shared by every agent implementation: a
// human-readable name, a description and the role the agent acts in. Embed it
// in concrete agents and supply ProposeAction to satisfy Agent.
type BaseAgent struct {
	name        string    // Human-readable name
	description string    // Detailed description of agent's purpose
	role        core.Role // Role recorded on every turn this agent produces
}

// NewBaseAgent constructs a BaseAgent with generated description (customizable via SetDescription).
func NewBaseAgent(name string, role core.Role) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s acting as %s", name, role),
		role:        role,
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Role returns the role this agent acts in.
func (b *BaseAgent) Role() core.Role { return b.role }
