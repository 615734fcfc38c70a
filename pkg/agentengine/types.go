// Package agentengine implements the agent chat loop: prepare messages,
// call the provider with retry/recovery, fan out tool calls, and loop until
// no tool calls remain. It is grounded on the teacher's chain-of-thought
// reasoning strategy (PrepareIteration/ShouldStop/AfterIteration) and its
// agent-to-agent delegation tool, generalized from a single reasoning
// strategy into the swarm runtime's fixed ask() algorithm (§4.5).
package agentengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

// DelegationTarget names one agent this agent may delegate to (§3).
type DelegationTarget struct {
	Agent           string
	ToolName        string // defaults to "WorkWith<Agent>" when empty
	PreserveContext bool
}

// PermissionConfig is the per-tool allow/deny lists described in §6. Deny
// always wins; an empty Allow list means allow-all.
type PermissionConfig struct {
	PathAllow    []string // glob patterns, file tools
	PathDeny     []string
	CommandAllow []string // regex patterns, shell tools
	CommandDeny  []string
}

// Definition is the immutable per-agent configuration (§3 AgentDefinition).
// Validation happens once at build time via Validate.
type Definition struct {
	Name        string
	Model       string
	ProviderName string
	BaseURL     string
	APIVersion  string
	Description string
	WorkingDir  string

	SystemPrompt  string
	CodingAgent   bool
	ToolNames     []string
	IncludeDefaults bool

	Delegations            []DelegationTarget
	SharedAcrossDelegations bool

	Streaming bool
	Thinking  *provider.ThinkingConfig

	RequestTimeout time.Duration
	TurnTimeout    time.Duration
	ContextLimit   int // overrides the model's default context window when > 0

	Headers     map[string]string
	Temperature float64
	MaxTokens   int

	Permissions PermissionConfig
}

// Validate rejects a definition containing a reserved '@' in its name (that
// character is reserved for delegation instance names, "base@delegator"),
// negative timeouts, and other build-time configuration errors (§7a).
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("agentengine: agent name is required")
	}
	if strings.Contains(d.Name, "@") {
		return fmt.Errorf("agentengine: agent name %q may not contain '@' (reserved for delegation instances)", d.Name)
	}
	if d.RequestTimeout < 0 {
		return fmt.Errorf("agentengine: request timeout must be non-negative")
	}
	if d.TurnTimeout < 0 {
		return fmt.Errorf("agentengine: turn timeout must be non-negative")
	}
	for _, target := range d.Delegations {
		if target.Agent == "" {
			return fmt.Errorf("agentengine: delegation target agent name is required")
		}
	}
	return nil
}

// WorkWithToolName derives the conventional delegation tool name when the
// target does not declare one explicitly.
func (t DelegationTarget) WorkWithToolName() string {
	if t.ToolName != "" {
		return t.ToolName
	}
	return "WorkWith" + t.Agent
}

// AssistantResult is what Ask() returns: the fully assembled assistant
// message, regardless of how many provider round-trips it took to build
// (§4.5 "the final ask return is always the fully assembled assistant
// message").
type AssistantResult struct {
	Message provider.Message
}
