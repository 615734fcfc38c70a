// Package config loads the declarative swarm: and workflow: YAML documents
// (§6), expands ${VAR}/${VAR:-default} references against the process
// environment (seeded from .env via godotenv), and validates every struct
// via a SetDefaults()/Validate() pair, matching the teacher's config
// package conventions.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/swarm"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// AgentConfig is the YAML shape of one agent definition.
type AgentConfig struct {
	Name                   string                      `yaml:"name"`
	Model                  string                      `yaml:"model"`
	ProviderName           string                      `yaml:"provider"`
	BaseURL                string                      `yaml:"base_url,omitempty"`
	Description            string                      `yaml:"description,omitempty"`
	SystemPrompt           string                      `yaml:"system_prompt,omitempty"`
	Tools                  []string                    `yaml:"tools,omitempty"`
	IncludeDefaults        bool                        `yaml:"include_default_tools,omitempty"`
	Delegations            []DelegationConfig          `yaml:"delegations,omitempty"`
	SharedAcrossDelegations bool                       `yaml:"shared_across_delegations,omitempty"`
	Streaming              bool                        `yaml:"streaming,omitempty"`
	RequestTimeoutSeconds  int                         `yaml:"request_timeout_seconds,omitempty"`
	TurnTimeoutSeconds     int                         `yaml:"turn_timeout_seconds,omitempty"`
	ContextLimit           int                         `yaml:"context_limit,omitempty"`
	Temperature            float64                     `yaml:"temperature,omitempty"`
	MaxTokens              int                         `yaml:"max_tokens,omitempty"`
	Permissions            PermissionConfig            `yaml:"permissions,omitempty"`
}

// DelegationConfig is the YAML shape of one delegation edge.
type DelegationConfig struct {
	Agent           string `yaml:"agent"`
	ToolName        string `yaml:"tool_name,omitempty"`
	PreserveContext bool   `yaml:"preserve_context,omitempty"`
}

// PermissionConfig is the YAML shape of a tool permission wrapper.
type PermissionConfig struct {
	PathAllow    []string `yaml:"path_allow,omitempty"`
	PathDeny     []string `yaml:"path_deny,omitempty"`
	CommandAllow []string `yaml:"command_allow,omitempty"`
	CommandDeny  []string `yaml:"command_deny,omitempty"`
}

// SwarmConfig is the top-level `swarm:` document (§6).
type SwarmConfig struct {
	Name             string        `yaml:"name"`
	ID               string        `yaml:"id,omitempty"`
	LeadAgent        string        `yaml:"lead_agent"`
	Agents           []AgentConfig `yaml:"agents"`
	ExecutionTimeout string        `yaml:"execution_timeout,omitempty"`
	TurnTimeout      string        `yaml:"turn_timeout,omitempty"`
	HasSubSwarms     bool          `yaml:"has_sub_swarms,omitempty"`
}

// WorkflowNodeConfig is the YAML shape of one workflow node. Agents names
// into the workflow's own Agents pool; the first entry is the node's mini-
// swarm lead agent (§4.9).
type WorkflowNodeConfig struct {
	Name         string   `yaml:"name"`
	Agents       []string `yaml:"agents"`
	DependsOn    []string `yaml:"depends_on,omitempty"`
	ResetContext bool     `yaml:"reset_context,omitempty"`
}

// WorkflowConfig is the top-level `workflow:` document (§6): a shared pool
// of agent definitions, the node DAG that references them, and the node
// execution starts from.
type WorkflowConfig struct {
	Name      string               `yaml:"name"`
	StartNode string               `yaml:"start_node"`
	Agents    []AgentConfig        `yaml:"agents"`
	Nodes     []WorkflowNodeConfig `yaml:"nodes"`
}

// Document is the full YAML file shape: a swarm and/or a workflow, loaded
// together so a single file can define both.
type Document struct {
	Swarm    *SwarmConfig    `yaml:"swarm,omitempty"`
	Workflow *WorkflowConfig `yaml:"workflow,omitempty"`
}

// envWithDefault matches ${VAR:-default} and envBraced matches ${VAR},
// grounded on the teacher's config/env.go expansion regexes.
var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
)

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envBraced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})
	return s
}

// LoadEnvFile loads a .env file into the process environment, matching the
// teacher's config/env.go (missing file is not an error).
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return swarmerrors.NewConfigError("config", "env_file", err.Error(), err)
	}
	return nil
}

// Load parses raw into a Document after env-var expansion, then validates.
func Load(raw []byte) (Document, error) {
	expanded := expandEnvVars(string(raw))

	var doc Document
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return Document{}, swarmerrors.NewConfigError("config", "", fmt.Sprintf("parse failed: %v", err), err)
	}

	if doc.Swarm != nil {
		doc.Swarm.setDefaults()
		if err := doc.Swarm.validate(); err != nil {
			return Document{}, err
		}
	}
	if doc.Workflow != nil {
		doc.Workflow.setDefaults()
		if err := doc.Workflow.validate(); err != nil {
			return Document{}, err
		}
	}

	return doc, nil
}

// LoadFile reads and loads path.
func LoadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, swarmerrors.NewConfigError("config", "path", err.Error(), err)
	}
	return Load(raw)
}

func (c *SwarmConfig) setDefaults() {
	if c.ExecutionTimeout == "" {
		c.ExecutionTimeout = "1800s"
	}
	if c.TurnTimeout == "" {
		c.TurnTimeout = "1800s"
	}
	for i := range c.Agents {
		if c.Agents[i].ProviderName == "" {
			c.Agents[i].ProviderName = "openai"
		}
	}
}

func (c *SwarmConfig) validate() error {
	if c.Name == "" {
		return swarmerrors.NewConfigError("swarm", "name", "name is required", nil)
	}
	if c.LeadAgent == "" {
		return swarmerrors.NewConfigError("swarm", "lead_agent", "lead_agent is required", nil)
	}
	if c.HasSubSwarms && c.ID == "" {
		return swarmerrors.NewConfigError("swarm", "id", "id is required when has_sub_swarms is set", nil)
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return swarmerrors.NewConfigError("swarm", "agents[].name", "agent name is required", nil)
		}
		if strings.Contains(a.Name, "@") {
			return swarmerrors.NewConfigError("swarm", "agents[].name", fmt.Sprintf("agent name %q must not contain '@'", a.Name), nil)
		}
		if seen[a.Name] {
			return swarmerrors.NewConfigError("swarm", "agents[].name", fmt.Sprintf("duplicate agent name %q", a.Name), nil)
		}
		seen[a.Name] = true
	}
	if !seen[c.LeadAgent] {
		return swarmerrors.NewConfigError("swarm", "lead_agent", fmt.Sprintf("lead_agent %q is not one of agents[]", c.LeadAgent), nil)
	}
	return nil
}

func (c *WorkflowConfig) setDefaults() {
	for i := range c.Agents {
		if c.Agents[i].ProviderName == "" {
			c.Agents[i].ProviderName = "openai"
		}
	}
}

func (c *WorkflowConfig) validate() error {
	if c.Name == "" {
		return swarmerrors.NewConfigError("workflow", "name", "name is required", nil)
	}
	if c.StartNode == "" {
		return swarmerrors.NewConfigError("workflow", "start_node", "start_node is required", nil)
	}

	agentNames := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return swarmerrors.NewConfigError("workflow", "agents[].name", "agent name is required", nil)
		}
		agentNames[a.Name] = true
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			return swarmerrors.NewConfigError("workflow", "nodes[].name", "node name is required", nil)
		}
		seen[n.Name] = true
	}
	if !seen[c.StartNode] {
		return swarmerrors.NewConfigError("workflow", "start_node", fmt.Sprintf("start_node %q is not one of nodes[]", c.StartNode), nil)
	}
	for _, n := range c.Nodes {
		for _, dep := range n.DependsOn {
			if !seen[dep] {
				return swarmerrors.NewConfigError("workflow", "nodes[].depends_on", fmt.Sprintf("node %q depends on unknown node %q", n.Name, dep), nil)
			}
		}
		if len(n.Agents) == 0 {
			return swarmerrors.NewConfigError("workflow", "nodes[].agents", fmt.Sprintf("node %q must reference at least one agent", n.Name), nil)
		}
		for _, agentName := range n.Agents {
			if !agentNames[agentName] {
				return swarmerrors.NewConfigError("workflow", "nodes[].agents", fmt.Sprintf("node %q references unknown agent %q", n.Name, agentName), nil)
			}
		}
	}
	return nil
}

// ToDefinition converts the YAML shape into the runtime agentengine.Definition.
func (a AgentConfig) ToDefinition() agentengine.Definition {
	delegations := make([]agentengine.DelegationTarget, 0, len(a.Delegations))
	for _, d := range a.Delegations {
		delegations = append(delegations, agentengine.DelegationTarget{
			Agent: d.Agent, ToolName: d.ToolName, PreserveContext: d.PreserveContext,
		})
	}
	return agentengine.Definition{
		Name:                    a.Name,
		Model:                   a.Model,
		ProviderName:            a.ProviderName,
		BaseURL:                 a.BaseURL,
		Description:             a.Description,
		SystemPrompt:            a.SystemPrompt,
		ToolNames:               a.Tools,
		IncludeDefaults:         a.IncludeDefaults,
		Delegations:             delegations,
		SharedAcrossDelegations: a.SharedAcrossDelegations,
		Streaming:               a.Streaming,
		RequestTimeout:          time.Duration(a.RequestTimeoutSeconds) * time.Second,
		TurnTimeout:             time.Duration(a.TurnTimeoutSeconds) * time.Second,
		ContextLimit:            a.ContextLimit,
		Temperature:             a.Temperature,
		MaxTokens:               a.MaxTokens,
		Permissions: agentengine.PermissionConfig{
			PathAllow: a.Permissions.PathAllow, PathDeny: a.Permissions.PathDeny,
			CommandAllow: a.Permissions.CommandAllow, CommandDeny: a.Permissions.CommandDeny,
		},
	}
}

// ToSwarmConfig converts the YAML shape into swarm.Config; agent timeouts
// stay on each agentengine.Definition, while the swarm-level timeouts bound
// the whole execute() barrier (§4.8).
func (c SwarmConfig) ToSwarmConfig() (swarm.Config, error) {
	execTimeout, err := time.ParseDuration(c.ExecutionTimeout)
	if err != nil {
		return swarm.Config{}, swarmerrors.NewConfigError("swarm", "execution_timeout", err.Error(), err)
	}
	turnTimeout, err := time.ParseDuration(c.TurnTimeout)
	if err != nil {
		return swarm.Config{}, swarmerrors.NewConfigError("swarm", "turn_timeout", err.Error(), err)
	}
	return swarm.Config{
		Name: c.Name, ID: c.ID, LeadAgent: c.LeadAgent,
		ExecutionTimeout: execTimeout, TurnTimeout: turnTimeout, HasSubSwarms: c.HasSubSwarms,
	}, nil
}
