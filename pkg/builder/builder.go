// Package builder is the composition root: it takes a config.Document and
// produces live runtime objects — a *swarm.Swarm with every primary agent
// instantiated and delegation-wired, or a *workflow.Driver whose nodes close
// over that same wiring. Grounded on the teacher's pkg/builder (AgentBuilder/
// RunnerBuilder fluent composition), adapted from imperative With<X>()
// chaining to a declarative Build(config.Document) entry point since the
// whole topology is already fully specified by YAML rather than assembled
// call-by-call.
package builder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/config"
	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/delegation"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/swarm"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
	"github.com/agentmesh/swarmkit/pkg/workflow"
)

// AdapterFactory resolves the provider.Adapter to use for one configured
// agent. Concrete provider transport is out of scope for this project (§
// Non-goals); callers supply their own factory, typically closing over a
// small set of pre-built clients keyed by a.ProviderName.
type AdapterFactory func(a config.AgentConfig) (provider.Adapter, error)

// Builder assembles agentengine.Instance/swarm.Swarm/workflow.Driver values
// from a config.Document. The zero value is not usable; construct one with
// New.
//
// Example:
//
//	b := builder.New(myAdapterFactory).WithSkillLoader(loader)
//	sw, err := b.BuildSwarm(doc)
type Builder struct {
	adapters AdapterFactory
	events   *eventlog.Stream
	now      func() string
	skills   toolregistry.SkillLoader
	sems     *scheduler.Semaphores
}

// New constructs a Builder. adapters must be non-nil: every agent needs a
// provider.Adapter to actually call.
func New(adapters AdapterFactory) *Builder {
	if adapters == nil {
		panic("builder: adapter factory cannot be nil")
	}
	return &Builder{
		adapters: adapters,
		events:   eventlog.NewStream(),
		now:      func() string { return time.Now().UTC().Format(time.RFC3339) },
		sems:     scheduler.NewSemaphores(0, 0),
	}
}

// WithEvents overrides the event stream shared by every built instance and
// swarm; the default is a fresh, private stream.
func (b *Builder) WithEvents(events *eventlog.Stream) *Builder {
	if events != nil {
		b.events = events
	}
	return b
}

// WithClock overrides the ClockTool time source; the default reports the
// real wall clock.
func (b *Builder) WithClock(now func() string) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// WithSkillLoader wires a LoadSkill backing store; by default there is no
// loader and LoadSkill fails with "no skill loader configured".
func (b *Builder) WithSkillLoader(loader toolregistry.SkillLoader) *Builder {
	b.skills = loader
	return b
}

// WithSemaphores overrides the global/per-agent concurrency limits; the
// default is scheduler.NewSemaphores(0, 0), i.e. 50 global and 10 per agent.
func (b *Builder) WithSemaphores(sems *scheduler.Semaphores) *Builder {
	if sems != nil {
		b.sems = sems
	}
	return b
}

// BuildSwarm assembles doc's swarm: section into a live topology (§3 Data
// Model "primary_agents: map<name, AgentInstance>", §4.8 Construction):
// every agent becomes a real agentengine.Instance with its own
// toolregistry.Registry, builtins registered when include_default_tools is
// set, and delegation tools registered for every declared edge — making
// Scenario 4 (two agents sharing a delegation target) reachable from real
// product code instead of only from test helpers.
func (b *Builder) BuildSwarm(doc config.Document) (*swarm.Swarm, error) {
	if doc.Swarm == nil {
		return nil, fmt.Errorf("builder: document has no swarm: section")
	}
	cfg := *doc.Swarm
	swarmCfg, err := cfg.ToSwarmConfig()
	if err != nil {
		return nil, err
	}

	instances := make(map[string]*agentengine.Instance, len(cfg.Agents))
	registries := make(map[string]*toolregistry.Registry, len(cfg.Agents))
	agentsByName := make(map[string]config.AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		inst, reg, err := b.newInstance(a.Name, a)
		if err != nil {
			return nil, err
		}
		instances[a.Name] = inst
		registries[a.Name] = reg
		agentsByName[a.Name] = a
	}

	sw, err := swarm.New(swarmCfg, instances, b.events)
	if err != nil {
		return nil, err
	}
	if err := b.wireDelegations(sw, agentsByName, registries, make(map[string]bool)); err != nil {
		return nil, err
	}
	return sw, nil
}

// BuildWorkflow assembles doc's workflow: section into a live
// workflow.Driver (§4.9, §6 "workflow (with start_node, nodes, agents)").
// Each node's BuildSwarm closure restricts the mini-swarm to that node's
// own agents, using the first named agent as lead. When reset_context is
// false for a node, the agent (and its delegation instances) is cached and
// reused across repeated visits — including goto-loop revisits — so
// conversation history survives (§4.9 "Context preservation"); when true, a
// fresh instance is built on every visit.
func (b *Builder) BuildWorkflow(doc config.Document) (*workflow.Driver, error) {
	if doc.Workflow == nil {
		return nil, fmt.Errorf("builder: document has no workflow: section")
	}
	cfg := *doc.Workflow

	agentsByName := make(map[string]config.AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agentsByName[a.Name] = a
	}

	var cacheMu sync.Mutex
	cache := make(map[string]*agentengine.Instance)
	wired := make(map[string]bool)

	resolveCached := func(name string) (*agentengine.Instance, error) {
		cacheMu.Lock()
		defer cacheMu.Unlock()
		if inst, ok := cache[name]; ok {
			return inst, nil
		}
		a, ok := agentsByName[name]
		if !ok {
			return nil, fmt.Errorf("builder: workflow references unknown agent %q", name)
		}
		inst, reg, err := b.newInstance(name, a)
		if err != nil {
			return nil, err
		}
		if err := b.wireAgentDelegations(name, a, reg, agentsByName, wired); err != nil {
			return nil, err
		}
		cache[name] = inst
		return inst, nil
	}

	nodes := make([]workflow.Node, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		n := n
		nodes = append(nodes, workflow.Node{
			Name:         n.Name,
			DependsOn:    n.DependsOn,
			ResetContext: n.ResetContext,
			BuildSwarm:   b.buildNodeSwarm(n, agentsByName, resolveCached),
		})
	}

	return workflow.New(workflow.Config{Name: cfg.Name, StartNode: cfg.StartNode, Nodes: nodes}, b.events)
}

// buildNodeSwarm returns the BuildSwarm closure for one workflow node,
// memoizing the resulting *swarm.Swarm itself when reset_context is false
// so a node that is goto'd back into returns the exact same swarm (and
// therefore the exact same, already-conversing agent instances) every time.
func (b *Builder) buildNodeSwarm(n config.WorkflowNodeConfig, agentsByName map[string]config.AgentConfig, resolveCached func(string) (*agentengine.Instance, error)) func(ctx context.Context) (*swarm.Swarm, error) {
	var mu sync.Mutex
	var cached *swarm.Swarm

	return func(ctx context.Context) (*swarm.Swarm, error) {
		if !n.ResetContext {
			mu.Lock()
			if cached != nil {
				defer mu.Unlock()
				return cached, nil
			}
			mu.Unlock()
		}

		instances := make(map[string]*agentengine.Instance, len(n.Agents))
		for _, agentName := range n.Agents {
			var inst *agentengine.Instance
			var err error
			if n.ResetContext {
				a, ok := agentsByName[agentName]
				if !ok {
					return nil, fmt.Errorf("builder: node %q references unknown agent %q", n.Name, agentName)
				}
				inst, _, err = b.newInstance(agentName, a)
			} else {
				inst, err = resolveCached(agentName)
			}
			if err != nil {
				return nil, err
			}
			instances[agentName] = inst
		}

		sw, err := swarm.New(swarm.Config{Name: n.Name, LeadAgent: n.Agents[0]}, instances, b.events)
		if err != nil {
			return nil, err
		}

		if !n.ResetContext {
			mu.Lock()
			cached = sw
			mu.Unlock()
		}
		return sw, nil
	}
}

// newInstance builds one fresh agentengine.Instance for agent definition a,
// registered under instanceName (which may be a delegation chain name like
// "base@delegator"), along with the toolregistry.Registry it owns.
func (b *Builder) newInstance(instanceName string, a config.AgentConfig) (*agentengine.Instance, *toolregistry.Registry, error) {
	adapter, err := b.adapters(a)
	if err != nil {
		return nil, nil, fmt.Errorf("builder: agent %q: resolve adapter: %w", a.Name, err)
	}
	def := a.ToDefinition()
	if err := def.Validate(); err != nil {
		return nil, nil, fmt.Errorf("builder: agent %q: %w", a.Name, err)
	}

	reg := toolregistry.NewRegistry()
	if def.IncludeDefaults {
		if _, err := toolregistry.RegisterBuiltins(reg, b.now, b.skills); err != nil {
			return nil, nil, fmt.Errorf("builder: agent %q: register builtins: %w", a.Name, err)
		}
	}

	inst := agentengine.NewInstance(
		instanceName, def, adapter, reg,
		contextmgr.NewManager(contextmgr.DefaultConfig(def.ContextLimit)),
		hooks.NewExecutor(hooks.NewRegistry()),
		b.events, b.sems,
	)
	return inst, reg, nil
}

// wireDelegations registers every agent's configured delegation tools onto
// its own registry, now that every base instance named in agentsByName
// exists, so a shared-mode target's factory can resolve its base config
// regardless of declaration order.
func (b *Builder) wireDelegations(sw *swarm.Swarm, agentsByName map[string]config.AgentConfig, registries map[string]*toolregistry.Registry, wired map[string]bool) error {
	for name, a := range agentsByName {
		reg := registries[name]
		if err := b.wireAgentDelegations(name, a, reg, agentsByName, wired); err != nil {
			return err
		}
		for _, entry := range reg.List() {
			if entry.Source == toolregistry.SourceDelegation {
				if dropper, ok := entry.Tool.(interface{ DropLazyInstances() }); ok {
					sw.RegisterLazyDropper(dropper)
				}
			}
		}
	}
	return nil
}

// wireAgentDelegations registers delegatorName's configured delegation
// tools on reg, skipping any target already wired per the wired set
// (tracked by "delegatorName -> target" key) so an agent instance shared
// across workflow nodes is never delegation-wired twice on the same
// registry.
func (b *Builder) wireAgentDelegations(delegatorName string, a config.AgentConfig, reg *toolregistry.Registry, agentsByName map[string]config.AgentConfig, wired map[string]bool) error {
	for _, d := range a.Delegations {
		key := delegatorName + "->" + d.Agent
		if wired[key] {
			continue
		}
		target := agentengine.DelegationTarget{Agent: d.Agent, ToolName: d.ToolName, PreserveContext: d.PreserveContext}
		factory := b.delegationFactory(agentsByName)
		tool, err := delegation.NewTool(delegatorName, nil, target, factory, b.events)
		if err != nil {
			return fmt.Errorf("builder: agent %q delegation to %q: %w", delegatorName, d.Agent, err)
		}
		if err := reg.Register(tool, toolregistry.SourceDelegation, true); err != nil {
			return err
		}
		wired[key] = true
	}
	return nil
}

// delegationFactory builds the delegation.Factory every Tool in this
// topology shares: it looks up the target's base config by name and builds
// a fresh instance named for the delegation chain.
func (b *Builder) delegationFactory(agentsByName map[string]config.AgentConfig) delegation.Factory {
	return func(instanceName, baseAgent string) (*agentengine.Instance, error) {
		baseCfg, ok := agentsByName[baseAgent]
		if !ok {
			return nil, fmt.Errorf("builder: delegation target %q is not a configured agent", baseAgent)
		}
		inst, _, err := b.newInstance(instanceName, baseCfg)
		return inst, err
	}
}
