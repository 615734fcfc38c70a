// Package swarm implements the Swarm Orchestrator (§4.8): construction of a
// disjoint agent/delegation topology, execute() wrapped in a
// barrier-with-timeout, swarm_start/swarm_stop lifecycle events with
// aggregated usage, and cleanup of lazy delegates and scheduler-local state.
package swarm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
	"github.com/agentmesh/swarmkit/pkg/usage"
)

// SwarmError follows the project's per-package <Name>Error convention (§7).
type SwarmError struct {
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *SwarmError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Message)
}
func (e *SwarmError) Unwrap() error { return e.Err }

func newErr(op, msg string, err error) *SwarmError {
	return &SwarmError{Component: "swarm", Operation: op, Message: msg, Err: err, Timestamp: time.Now()}
}

const (
	DefaultExecutionTimeout = 1800 * time.Second
	DefaultTurnTimeout      = 1800 * time.Second
)

// Config names the lead agent, the swarm's own id (required whenever
// sub-swarms are in play, auto-derived from Name otherwise), and the two
// wall-clock timers (§5).
type Config struct {
	Name             string
	ID               string // auto-derived from Name if empty and no sub-swarms declared
	LeadAgent        string
	ParentSwarmID    string
	ExecutionTimeout time.Duration
	TurnTimeout      time.Duration
	HasSubSwarms     bool
}

// Swarm is the runtime topology: the primary agent instances keyed by name
// (§3 Data Model: `primary_agents: map<name, AgentInstance>`) plus the lead
// to invoke for execute().
type Swarm struct {
	cfg    Config
	agents map[string]*agentengine.Instance
	lead   *agentengine.Instance
	events *eventlog.Stream
	models map[string]string // agent name -> model id, for usage.Aggregate

	lazyDelegates []lazyDropper // cleanup hook for isolated delegation instances

	mu sync.Mutex
}

// lazyDropper is implemented by anything holding onto lazily-created
// delegation instances that must be released on swarm cleanup.
type lazyDropper interface {
	DropLazyInstances()
}

// New validates the topology (§4.8 Construction: disjoint agent names free
// of '@', sub-swarms require an explicit id, lead agent must be among the
// primary agents) and builds the swarm. agents holds every primary agent in
// the topology, keyed by its bare instance name; pkg/builder is the normal
// caller, assembling this map (plus each agent's delegation tools) from a
// config.Document.
func New(cfg Config, agents map[string]*agentengine.Instance, events *eventlog.Stream) (*Swarm, error) {
	if cfg.LeadAgent == "" {
		return nil, newErr("construct", "lead agent name is required", nil)
	}
	if cfg.HasSubSwarms && cfg.ID == "" {
		return nil, newErr("construct", "sub-swarms declared but swarm id is empty", nil)
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Name
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}

	models := make(map[string]string, len(agents))
	for name, inst := range agents {
		if strings.Contains(name, "@") {
			return nil, newErr("construct", fmt.Sprintf("agent name %q must not contain '@'", name), nil)
		}
		models[name] = inst.Def.Model
	}

	lead, ok := agents[cfg.LeadAgent]
	if !ok {
		return nil, newErr("construct", fmt.Sprintf("lead agent %q is not one of the primary agents", cfg.LeadAgent), nil)
	}

	return &Swarm{cfg: cfg, agents: agents, lead: lead, events: events, models: models}, nil
}

// Agents returns the primary agent topology, keyed by name.
func (s *Swarm) Agents() map[string]*agentengine.Instance { return s.agents }

// ForNode returns a copy of s rescoped as one workflow node execution (§4.9):
// its own swarm id becomes "<workflowName>/node:<nodeName>" with
// parent_swarm_id set to workflowName, so node.BuildSwarm's Config.ID/
// ParentSwarmID never need to encode this convention themselves.
func (s *Swarm) ForNode(workflowName, nodeName string) *Swarm {
	cfg := s.cfg
	cfg.ID = fmt.Sprintf("%s/node:%s", workflowName, nodeName)
	cfg.ParentSwarmID = workflowName
	return &Swarm{cfg: cfg, agents: s.agents, lead: s.lead, events: s.events, models: s.models}
}

// RegisterLazyDropper records a delegation tool (or other component) whose
// lazily-created instances must be dropped on cleanup (§4.8 step 5).
func (s *Swarm) RegisterLazyDropper(d lazyDropper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lazyDelegates = append(s.lazyDelegates, d)
}

// Execute runs execute(prompt, wait=true) synchronously and returns once the
// lead agent's ask completes, times out, or is cancelled (§4.8 steps 1-5).
// For wait=false, use ExecuteAsync instead.
func (s *Swarm) Execute(ctx context.Context, prompt string, outermost bool) (agentengine.AssistantResult, error) {
	parent, hasParent := eventlog.IdentityFromContext(ctx)
	executionID := parent.ExecutionID
	isNewExecution := !hasParent || executionID == ""
	if isNewExecution {
		executionID = eventlog.NewExecutionID(s.cfg.ID)
	}
	identity := eventlog.Identity{ExecutionID: executionID, SwarmID: s.cfg.ID, ParentSwarmID: s.cfg.ParentSwarmID}
	ctx = eventlog.WithIdentity(ctx, identity)

	// A nested mini-swarm (a workflow node, §4.9) inherits the parent's
	// execution_id and must not re-create the parent's subscriber list —
	// WithSubscriptions resets it to empty, which would silently drop
	// every subscriber the parent (or an earlier sibling node) installed.
	var cleanup func()
	if isNewExecution {
		ctx, cleanup = s.events.WithSubscriptions(ctx, executionID)
	}
	defer func() {
		if outermost && cleanup != nil {
			cleanup()
		}
	}()

	var collected []eventlog.Event
	var collectedMu sync.Mutex
	_ = s.events.Subscribe(ctx, func(evt eventlog.Event) {
		collectedMu.Lock()
		collected = append(collected, evt)
		collectedMu.Unlock()
	})

	s.events.Emitf(ctx, eventlog.EventSwarmStart, s.cfg.LeadAgent, map[string]any{"swarm_id": s.cfg.ID, "prompt": prompt})

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancelTimeout()

	handle := scheduler.Run(ctx, timeoutCtx, swarmerrors.ScopeExecution, func(ctx context.Context) (any, error) {
		result, err := s.lead.AskWithTurnTimeout(ctx, prompt, eventlog.SourceUser, false)
		return result, err
	})

	raw, err := handle.Wait()
	defer s.cleanup(outermost)

	if err != nil {
		if terr, ok := err.(*swarmerrors.TimeoutError); ok {
			s.events.Emitf(ctx, eventlog.EventExecutionTimeout, s.cfg.LeadAgent, map[string]any{"scope": string(terr.Scope)})
		}
		s.events.Emitf(ctx, eventlog.EventSwarmStop, s.cfg.LeadAgent, map[string]any{"swarm_id": s.cfg.ID, "error": err.Error()})
		return agentengine.AssistantResult{}, err
	}
	if raw == nil {
		// cancelled: §7g, no error, no result.
		s.events.Emitf(ctx, eventlog.EventSwarmStop, s.cfg.LeadAgent, map[string]any{"swarm_id": s.cfg.ID, "cancelled": true})
		return agentengine.AssistantResult{}, nil
	}

	result := raw.(agentengine.AssistantResult)

	collectedMu.Lock()
	totals := usage.Aggregate(collected, s.models, usage.DefaultPricingTable())
	collectedMu.Unlock()
	s.events.Emitf(ctx, eventlog.EventSwarmStop, s.cfg.LeadAgent, map[string]any{
		"swarm_id": s.cfg.ID, "total_cost": totals.TotalCost, "total_tokens": totals.TotalTokens, "per_agent_usage": totals.PerAgent,
	})

	return result, nil
}

// ExecuteAsync implements execute(prompt, wait=false): it returns
// immediately with a *scheduler.Handle the caller can Stop()/Wait() on.
func (s *Swarm) ExecuteAsync(ctx context.Context, prompt string) *scheduler.Handle {
	parent, hasParent := eventlog.IdentityFromContext(ctx)
	executionID := parent.ExecutionID
	isNewExecution := !hasParent || executionID == ""
	if isNewExecution {
		executionID = eventlog.NewExecutionID(s.cfg.ID)
	}
	identity := eventlog.Identity{ExecutionID: executionID, SwarmID: s.cfg.ID, ParentSwarmID: s.cfg.ParentSwarmID}
	ctx = eventlog.WithIdentity(ctx, identity)

	var cleanup func()
	if isNewExecution {
		ctx, cleanup = s.events.WithSubscriptions(ctx, executionID)
	}

	s.events.Emitf(ctx, eventlog.EventSwarmStart, s.cfg.LeadAgent, map[string]any{"swarm_id": s.cfg.ID, "prompt": prompt})

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)

	return scheduler.Run(ctx, timeoutCtx, swarmerrors.ScopeExecution, func(ctx context.Context) (any, error) {
		defer cancelTimeout()
		if cleanup != nil {
			defer cleanup()
		}
		defer s.cleanup(true)
		result, err := s.lead.AskWithTurnTimeout(ctx, prompt, eventlog.SourceUser, false)
		s.events.Emitf(ctx, eventlog.EventSwarmStop, s.cfg.LeadAgent, map[string]any{"swarm_id": s.cfg.ID})
		return result, err
	})
}

// cleanup drops lazy delegates; scheduler-local state itself is scoped to
// the context value chain and is simply abandoned once the outermost
// execute's context goes out of scope, so there is nothing further to clear
// explicitly beyond the subscriber list removed by WithSubscriptions'
// cleanup func (§4.8 step 5).
func (s *Swarm) cleanup(outermost bool) {
	if !outermost {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.lazyDelegates {
		d.DropLazyInstances()
	}
}
