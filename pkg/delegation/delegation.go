// Package delegation implements the WorkWith<Target> tool (§4.7): a
// toolregistry.Tool that lets one agent instance invoke another, either
// isolated (a fresh, lazily-created per-delegator instance) or shared (a
// single instance serialized across every delegator).
package delegation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

// Factory builds a fresh agent instance for the named base agent definition,
// scoped to instanceName (which may be a delegation chain like "c@b@a").
type Factory func(instanceName, baseAgent string) (*agentengine.Instance, error)

// DelegationError follows the package-local <Name>Error convention (§7).
type DelegationError struct {
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Operation, e.Message)
}
func (e *DelegationError) Unwrap() error { return e.Err }

// Tool is the WorkWith<Target> tool registered on a delegator's toolregistry
// (§4.7). One Tool instance handles delegation to exactly one target agent
// from exactly one delegator.
type Tool struct {
	delegatorName string
	target        agentengine.DelegationTarget
	factory       Factory
	events        *eventlog.Stream

	mu       sync.Mutex
	isolated map[string]*agentengine.Instance // delegatorChain -> lazily created instance
	shared   *agentengine.Instance            // created once, eagerly in NewTool
}

// NewTool constructs the delegation tool. The chain is validated for cycles
// at construction time: target.Agent must not already appear in the
// delegator's ancestor chain (parentChain), since a cycle can only be
// introduced when a new delegation edge is added to the topology, not at
// call time. A target equal to delegatorName itself is not checked.
//
// Shared-mode targets (PreserveContext == true) build their one instance
// right here, eagerly (§3 Data Model Lifecycle: "eager if shared"); isolated
// targets stay lazy, created per-delegator on first Execute.
func NewTool(delegatorName string, parentChain []string, target agentengine.DelegationTarget, factory Factory, events *eventlog.Stream) (*Tool, error) {
	for _, ancestor := range parentChain {
		if ancestor == target.Agent {
			return nil, &DelegationError{
				Component: "delegation", Operation: "construct",
				Message: fmt.Sprintf("cycle detected: %q already delegates to %q", target.Agent, strings.Join(append(parentChain, delegatorName), "@")),
			}
		}
	}
	t := &Tool{
		delegatorName: delegatorName,
		target:        target,
		factory:       factory,
		events:        events,
		isolated:      make(map[string]*agentengine.Instance),
	}

	if !isIsolated(target) {
		if events != nil {
			events.Emitf(context.Background(), eventlog.EventAgentLazyInitStart, target.Agent, map[string]any{"base_agent": target.Agent})
		}
		inst, err := factory(target.Agent, target.Agent)
		if err != nil {
			return nil, &DelegationError{Component: "delegation", Operation: "eager_initialize", Message: err.Error(), Err: err}
		}
		if events != nil {
			events.Emitf(context.Background(), eventlog.EventAgentLazyInitComplete, target.Agent, nil)
		}
		t.shared = inst
	}

	return t, nil
}

func (t *Tool) Name() string        { return t.target.WorkWithToolName() }
func (t *Tool) Description() string { return fmt.Sprintf("Delegate a task to agent %q.", t.target.Agent) }

func (t *Tool) Parameters() map[string]toolregistry.ParameterSchema {
	return map[string]toolregistry.ParameterSchema{
		"prompt":        {Type: "string", Description: "The task to delegate.", Required: true},
		"reset_context": {Type: "boolean", Description: "Override this delegation's default context-preservation behavior for this call.", Required: false},
	}
}

// Execute resolves (lazily creating if needed) the target instance and runs
// Ask on it, tagging the prompt source as delegation (§4.7).
func (t *Tool) Execute(ctx context.Context, params map[string]any) (string, error) {
	prompt, _ := params["prompt"].(string)

	resetContext := !t.target.PreserveContext
	if v, ok := params["reset_context"].(bool); ok {
		resetContext = v
	}

	inst, err := t.resolveInstance(ctx)
	if err != nil {
		return "", err
	}

	if t.target.PreserveContext {
		release, err := inst.AcquireShared(ctx)
		if err != nil {
			return "", err
		}
		defer release()
	}

	result, err := inst.AskWithTurnTimeout(ctx, prompt, eventlog.SourceDelegation, resetContext)
	if err != nil {
		return "", err
	}

	if t.events != nil {
		t.events.Emitf(ctx, eventlog.EventDelegationResult, t.delegatorName, map[string]any{
			"target": t.target.Agent, "shared": !isIsolated(t.target),
		})
	}

	return result.Message.Content, nil
}

// resolveInstance returns the isolated or shared target instance, creating
// it on first use. Isolated mode keys instances by the delegator's own
// instance name so a nested chain ("c@b@a") gets one instance per distinct
// path through the topology, matching "target@delegator" naming (§4.7).
func (t *Tool) resolveInstance(ctx context.Context) (*agentengine.Instance, error) {
	if isIsolated(t.target) {
		return t.resolveIsolated(ctx)
	}
	return t.resolveShared(ctx)
}

func isIsolated(target agentengine.DelegationTarget) bool {
	return !target.PreserveContext
}

func (t *Tool) resolveIsolated(ctx context.Context) (*agentengine.Instance, error) {
	instanceName := t.target.Agent + "@" + t.delegatorName

	t.mu.Lock()
	if inst, ok := t.isolated[instanceName]; ok {
		t.mu.Unlock()
		return inst, nil
	}
	t.mu.Unlock()

	// Construction can run concurrently from two tool calls racing on the
	// first use; only one factory call should win, so lock across creation.
	t.mu.Lock()
	defer t.mu.Unlock()
	if inst, ok := t.isolated[instanceName]; ok {
		return inst, nil
	}

	if t.events != nil {
		t.events.Emitf(ctx, eventlog.EventAgentLazyInitStart, instanceName, map[string]any{"base_agent": t.target.Agent})
	}
	inst, err := t.factory(instanceName, t.target.Agent)
	if err != nil {
		return nil, &DelegationError{Component: "delegation", Operation: "lazy_initialize", Message: err.Error(), Err: err}
	}
	if t.events != nil {
		t.events.Emitf(ctx, eventlog.EventAgentLazyInitComplete, instanceName, nil)
	}
	t.isolated[instanceName] = inst
	return inst, nil
}

// resolveShared returns the instance NewTool already built eagerly; shared
// instances are never created here (§3 Data Model Lifecycle: "eager if
// shared").
func (t *Tool) resolveShared(ctx context.Context) (*agentengine.Instance, error) {
	t.mu.Lock()
	inst := t.shared
	t.mu.Unlock()
	if inst == nil {
		return nil, &DelegationError{Component: "delegation", Operation: "resolve_shared", Message: "shared instance was not constructed at tool creation time"}
	}
	return inst, nil
}

// DropLazyInstances satisfies swarm's lazyDropper: it releases the isolated
// (lazy) instances created for this delegation target on swarm cleanup
// (§4.8 step 5). The eagerly-built shared instance, if any, outlives a
// single execution and is left untouched.
func (t *Tool) DropLazyInstances() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isolated = make(map[string]*agentengine.Instance)
}
