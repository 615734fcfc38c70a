package agentengine

import (
	"context"
	"sync"

	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
	"golang.org/x/sync/semaphore"
)

// Instance is the runtime AgentInstance (§3): identity (its own name, or
// "base@delegator" for a delegation instance), owned conversation, tool
// registry, context manager, and the per-instance semaphore shared-mode
// delegation serializes concurrent calls through.
type Instance struct {
	InstanceName string // "base" or "base@delegator@..."
	Def          Definition

	Adapter provider.Adapter
	Tools   *toolregistry.Registry
	Context *contextmgr.Manager
	Hooks   *hooks.Executor
	Events  *eventlog.Stream
	Sems    *scheduler.Semaphores

	instanceSem *semaphore.Weighted // shared-mode delegation serialization

	mu       sync.Mutex
	messages []provider.Message

	firstMessageSent bool
}

// NewInstance builds an agent instance. instanceName is the full delegation
// chain name ("c@b@a") or just def.Name for a primary agent.
func NewInstance(instanceName string, def Definition, adapter provider.Adapter, tools *toolregistry.Registry, ctxMgr *contextmgr.Manager, hookExec *hooks.Executor, events *eventlog.Stream, sems *scheduler.Semaphores) *Instance {
	inst := &Instance{
		InstanceName: instanceName,
		Def:          def,
		Adapter:      adapter,
		Tools:        tools,
		Context:      ctxMgr,
		Hooks:        hookExec,
		Events:       events,
		Sems:         sems,
		instanceSem:  semaphore.NewWeighted(1),
	}
	if def.SystemPrompt != "" {
		inst.messages = append(inst.messages, provider.Message{Role: provider.RoleSystem, Content: def.SystemPrompt})
	}
	return inst
}

// Messages returns a defensive copy of the owned conversation.
func (i *Instance) Messages() []provider.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]provider.Message, len(i.messages))
	copy(out, i.messages)
	return out
}

// resetConversation clears the conversation, preserving the configured
// system prompt, matching §4.5 step 1 and the system-prompt-ordering rule
// in §4.5 ("clear first, install system prompt, then append restored
// messages").
func (i *Instance) resetConversation() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = nil
	if i.Def.SystemPrompt != "" {
		i.messages = append(i.messages, provider.Message{Role: provider.RoleSystem, Content: i.Def.SystemPrompt})
	}
}

func (i *Instance) appendMessage(msg provider.Message) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = append(i.messages, msg)
	return len(i.messages) - 1
}

func (i *Instance) replaceMessages(msgs []provider.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = msgs
}

// AcquireShared serializes concurrent entries into a shared-mode delegation
// instance through its per-instance semaphore (§4.7, §5).
func (i *Instance) AcquireShared(ctx context.Context) (release func(), err error) {
	if err := i.instanceSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { i.instanceSem.Release(1) }, nil
}
