package agentengine

import (
	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/provider"
)

// InstanceState is the per-agent slice of a swarm snapshot (§6 Snapshot
// format): the owned message list plus the context manager's own recoverable
// state. Tool state (todos, read-tracker sets) is intentionally left out of
// this struct: the spec names event-log replay, keyed off read_digest/
// read_path fields on tool_result events, as the fallback reconstruction path
// for that piece, so there is no second, divergent representation to keep in
// sync here.
type InstanceState struct {
	Messages []provider.Message  `json:"messages"`
	Context  contextmgr.State    `json:"context"`
}

// State exports a restorable snapshot of this instance's conversation and
// context-manager state.
func (i *Instance) State() InstanceState {
	return InstanceState{
		Messages: i.Messages(),
		Context:  i.Context.State(),
	}
}

// Restore installs a previously captured snapshot. System-prompt ordering
// follows §4.5: the message list is cleared first, the system prompt from
// the current agent definition is installed, and only then are the restored
// messages appended. preserveHistoricalPrompt opts into keeping the restored
// state's own leading system message instead of the current definition's.
func (i *Instance) Restore(state InstanceState, preserveHistoricalPrompt bool) {
	i.resetConversation()

	msgs := state.Messages
	if !preserveHistoricalPrompt && len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		msgs = msgs[1:]
	}

	i.mu.Lock()
	if preserveHistoricalPrompt && len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		i.messages = append([]provider.Message(nil), msgs...)
	} else {
		i.messages = append(i.messages, msgs...)
	}
	i.mu.Unlock()

	i.Context.Restore(state.Context)
}
