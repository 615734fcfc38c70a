package agentengine

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// DefaultTurnTimeout is the turn_timeout default (§5), mirroring
// swarm.DefaultExecutionTimeout's default at the per-ask scope.
const DefaultTurnTimeout = 1800 * time.Second

// AskWithTurnTimeout wraps Ask in the turn-level barrier-with-timeout (§5).
// Unlike Ask itself, a timeout here must not propagate as an error: it is
// converted into the same assistant-role error-message shape
// surfaceProviderFailure uses for a non-retryable provider failure, so a
// delegating parent observes it naturally rather than the call panicking
// out from under it (§7 "timeouts of ask produce a message, not an
// exception").
func (i *Instance) AskWithTurnTimeout(ctx context.Context, prompt string, source eventlog.PromptSource, resetContext bool) (AssistantResult, error) {
	timeout := i.Def.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handle := scheduler.Run(ctx, timeoutCtx, swarmerrors.ScopeTurn, func(runCtx context.Context) (any, error) {
		return i.Ask(runCtx, prompt, source, resetContext)
	})

	raw, err := handle.Wait()
	if err != nil {
		if terr, ok := err.(*swarmerrors.TimeoutError); ok {
			i.Events.Emitf(ctx, eventlog.EventTurnTimeout, i.InstanceName, map[string]any{"scope": string(terr.Scope)})
			msg := provider.Message{
				Role:    provider.RoleAssistant,
				Content: fmt.Sprintf("turn timeout exceeded after %s", timeout),
			}
			i.appendMessage(msg)
			return AssistantResult{Message: msg}, nil
		}
		return AssistantResult{}, err
	}
	if raw == nil {
		return AssistantResult{}, nil // cancelled: §7g, no error, no result
	}
	return raw.(AssistantResult), nil
}
