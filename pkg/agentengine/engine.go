package agentengine

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// DefaultRetryDelay and DefaultRetryBudget are the chat engine's own
// retry-layer defaults for 5xx/rate-limit/transport errors (§4.5c, §5).
const (
	DefaultRetryDelay  = 15 * time.Second
	DefaultRetryBudget = 3
)

// Ask is the engine's one public operation (§4.5): prompt in, a fully
// assembled assistant message out. Turn-level timeout wrapping is the
// caller's responsibility (scheduler.Run with swarmerrors.ScopeTurn); a turn
// timeout must not raise out of Ask, so callers translate a scheduler
// timeout into the same assistant-error-message shape Ask itself uses for
// non-retryable provider failures.
func (i *Instance) Ask(ctx context.Context, prompt string, source eventlog.PromptSource, resetContext bool) (AssistantResult, error) {
	if resetContext {
		i.resetConversation()
	}

	isFirst := !i.firstMessageSent
	if isFirst {
		i.injectFirstMessageReminders()
		i.firstMessageSent = true
	}

	i.appendMessage(provider.Message{Role: provider.RoleUser, Content: prompt})

	if i.Hooks != nil {
		action, err := i.Hooks.Run(ctx, hooks.Context{Event: hooks.EventUserPrompt, AgentName: i.InstanceName, Prompt: prompt})
		if err != nil {
			return AssistantResult{}, err
		}
		if action.Kind == hooks.ActionHalt {
			return AssistantResult{}, swarmerrors.NewHookHaltError(string(hooks.EventUserPrompt), action.Message)
		}
	}

	i.Events.Emitf(ctx, eventlog.EventUserPrompt, i.InstanceName, map[string]any{"source": string(source), "content": prompt})

	defer i.Context.ClearEphemeral()

	attempts := 0
	for {
		prepared := i.Context.PrepareForLLM(i.Messages())
		req := i.buildRequest(prepared)

		i.Events.Emitf(ctx, eventlog.EventLLMAPIRequest, i.InstanceName, map[string]any{"model": i.Def.Model})

		resp, perr := i.complete(ctx, req)
		if perr != nil {
			switch {
			case perr.IsToolHistory():
				pruned, n, details := contextmgr.PruneOrphanToolCalls(i.Messages())
				i.replaceMessages(pruned)
				reminderIdx := len(pruned) - 1
				if reminderIdx < 0 {
					reminderIdx = 0
				}
				i.Context.InjectEphemeral(reminderIdx, contextmgr.OrphanReminderText(details))
				i.Events.Emitf(ctx, eventlog.EventOrphanToolCallsPruned, i.InstanceName, map[string]any{
					"pruned_count": n,
					"details":      details,
				})
				continue // does not consume the retry budget

			case !perr.Retryable:
				return i.surfaceProviderFailure(ctx, perr), nil

			default: // retryable: 5xx, 429, transport
				attempts++
				if attempts > DefaultRetryBudget {
					return i.surfaceProviderFailure(ctx, perr), nil
				}
				i.sleep(DefaultRetryDelay)
				continue
			}
		}

		assistant := resp
		i.appendMessage(assistant)

		i.applyContextManagement(ctx)

		if !assistant.HasToolCalls() {
			i.Events.Emitf(ctx, eventlog.EventAgentStep, i.InstanceName, nil)
			i.Events.Emitf(ctx, eventlog.EventAgentStop, i.InstanceName, nil)
			return AssistantResult{Message: assistant}, nil
		}

		results, err := i.fanOutToolCalls(ctx, assistant.ToolCalls)
		if err != nil {
			return AssistantResult{}, err
		}
		for _, r := range results {
			i.appendMessage(r)
		}
		// loop: re-enter the request cycle with tool results appended.
	}
}

func (i *Instance) sleep(d time.Duration) {
	time.Sleep(d)
}

// complete issues one provider call (streaming or not per Def.Streaming) and
// returns the consolidated assistant message, or a classified
// *swarmerrors.ProviderError.
func (i *Instance) complete(ctx context.Context, req provider.Request) (provider.Message, *swarmerrors.ProviderError) {
	if i.Sems != nil {
		if err := i.Sems.Global.Acquire(ctx, 1); err != nil {
			return provider.Message{}, swarmerrors.NewProviderError(0, swarmerrors.KindTransport, true, err.Error(), err)
		}
		defer i.Sems.Global.Release(1)
	}

	if !req.Stream {
		resp, err := i.Adapter.Complete(ctx, req)
		if err != nil {
			if perr, ok := err.(*swarmerrors.ProviderError); ok {
				return provider.Message{}, perr
			}
			return provider.Message{}, swarmerrors.NewProviderError(0, swarmerrors.KindProgramming, false, err.Error(), err)
		}
		i.Events.Emitf(ctx, eventlog.EventLLMAPIResponse, i.InstanceName, map[string]any{
			"streaming": false, "status": resp.StatusCode, "finish_reason": resp.FinishReason,
			"model": i.Def.Model, "input_tokens": resp.Message.InputTokens,
			"output_tokens": resp.Message.OutputTokens, "cached_tokens": resp.Message.CachedTokens,
		})
		return resp.Message, nil
	}

	chunks, err := i.Adapter.Stream(ctx, req)
	if err != nil {
		if perr, ok := err.(*swarmerrors.ProviderError); ok {
			return provider.Message{}, perr
		}
		return provider.Message{}, swarmerrors.NewProviderError(0, swarmerrors.KindProgramming, false, err.Error(), err)
	}

	var content string
	var toolCalls []provider.ToolCall
	var citations []provider.Citation
	sawContent := false

	for chunk := range chunks {
		if chunk.Err != nil {
			if perr, ok := chunk.Err.(*swarmerrors.ProviderError); ok {
				return provider.Message{}, perr
			}
			return provider.Message{}, swarmerrors.NewProviderError(0, swarmerrors.KindTransport, true, chunk.Err.Error(), chunk.Err)
		}
		switch chunk.Type {
		case provider.ChunkContent:
			if !sawContent && len(toolCalls) > 0 {
				i.Events.Emitf(ctx, eventlog.EventContentChunk, i.InstanceName, map[string]any{"chunk_type": string(eventlog.ChunkSeparator)})
			}
			sawContent = true
			content += chunk.Text
			i.Events.Emitf(ctx, eventlog.EventContentChunk, i.InstanceName, map[string]any{"chunk_type": string(eventlog.ChunkContent), "text": chunk.Text})
		case provider.ChunkToolCall:
			if sawContent {
				i.Events.Emitf(ctx, eventlog.EventContentChunk, i.InstanceName, map[string]any{"chunk_type": string(eventlog.ChunkSeparator)})
				sawContent = false
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
			i.Events.Emitf(ctx, eventlog.EventContentChunk, i.InstanceName, map[string]any{"chunk_type": string(eventlog.ChunkToolCall)})
		case provider.ChunkCitations:
			citations = chunk.Citations
			i.Events.Emitf(ctx, eventlog.EventContentChunk, i.InstanceName, map[string]any{"chunk_type": string(eventlog.ChunkCitations)})
		}
	}

	i.Events.Emitf(ctx, eventlog.EventLLMAPIResponse, i.InstanceName, map[string]any{"streaming": true, "model": i.Def.Model})

	return provider.Message{
		Role:      provider.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
		Citations: citations,
	}, nil
}

func (i *Instance) buildRequest(messages []provider.Message) provider.Request {
	var defs []provider.ToolDefinition
	for _, entry := range i.Tools.ActiveTools() {
		params := map[string]any{}
		for name, p := range entry.Tool.Parameters() {
			params[name] = map[string]any{"type": p.Type, "description": p.Description, "required": p.Required}
		}
		defs = append(defs, provider.ToolDefinition{Name: entry.Tool.Name(), Description: entry.Tool.Description(), Parameters: params})
	}

	return provider.Request{
		Model:       i.Def.Model,
		Messages:    messages,
		Tools:       defs,
		Temperature: i.Def.Temperature,
		MaxTokens:   i.Def.MaxTokens,
		Thinking:    i.Def.Thinking,
		Headers:     i.Def.Headers,
		APIVersion:  i.Def.APIVersion,
		Stream:      i.Def.Streaming,
	}
}

// surfaceProviderFailure converts a non-retryable (or retry-budget-exhausted)
// provider error into an assistant-role message, per §4.5/§7 "this lets a
// delegating parent observe the failure naturally" rather than raising.
func (i *Instance) surfaceProviderFailure(ctx context.Context, perr *swarmerrors.ProviderError) AssistantResult {
	i.Events.Emitf(ctx, eventlog.EventLLMRequestFailed, i.InstanceName, map[string]any{
		"retryable":   perr.Retryable,
		"error_type":  providerErrorTypeLabel(perr.Kind),
		"status_code": perr.StatusCode,
	})
	msg := provider.Message{
		Role:    provider.RoleAssistant,
		Content: fmt.Sprintf("%s (%d): %s", providerErrorTypeLabel(perr.Kind), perr.StatusCode, perr.Message),
	}
	i.appendMessage(msg)
	return AssistantResult{Message: msg}
}

func providerErrorTypeLabel(kind swarmerrors.ProviderErrorKind) string {
	switch kind {
	case swarmerrors.KindUnauthorized:
		return "Unauthorized"
	case swarmerrors.KindForbidden:
		return "Forbidden"
	case swarmerrors.KindRateLimited:
		return "RateLimited"
	case swarmerrors.KindServerError:
		return "ServerError"
	case swarmerrors.KindTransport:
		return "TransportError"
	case swarmerrors.KindProgramming:
		return "ProgrammingError"
	default:
		return "InvalidRequest"
	}
}

// injectFirstMessageReminders adds the toolset reminder and, only if
// TodoWrite is active, the empty-todo-list reminder, ephemerally on the
// about-to-be-appended user message (§4.5 step 1).
func (i *Instance) injectFirstMessageReminders() {
	nextIdx := len(i.Messages())

	var toolNames []string
	for _, entry := range i.Tools.ActiveTools() {
		toolNames = append(toolNames, entry.Tool.Name())
	}
	i.Context.InjectEphemeral(nextIdx, contextmgr.WrapSystemReminder(fmt.Sprintf("Available tools: %v", toolNames)))

	if entry, ok := i.Tools.Get("TodoWrite"); ok {
		_ = entry
		i.Context.InjectEphemeral(nextIdx, contextmgr.WrapSystemReminder("Your todo list is currently empty."))
	}
}

// applyContextManagement runs the progressive-compression/threshold check
// against the freshly updated conversation and replaces stored messages if
// compression fired (§4.3).
func (i *Instance) applyContextManagement(ctx context.Context) {
	messages := i.Messages()
	result := i.Context.ManageThresholds(messages)
	for _, threshold := range result.NewlyHit {
		i.Events.Emitf(ctx, eventlog.EventContextThresholdHit, i.InstanceName, map[string]any{"threshold": threshold})
	}
	if result.Compressed {
		i.replaceMessages(result.CompressedMessages)
		i.Events.Emitf(ctx, eventlog.EventContextCompression, i.InstanceName, map[string]any{"compressed_count": result.CompressedCount})
	}
}
