package agentengine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

// fanOutToolCalls executes every tool call concurrently, bounded by the
// agent's per-instance semaphore, and returns tool-result messages in the
// same order as the originating tool_calls even though execution may
// complete out of order (§4.6). It is grounded on the errgroup-based
// parallel-branch executor pattern used for workflow fan-out.
func (i *Instance) fanOutToolCalls(ctx context.Context, calls []provider.ToolCall) ([]provider.Message, error) {
	results := make([]provider.Message, len(calls))
	sem := i.Sems.ForAgent(i.InstanceName)

	group, groupCtx := errgroup.WithContext(ctx)
	for idx, call := range calls {
		idx, call := idx, call
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			results[idx] = i.executeOneToolCall(groupCtx, call)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeOneToolCall runs the pre_tool_use/post_tool_use hook pair, the
// permission wrapper, and parameter validation around a single tool
// invocation (§4.6). It never returns a Go error for a tool-level failure —
// those become the tool-result content instead, matching "execute via a
// permissions wrapper ... emit tool_call then tool_result".
func (i *Instance) executeOneToolCall(ctx context.Context, call provider.ToolCall) provider.Message {
	hc := hooks.Context{Event: hooks.EventPreToolUse, AgentName: i.InstanceName, ToolName: call.Name, Arguments: call.Arguments}
	if i.Hooks != nil {
		action, err := i.Hooks.Run(ctx, hc)
		if err == nil {
			switch action.Kind {
			case hooks.ActionHalt:
				return i.toolResultMessage(call, fmt.Sprintf("halted: %s", action.Message), nil)
			case hooks.ActionReplace:
				return i.toolResultMessage(call, fmt.Sprintf("%v", action.Value), nil)
			}
		}
	}

	i.Events.Emitf(ctx, eventlog.EventToolCall, i.InstanceName, map[string]any{"tool_call_id": call.ID, "name": call.Name, "arguments": call.Arguments})

	// rejected gives the early-return paths below their peer tool_result event.
	rejected := func(content string) provider.Message {
		i.Events.Emitf(ctx, eventlog.EventToolResult, i.InstanceName, map[string]any{
			"tool_call_id": call.ID, "name": call.Name, "metadata": nil,
		})
		return i.toolResultMessage(call, content, nil)
	}

	entry, ok := i.Tools.Get(call.Name)
	if !ok {
		return rejected(fmt.Sprintf("unknown tool %q", call.Name))
	}

	if msg := validateRequiredParameters(entry, call.Arguments); msg != "" {
		return rejected(msg)
	}

	if err := checkPermission(i.Def.Permissions, entry.Tool.Name(), call.Arguments); err != nil {
		return rejected(err.Error())
	}

	output, err := i.Tools.Execute(ctx, call.Name, call.Arguments)
	content := output
	if err != nil {
		content = err.Error()
	}

	metadata := extractReadMetadata(entry.Tool.Name(), call.Arguments)

	result := i.toolResultMessage(call, content, metadata)

	postHC := hooks.Context{Event: hooks.EventPostToolUse, AgentName: i.InstanceName, ToolName: call.Name, Arguments: call.Arguments, Result: content}
	if i.Hooks != nil {
		if action, herr := i.Hooks.Run(ctx, postHC); herr == nil && action.Kind == hooks.ActionReplace {
			result.Content = fmt.Sprintf("%v", action.Value)
		}
	}

	i.Events.Emitf(ctx, eventlog.EventToolResult, i.InstanceName, map[string]any{
		"tool_call_id": call.ID, "name": call.Name, "metadata": metadata,
	})

	return result
}

func (i *Instance) toolResultMessage(call provider.ToolCall, content string, _ map[string]any) provider.Message {
	return provider.Message{Role: provider.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: content}
}

// validateRequiredParameters produces a precise "missing parameter X" error
// message with no source-language terminology leaking through (§4.6).
func validateRequiredParameters(entry toolregistry.Entry, args map[string]any) string {
	for name, schema := range entry.Tool.Parameters() {
		if !schema.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			return fmt.Sprintf("missing parameter %q for tool %q", name, entry.Tool.Name())
		}
	}
	return ""
}

func checkPermission(perm PermissionConfig, toolName string, args map[string]any) error {
	path, hasPath := stringArg(args, "path")
	if !hasPath {
		path, hasPath = stringArg(args, "file_path")
	}
	if hasPath && len(perm.PathDeny) > 0 {
		if matchesAny(perm.PathDeny, path) {
			return swarmerrors.NewPermissionDeniedError(toolName, fmt.Sprintf("path %q is denied", path))
		}
	}
	if hasPath && len(perm.PathAllow) > 0 && !matchesAny(perm.PathAllow, path) {
		return swarmerrors.NewPermissionDeniedError(toolName, fmt.Sprintf("path %q is not in the allow list", path))
	}

	if command, ok := stringArg(args, "command"); ok {
		if len(perm.CommandDeny) > 0 && matchesAnyRegex(perm.CommandDeny, command) {
			return swarmerrors.NewPermissionDeniedError(toolName, fmt.Sprintf("command %q is denied", command))
		}
		if len(perm.CommandAllow) > 0 && !matchesAnyRegex(perm.CommandAllow, command) {
			return swarmerrors.NewPermissionDeniedError(toolName, fmt.Sprintf("command %q is not in the allow list", command))
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// extractReadMetadata attaches read_digest/read_path to rerunnable read
// tools so event-sourced reconstruction can rebuild read-tracking sets
// (§4.6, §6 Snapshot format).
func extractReadMetadata(toolName string, args map[string]any) map[string]any {
	if toolName != "Read" {
		return nil
	}
	path, ok := stringArg(args, "file_path")
	if !ok {
		return nil
	}
	return map[string]any{"read_path": path, "read_digest": digest(path)}
}
