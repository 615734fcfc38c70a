package contextmgr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

// PruneOrphanToolCalls scans messages for assistant tool_calls lacking a
// tool-result peer and removes only the orphan entries, dropping the
// assistant message entirely if doing so empties both its content and its
// remaining tool_calls (§4.3). It returns the pruned slice, the count of
// removed calls, and a human-readable description of each ("Name(args)")
// suitable for the ephemeral reminder text.
func PruneOrphanToolCalls(messages []provider.Message) ([]provider.Message, int, []string) {
	resultIDs := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role == provider.RoleTool && msg.ToolCallID != "" {
			resultIDs[msg.ToolCallID] = true
		}
	}

	var out []provider.Message
	var removed []string

	for _, msg := range messages {
		if msg.Role != provider.RoleAssistant || !msg.HasToolCalls() {
			out = append(out, msg)
			continue
		}

		var kept []provider.ToolCall
		for _, tc := range msg.ToolCalls {
			if resultIDs[tc.ID] {
				kept = append(kept, tc)
			} else {
				removed = append(removed, FormatToolCall(tc))
			}
		}

		if len(kept) == len(msg.ToolCalls) {
			out = append(out, msg)
			continue
		}

		msg.ToolCalls = kept
		if msg.Content == "" && len(kept) == 0 {
			continue // drop the assistant message entirely
		}
		out = append(out, msg)
	}

	return out, len(removed), removed
}

// FormatToolCall renders a tool call as "Name(key: "value", ...)" with
// deterministic key ordering, avoiding source-language argument dump
// formats so the text reads naturally in a reminder.
func FormatToolCall(tc provider.ToolCall) string {
	keys := make([]string, 0, len(tc.Arguments))
	for k := range tc.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %q", k, fmt.Sprintf("%v", tc.Arguments[k])))
	}
	return fmt.Sprintf("%s(%s)", tc.Name, strings.Join(parts, ", "))
}

// OrphanReminderText builds the ephemeral <system-reminder> body listing
// every pruned call, matching the exact wording §4.3 requires.
func OrphanReminderText(removed []string) string {
	var b strings.Builder
	for _, call := range removed {
		b.WriteString(call)
		b.WriteString("\n")
	}
	b.WriteString("These tools were never executed. If you still need their results, please run them again.")
	return WrapSystemReminder(b.String())
}
