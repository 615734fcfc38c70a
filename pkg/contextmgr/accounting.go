package contextmgr

import (
	"math"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

// Stats reports the teacher's GetContextStats shape, repurposed to back
// context_usage_percentage / tokens_remaining (§4.3).
type Stats struct {
	MessageCount     int
	CumulativeInput  int
	CumulativeOutput int
	UsagePercentage  float64
	TokensRemaining  int
	NeedsReduction   bool
}

// CumulativeInputTokens returns the latest assistant message's reported
// input_tokens, since providers report that figure cumulatively rather than
// per-call (§4.3).
func CumulativeInputTokens(messages []provider.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleAssistant {
			return messages[i].InputTokens
		}
	}
	return 0
}

// CumulativeOutputTokens sums output_tokens over every assistant message.
func CumulativeOutputTokens(messages []provider.Message) int {
	total := 0
	for _, msg := range messages {
		if msg.Role == provider.RoleAssistant {
			total += msg.OutputTokens
		}
	}
	return total
}

// GetStats computes the full accounting snapshot for messages against the
// manager's configured context limit.
func (m *Manager) GetStats(messages []provider.Message) Stats {
	input := CumulativeInputTokens(messages)
	output := CumulativeOutputTokens(messages)
	total := input + output

	var pct float64
	var remaining int
	if m.cfg.ContextLimit > 0 {
		pct = math.Round(float64(total)/float64(m.cfg.ContextLimit)*100*100) / 100
		remaining = m.cfg.ContextLimit - total
	}

	return Stats{
		MessageCount:     len(messages),
		CumulativeInput:  input,
		CumulativeOutput: output,
		UsagePercentage:  pct,
		TokensRemaining:  remaining,
		NeedsReduction:   pct >= m.cfg.SummarizeThreshold*100,
	}
}
