package contextmgr

import (
	"fmt"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

const truncationMarker = "… [truncated for context management]"

// compressionThresholds are checked in ascending order; 60% additionally
// triggers the one-shot compression action, 80%/90% are informational only.
var compressionThresholds = []int{60, 80, 90}

func bucketLimit(age int, keepRecent int) (limit int, compress bool) {
	switch {
	case age <= keepRecent:
		return 0, false
	case age <= 20:
		return 1000, true
	case age <= 40:
		return 500, true
	case age <= 60:
		return 200, true
	default:
		return 100, true
	}
}

// CompressToolResults truncates tool-result messages older than
// KeepRecentCount by age bucket (§4.3). It returns a new slice; messages is
// never mutated. Age is measured from the end of the slice (the most recent
// message has age 1).
func CompressToolResults(messages []provider.Message, keepRecent int) ([]provider.Message, int) {
	out := make([]provider.Message, len(messages))
	copy(out, messages)

	compressed := 0
	n := len(out)
	for i, msg := range out {
		if msg.Role != provider.RoleTool {
			continue
		}
		age := n - i
		limit, shouldCompress := bucketLimit(age, keepRecent)
		if !shouldCompress || len(msg.Content) <= limit {
			continue
		}

		truncated := msg.Content[:limit] + truncationMarker
		if RerunnableTools[msg.Name] {
			truncated += fmt.Sprintf(" (re-run the %s tool to get fresh results)", msg.Name)
		}
		msg.Content = truncated
		out[i] = msg
		compressed++
	}
	return out, compressed
}

// ThresholdResult reports what ManageThresholds decided for one call.
type ThresholdResult struct {
	NewlyHit          []int
	Compressed        bool
	CompressedCount   int
	CompressedMessages []provider.Message // non-nil only if Compressed
}

// ManageThresholds checks the current usage percentage against 60/80/90 and
// applies progressive compression at most once per agent (the
// compression_applied latch). Per the documented resolution of the "is 60%
// suppressed once compression already ran" ambiguity: the 60% threshold
// event still fires exactly once even after compression has already
// happened, but the compression action itself never re-runs.
func (m *Manager) ManageThresholds(messages []provider.Message) ThresholdResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.unlockedStats(messages)
	result := ThresholdResult{}

	for _, threshold := range compressionThresholds {
		if m.thresholdHits[threshold] {
			continue
		}
		if stats.UsagePercentage < float64(threshold) {
			continue
		}
		m.thresholdHits[threshold] = true
		result.NewlyHit = append(result.NewlyHit, threshold)

		if threshold == 60 && !m.compressionApplied {
			compressedMessages, n := CompressToolResults(messages, m.cfg.KeepRecentCount)
			m.compressionApplied = true
			result.Compressed = true
			result.CompressedCount = n
			result.CompressedMessages = compressedMessages
		}
	}
	return result
}

func (m *Manager) unlockedStats(messages []provider.Message) Stats {
	input := CumulativeInputTokens(messages)
	output := CumulativeOutputTokens(messages)
	total := input + output
	var pct float64
	if m.cfg.ContextLimit > 0 {
		pct = roundPct(float64(total) / float64(m.cfg.ContextLimit) * 100)
	}
	return Stats{UsagePercentage: pct}
}

func roundPct(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
