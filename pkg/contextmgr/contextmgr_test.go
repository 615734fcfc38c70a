package contextmgr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/provider"
)

func TestPrepareForLLM_InlinesEphemeralWithoutMutatingOthers(t *testing.T) {
	m := NewManager(DefaultConfig(100000))
	original := []provider.Message{
		{Role: provider.RoleSystem, Content: "you are an agent"},
		{Role: provider.RoleUser, Content: "hello"},
		{Role: provider.RoleAssistant, Content: "hi there"},
	}

	m.InjectEphemeral(1, "<system-reminder>be nice</system-reminder>")
	prepared := m.PrepareForLLM(original)

	require.Len(t, prepared, 3)
	assert.Equal(t, original[0], prepared[0])
	assert.Equal(t, original[2], prepared[2])
	assert.Contains(t, prepared[1].Content, "<system-reminder>be nice</system-reminder>")
	assert.Equal(t, "hello", original[1].Content, "stored conversation must not be mutated")
}

func TestOrphanRecoveryScenario(t *testing.T) {
	messages := []provider.Message{
		{Role: provider.RoleUser, Content: "hi"},
		{
			Role: provider.RoleAssistant,
			ToolCalls: []provider.ToolCall{
				{ID: "tc1", Name: "Read", Arguments: map[string]any{"file_path": "/x"}},
			},
		},
	}

	pruned, count, details := PruneOrphanToolCalls(messages)

	require.Equal(t, 1, count)
	require.Len(t, pruned, 1, "the now-empty assistant message must be dropped entirely")
	require.Len(t, details, 1)
	assert.Contains(t, details[0], `Read(file_path: "/x")`)

	reminder := OrphanReminderText(details)
	assert.True(t, strings.HasPrefix(reminder, "<system-reminder>"))
	assert.Contains(t, reminder, `Read(file_path: "/x")`)
	assert.Contains(t, reminder, "These tools were never executed.")
}

func TestProgressiveCompressionScenario(t *testing.T) {
	// 80 messages, with tool results at age-from-end 15, 30, 50, 70.
	const total = 80
	messages := make([]provider.Message, total)
	toolAtAge := map[int]bool{15: true, 30: true, 50: true, 70: true}
	for i := 0; i < total; i++ {
		age := total - i
		if toolAtAge[age] {
			messages[i] = provider.Message{Role: provider.RoleTool, Name: "Read", Content: strings.Repeat("x", 2000)}
		} else {
			messages[i] = provider.Message{Role: provider.RoleUser, Content: "filler"}
		}
	}

	compressed, n := CompressToolResults(messages, 10)
	require.Equal(t, 4, n)

	expectLimit := map[int]int{15: 1000, 30: 500, 50: 200, 70: 100}
	for i, msg := range compressed {
		age := total - i
		limit, ok := expectLimit[age]
		if !ok {
			continue
		}
		assert.LessOrEqual(t, len(msg.Content), limit+len(truncationMarker)+60)
		assert.Contains(t, msg.Content, "truncated for context management")
		assert.Contains(t, msg.Content, "re-run the Read tool")
	}
}

func TestManageThresholds_CompressesOnceAtSixtyPercent(t *testing.T) {
	cfg := DefaultConfig(1000)
	m := NewManager(cfg)

	messages := []provider.Message{
		{Role: provider.RoleTool, Name: "Read", Content: strings.Repeat("y", 2000)},
		{Role: provider.RoleAssistant, InputTokens: 650, OutputTokens: 10},
	}

	result := m.ManageThresholds(messages)
	assert.Contains(t, result.NewlyHit, 60)
	assert.True(t, result.Compressed)

	second := m.ManageThresholds(messages)
	assert.NotContains(t, second.NewlyHit, 60, "threshold fires at most once per agent")
	assert.False(t, second.Compressed, "compression action never re-runs once applied")
}

func TestTokenAccounting_Monotonicity(t *testing.T) {
	messages := []provider.Message{
		{Role: provider.RoleAssistant, InputTokens: 100, OutputTokens: 5},
		{Role: provider.RoleUser, Content: "more"},
		{Role: provider.RoleAssistant, InputTokens: 150, OutputTokens: 8},
	}

	first := CumulativeInputTokens(messages[:1])
	second := CumulativeInputTokens(messages)
	assert.LessOrEqual(t, first, second)
}
