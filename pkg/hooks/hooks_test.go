package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_StopsAtFirstNonContinueAction(t *testing.T) {
	reg := NewRegistry()
	var secondRan bool
	require.NoError(t, reg.Register(EventPreToolUse, "", 10, func(ctx context.Context, hc Context) (Action, error) {
		return Halt("blocked"), nil
	}))
	require.NoError(t, reg.Register(EventPreToolUse, "", 0, func(ctx context.Context, hc Context) (Action, error) {
		secondRan = true
		return Continue(), nil
	}))

	exec := NewExecutor(reg)
	action, err := exec.Run(context.Background(), Context{Event: EventPreToolUse, ToolName: "Bash"})
	require.NoError(t, err)
	assert.Equal(t, ActionHalt, action.Kind)
	assert.False(t, secondRan, "higher-priority halt must short-circuit lower-priority handlers")
}

func TestExecutor_PriorityOrdering(t *testing.T) {
	reg := NewRegistry()
	var order []int
	require.NoError(t, reg.Register(EventUserPrompt, "", 1, func(ctx context.Context, hc Context) (Action, error) {
		order = append(order, 1)
		return Continue(), nil
	}))
	require.NoError(t, reg.Register(EventUserPrompt, "", 5, func(ctx context.Context, hc Context) (Action, error) {
		order = append(order, 5)
		return Continue(), nil
	}))

	_, err := NewExecutor(reg).Run(context.Background(), Context{Event: EventUserPrompt})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1}, order)
}

func TestMatcher_PipeAlternativesAndWordBoundary(t *testing.T) {
	reg := NewRegistry()
	var matched string
	require.NoError(t, reg.Register(EventPreToolUse, "Bash|Read", 0, func(ctx context.Context, hc Context) (Action, error) {
		matched = hc.ToolName
		return Halt("x"), nil
	}))
	exec := NewExecutor(reg)

	_, err := exec.Run(context.Background(), Context{Event: EventPreToolUse, ToolName: "Read"})
	require.NoError(t, err)
	assert.Equal(t, "Read", matched)

	matched = ""
	_, err = exec.Run(context.Background(), Context{Event: EventPreToolUse, ToolName: "ReadOnlyThing"})
	require.NoError(t, err)
	assert.Empty(t, matched, "word-boundary anchoring must not match a substring")
}

func TestRepromptOnlyValidFromSwarmStop(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(EventUserPrompt, "", 0, func(ctx context.Context, hc Context) (Action, error) {
		return Reprompt("try again"), nil
	}))
	_, err := NewExecutor(reg).Run(context.Background(), Context{Event: EventUserPrompt})
	require.Error(t, err)
}

func TestClear_RemovesAllBindings(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(EventUserPrompt, "", 0, func(ctx context.Context, hc Context) (Action, error) {
		return Halt("x"), nil
	}))
	reg.Clear()
	action, err := NewExecutor(reg).Run(context.Background(), Context{Event: EventUserPrompt})
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, action.Kind)
}
