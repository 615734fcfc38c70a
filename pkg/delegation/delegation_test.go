package delegation

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

type stubAdapter struct{ reply string }

func (a *stubAdapter) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	return provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Content: a.reply}}, nil
}
func (a *stubAdapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	panic("not used")
}

func newTestInstance(name, reply string) *agentengine.Instance {
	return agentengine.NewInstance(
		name,
		agentengine.Definition{Name: name},
		&stubAdapter{reply: reply},
		toolregistry.NewRegistry(),
		contextmgr.NewManager(contextmgr.DefaultConfig(100000)),
		hooks.NewExecutor(hooks.NewRegistry()),
		eventlog.NewStream(),
		scheduler.NewSemaphores(0, 0),
	)
}

func TestIsolatedDelegation_LazilyCreatesPerDelegatorInstance(t *testing.T) {
	var calls int32
	factory := func(instanceName, baseAgent string) (*agentengine.Instance, error) {
		atomic.AddInt32(&calls, 1)
		return newTestInstance(instanceName, "handled: "+baseAgent), nil
	}

	tool, err := NewTool("parent", nil, agentengine.DelegationTarget{Agent: "researcher"}, factory, eventlog.NewStream())
	require.NoError(t, err)
	assert.Equal(t, "WorkWithresearcher", tool.Name())

	ctx := context.Background()
	out, err := tool.Execute(ctx, map[string]any{"prompt": "find X"})
	require.NoError(t, err)
	assert.Equal(t, "handled: researcher", out)

	_, err = tool.Execute(ctx, map[string]any{"prompt": "find Y"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls, "second call must reuse the lazily created instance")
}

func TestCycleDetectedAtConstruction(t *testing.T) {
	factory := func(instanceName, baseAgent string) (*agentengine.Instance, error) {
		return newTestInstance(instanceName, ""), nil
	}
	_, err := NewTool("a", []string{"b", "c"}, agentengine.DelegationTarget{Agent: "c"}, factory, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestSharedDelegation_EagerlyCreatedAtConstruction(t *testing.T) {
	var calls int32
	factory := func(instanceName, baseAgent string) (*agentengine.Instance, error) {
		atomic.AddInt32(&calls, 1)
		return newTestInstance(instanceName, "shared-reply"), nil
	}

	tool, err := NewTool("parent", nil, agentengine.DelegationTarget{Agent: "writer", PreserveContext: true}, factory, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls, "shared instance must be built during NewTool, not on first Execute")

	_, err = tool.Execute(context.Background(), map[string]any{"prompt": "p1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls, "Execute must reuse the eagerly created shared instance")
}

func TestSharedDelegation_ReusesOneInstanceAcrossCalls(t *testing.T) {
	factory := func(instanceName, baseAgent string) (*agentengine.Instance, error) {
		return newTestInstance(instanceName, "shared-reply"), nil
	}
	tool, err := NewTool("parent", nil, agentengine.DelegationTarget{Agent: "writer", PreserveContext: true}, factory, nil)
	require.NoError(t, err)

	ctx := context.Background()
	out1, err := tool.Execute(ctx, map[string]any{"prompt": "p1"})
	require.NoError(t, err)
	out2, err := tool.Execute(ctx, map[string]any{"prompt": "p2"})
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}
