package builder

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/config"
	"github.com/agentmesh/swarmkit/pkg/provider"
)

type echoAdapter struct{ reply string }

func (a *echoAdapter) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	return provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Content: a.reply}}, nil
}
func (a *echoAdapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	panic("not used")
}

func stubAdapters(a config.AgentConfig) (provider.Adapter, error) {
	return &echoAdapter{reply: "handled-by-" + a.Name}, nil
}

func TestBuildSwarm_IsolatedDelegationProducesPerDelegatorChainInstances(t *testing.T) {
	doc := config.Document{
		Swarm: &config.SwarmConfig{
			Name: "support", LeadAgent: "frontend", ExecutionTimeout: "1800s", TurnTimeout: "1800s",
			Agents: []config.AgentConfig{
				{Name: "frontend", Model: "gpt-4o-mini", Delegations: []config.DelegationConfig{{Agent: "tester"}}},
				{Name: "backend", Model: "gpt-4o-mini", Delegations: []config.DelegationConfig{{Agent: "tester"}}},
				{Name: "tester", Model: "gpt-4o-mini"},
			},
		},
	}

	b := New(stubAdapters)
	sw, err := b.BuildSwarm(doc)
	require.NoError(t, err)
	require.Contains(t, sw.Agents(), "frontend")
	require.Contains(t, sw.Agents(), "backend")
	require.Contains(t, sw.Agents(), "tester")

	frontendEntry, ok := sw.Agents()["frontend"].Tools.Get("WorkWithtester")
	require.True(t, ok)
	backendEntry, ok := sw.Agents()["backend"].Tools.Get("WorkWithtester")
	require.True(t, ok)

	out, err := frontendEntry.Tool.Execute(context.Background(), map[string]any{"prompt": "check it"})
	require.NoError(t, err)
	assert.Equal(t, "handled-by-tester", out)

	out, err = backendEntry.Tool.Execute(context.Background(), map[string]any{"prompt": "check it too"})
	require.NoError(t, err)
	assert.Equal(t, "handled-by-tester", out)
}

func TestBuildSwarm_RejectsMissingSwarmSection(t *testing.T) {
	b := New(stubAdapters)
	_, err := b.BuildSwarm(config.Document{})
	require.Error(t, err)
}

func TestBuildWorkflow_WiresNodesIntoADriver(t *testing.T) {
	doc := config.Document{
		Workflow: &config.WorkflowConfig{
			Name: "review-loop", StartNode: "review",
			Agents: []config.AgentConfig{{Name: "reviewer", Model: "gpt-4o-mini"}},
			Nodes: []config.WorkflowNodeConfig{
				{Name: "review", Agents: []string{"reviewer"}},
			},
		},
	}

	b := New(stubAdapters)
	driver, err := b.BuildWorkflow(doc)
	require.NoError(t, err)

	result, err := driver.Execute(context.Background(), "ship it")
	require.NoError(t, err)
	assert.Equal(t, "handled-by-reviewer", result.Output)
}

func TestBuildNodeSwarm_NonResetNodeCachesAcrossRevisits(t *testing.T) {
	b := New(stubAdapters)
	agentsByName := map[string]config.AgentConfig{
		"reviewer": {Name: "reviewer", Model: "gpt-4o-mini"},
	}

	var cacheMu sync.Mutex
	cache := make(map[string]*agentengine.Instance)
	wired := make(map[string]bool)
	resolveCached := func(name string) (*agentengine.Instance, error) {
		cacheMu.Lock()
		defer cacheMu.Unlock()
		if inst, ok := cache[name]; ok {
			return inst, nil
		}
		a := agentsByName[name]
		inst, reg, err := b.newInstance(name, a)
		if err != nil {
			return nil, err
		}
		if err := b.wireAgentDelegations(name, a, reg, agentsByName, wired); err != nil {
			return nil, err
		}
		cache[name] = inst
		return inst, nil
	}

	node := config.WorkflowNodeConfig{Name: "review", Agents: []string{"reviewer"}, ResetContext: false}
	buildSwarm := b.buildNodeSwarm(node, agentsByName, resolveCached)

	sw1, err := buildSwarm(context.Background())
	require.NoError(t, err)
	sw2, err := buildSwarm(context.Background())
	require.NoError(t, err)
	assert.Same(t, sw1, sw2, "a non-reset node must return the exact same swarm across revisits")
}

func TestBuildNodeSwarm_ResetNodeRebuildsEveryCall(t *testing.T) {
	b := New(stubAdapters)
	agentsByName := map[string]config.AgentConfig{
		"reviewer": {Name: "reviewer", Model: "gpt-4o-mini"},
	}
	resolveCached := func(name string) (*agentengine.Instance, error) {
		t.Fatal("reset_context=true nodes must not consult the shared cache")
		return nil, nil
	}

	node := config.WorkflowNodeConfig{Name: "review", Agents: []string{"reviewer"}, ResetContext: true}
	buildSwarm := b.buildNodeSwarm(node, agentsByName, resolveCached)

	sw1, err := buildSwarm(context.Background())
	require.NoError(t, err)
	sw2, err := buildSwarm(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, sw1, sw2)
}
