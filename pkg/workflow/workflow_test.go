package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/swarm"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

type echoAdapter struct{ prefix string }

func (a *echoAdapter) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	last := req.Messages[len(req.Messages)-1]
	return provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Content: a.prefix + last.Content}}, nil
}
func (a *echoAdapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	panic("not used")
}

func buildTestSwarm(events *eventlog.Stream, name, prefix string) func(ctx context.Context) (*swarm.Swarm, error) {
	return func(ctx context.Context) (*swarm.Swarm, error) {
		inst := agentengine.NewInstance(
			name, agentengine.Definition{Name: name, Model: "gpt-4o-mini"},
			&echoAdapter{prefix: prefix},
			toolregistry.NewRegistry(),
			contextmgr.NewManager(contextmgr.DefaultConfig(100000)),
			hooks.NewExecutor(hooks.NewRegistry()),
			events, scheduler.NewSemaphores(0, 0),
		)
		return swarm.New(swarm.Config{Name: name, LeadAgent: name}, map[string]*agentengine.Instance{name: inst}, events)
	}
}

func TestExecute_TopologicalOrderAndOutputChaining(t *testing.T) {
	events := eventlog.NewStream()
	driver, err := New(Config{
		Name: "pipeline",
		Nodes: []Node{
			{Name: "fetch", BuildSwarm: buildTestSwarm(events, "fetch", "fetched:")},
			{
				Name: "summarize", DependsOn: []string{"fetch"},
				BuildSwarm: buildTestSwarm(events, "summarize", "summary-of:"),
				Input: func(ctx context.Context, tc TransformContext) (TransformResult, error) {
					return Plain(tc.AllResults["fetch"]), nil
				},
			},
		},
	}, events)
	require.NoError(t, err)

	result, err := driver.Execute(context.Background(), "topic")
	require.NoError(t, err)
	assert.False(t, result.Halted)
	assert.Equal(t, "fetched:topic", result.NodeOutput["fetch"])
	assert.Equal(t, "summary-of:fetched:topic", result.Output)
}

func TestExecute_HaltWorkflowStopsEarly(t *testing.T) {
	events := eventlog.NewStream()
	driver, err := New(Config{
		Name: "pipeline",
		Nodes: []Node{
			{
				Name:       "gate",
				BuildSwarm: buildTestSwarm(events, "gate", "unused:"),
				Input: func(ctx context.Context, tc TransformContext) (TransformResult, error) {
					return HaltWorkflow("stopped early"), nil
				},
			},
			{Name: "never", DependsOn: []string{"gate"}, BuildSwarm: buildTestSwarm(events, "never", "unused:")},
		},
	}, events)
	require.NoError(t, err)

	result, err := driver.Execute(context.Background(), "topic")
	require.NoError(t, err)
	assert.True(t, result.Halted)
	assert.Equal(t, "stopped early", result.Output)
	assert.NotContains(t, result.NodeOutput, "never")
}

func TestExecute_ControlSignalRequiresContent(t *testing.T) {
	events := eventlog.NewStream()
	driver, err := New(Config{
		Name: "pipeline",
		Nodes: []Node{
			{
				Name:       "bad",
				BuildSwarm: buildTestSwarm(events, "bad", ""),
				Input: func(ctx context.Context, tc TransformContext) (TransformResult, error) {
					return HaltWorkflow(""), nil
				},
			},
		},
	}, events)
	require.NoError(t, err)

	_, err = driver.Execute(context.Background(), "topic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty content")
}

func TestNew_RejectsUnknownDependency(t *testing.T) {
	_, err := New(Config{Nodes: []Node{{Name: "a", DependsOn: []string{"ghost"}}}}, eventlog.NewStream())
	require.Error(t, err)
}

func TestExecute_StartNodeEntersMidDAGSkippingEarlierNodes(t *testing.T) {
	events := eventlog.NewStream()
	driver, err := New(Config{
		Name:      "pipeline",
		StartNode: "summarize",
		Nodes: []Node{
			{Name: "fetch", BuildSwarm: buildTestSwarm(events, "fetch", "fetched:")},
			{Name: "summarize", DependsOn: []string{"fetch"}, BuildSwarm: buildTestSwarm(events, "summarize", "summary-of:")},
		},
	}, events)
	require.NoError(t, err)

	result, err := driver.Execute(context.Background(), "topic")
	require.NoError(t, err)
	assert.NotContains(t, result.NodeOutput, "fetch")
	assert.Equal(t, "summary-of:topic", result.Output)
}

func TestNew_RejectsUnknownStartNode(t *testing.T) {
	_, err := New(Config{Name: "pipeline", StartNode: "ghost", Nodes: []Node{{Name: "a"}}}, eventlog.NewStream())
	require.Error(t, err)
}

func TestExecute_NodeSwarmInheritsParentExecutionIDAndWorkflowSwarmID(t *testing.T) {
	events := eventlog.NewStream()
	identities := make(map[string]eventlog.Identity)

	wrap := func(name, prefix string) func(ctx context.Context) (*swarm.Swarm, error) {
		inner := buildTestSwarm(events, name, prefix)
		return func(ctx context.Context) (*swarm.Swarm, error) {
			id, _ := eventlog.IdentityFromContext(ctx)
			identities[name] = id
			return inner(ctx)
		}
	}

	driver, err := New(Config{
		Name: "pipeline",
		Nodes: []Node{
			{Name: "fetch", BuildSwarm: wrap("fetch", "fetched:")},
			{Name: "summarize", DependsOn: []string{"fetch"}, BuildSwarm: wrap("summarize", "summary-of:"),
				Input: func(ctx context.Context, tc TransformContext) (TransformResult, error) {
					return Plain(tc.AllResults["fetch"]), nil
				},
			},
		},
	}, events)
	require.NoError(t, err)

	_, err = driver.Execute(context.Background(), "topic")
	require.NoError(t, err)

	require.NotEmpty(t, identities["fetch"].ExecutionID)
	assert.Equal(t, identities["fetch"].ExecutionID, identities["summarize"].ExecutionID)
	assert.Equal(t, "pipeline", identities["fetch"].SwarmID)
}
