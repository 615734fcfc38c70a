package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/agentengine"
	"github.com/agentmesh/swarmkit/pkg/contextmgr"
	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/hooks"
	"github.com/agentmesh/swarmkit/pkg/provider"
	"github.com/agentmesh/swarmkit/pkg/scheduler"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

type instantAdapter struct{ delay time.Duration }

func (a *instantAdapter) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return provider.Response{}, ctx.Err()
		}
	}
	return provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Content: "done", InputTokens: 10, OutputTokens: 5}}, nil
}
func (a *instantAdapter) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	panic("not used")
}

func newLead(name string, adapter provider.Adapter) *agentengine.Instance {
	return agentengine.NewInstance(
		name,
		agentengine.Definition{Name: name, Model: "gpt-4o-mini"},
		adapter,
		toolregistry.NewRegistry(),
		contextmgr.NewManager(contextmgr.DefaultConfig(100000)),
		hooks.NewExecutor(hooks.NewRegistry()),
		eventlog.NewStream(),
		scheduler.NewSemaphores(0, 0),
	)
}

func TestExecute_ReturnsLeadResult(t *testing.T) {
	events := eventlog.NewStream()
	lead := newLead("lead", &instantAdapter{})
	lead.Events = events

	sw, err := New(Config{Name: "demo", LeadAgent: "lead"}, map[string]*agentengine.Instance{"lead": lead}, events)
	require.NoError(t, err)

	result, err := sw.Execute(context.Background(), "hello", true)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Message.Content)
}

func TestExecute_ExecutionTimeoutSurfacesTimeoutError(t *testing.T) {
	events := eventlog.NewStream()
	lead := newLead("lead", &instantAdapter{delay: 200 * time.Millisecond})
	lead.Events = events

	sw, err := New(Config{Name: "demo", LeadAgent: "lead", ExecutionTimeout: 20 * time.Millisecond}, map[string]*agentengine.Instance{"lead": lead}, events)
	require.NoError(t, err)

	_, err = sw.Execute(context.Background(), "hello", true)
	require.Error(t, err)
	var terr *swarmerrors.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, swarmerrors.ScopeExecution, terr.Scope)
}

func TestNew_RejectsAgentNameWithAt(t *testing.T) {
	events := eventlog.NewStream()
	lead := newLead("lead", &instantAdapter{})
	other := newLead("a@b", &instantAdapter{})
	_, err := New(Config{Name: "demo", LeadAgent: "lead"}, map[string]*agentengine.Instance{"lead": lead, "a@b": other}, events)
	require.Error(t, err)
}

func TestNew_RejectsUnknownLeadAgent(t *testing.T) {
	events := eventlog.NewStream()
	other := newLead("other", &instantAdapter{})
	_, err := New(Config{Name: "demo", LeadAgent: "lead"}, map[string]*agentengine.Instance{"other": other}, events)
	require.Error(t, err)
}

func TestSnapshotAndRestore_RoundTripsMessages(t *testing.T) {
	events := eventlog.NewStream()
	lead := newLead("lead", &instantAdapter{})
	sw, err := New(Config{Name: "demo", LeadAgent: "lead"}, map[string]*agentengine.Instance{"lead": lead}, events)
	require.NoError(t, err)

	_, err = sw.Execute(context.Background(), "hello", true)
	require.NoError(t, err)

	snap := sw.Snapshot(map[string]*agentengine.Instance{"lead": lead})
	assert.Equal(t, "demo", snap.SwarmID)
	require.Contains(t, snap.Agents, "lead")

	fresh := newLead("lead", &instantAdapter{})
	applied := Restore(snap, map[string]*agentengine.Instance{"lead": fresh}, false)
	assert.Equal(t, []string{"lead"}, applied)
	assert.Equal(t, lead.Messages(), fresh.Messages())
}

func TestRestore_SkipsAgentsAbsentFromCurrentTopology(t *testing.T) {
	snap := Snapshot{Version: 1, SwarmID: "demo", Agents: map[string]agentengine.InstanceState{
		"ghost": {},
	}}
	applied := Restore(snap, map[string]*agentengine.Instance{}, false)
	assert.Empty(t, applied)
}
