package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

func TestRun_ReturnsResultOnCompletion(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h := Run(context.Background(), timeout, swarmerrors.ScopeExecution, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	res, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", res)
}

func TestRun_PropagatesFnError(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	boom := errors.New("boom")
	h := Run(context.Background(), timeout, swarmerrors.ScopeExecution, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	_, err := h.Wait()
	assert.ErrorIs(t, err, boom)
}

func TestRun_TimeoutSurfacesTimeoutError(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	h := Run(context.Background(), timeout, swarmerrors.ScopeTurn, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h.Wait()
	require.Error(t, err)
	var terr *swarmerrors.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, swarmerrors.ScopeTurn, terr.Scope)
}

func TestHandle_StopReturnsNilNilWithoutError(t *testing.T) {
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := make(chan struct{})
	h := Run(context.Background(), timeout, swarmerrors.ScopeExecution, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started
	h.Stop()
	res, err := h.Wait()
	assert.Nil(t, res)
	assert.NoError(t, err)
}

func TestSemaphores_ForAgentIsPerAgentAndStable(t *testing.T) {
	s := NewSemaphores(0, 0)
	a := s.ForAgent("agent-a")
	b := s.ForAgent("agent-b")
	again := s.ForAgent("agent-a")
	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
}
