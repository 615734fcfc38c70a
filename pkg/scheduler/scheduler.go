// Package scheduler implements the cooperative, single-threaded-per-execute
// scheduling model: a barrier-with-timeout around execute()/ask(), and the
// global/per-agent semaphores that bound concurrent LLM calls and tool
// fan-out. It is grounded on the teacher's errgroup-based parallel workflow
// executor, generalized from a fixed parallel-branch barrier into a general
// timeout-bounded barrier reusable by both the swarm orchestrator and the
// workflow driver.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// Handle is the external view of a running execution: Stop() requests
// cooperative cancellation, Wait() blocks until the execution finishes and
// returns (nil, nil) if it was cancelled rather than an error (§5, §7g).
type Handle struct {
	done   chan struct{}
	mu     sync.Mutex
	result any
	err    error
	cancel context.CancelFunc
	cancelled bool
}

// Stop requests cooperative cancellation. It is safe to call multiple times
// and safe to call after the execution has already finished.
func (h *Handle) Stop() {
	select {
	case <-h.done:
		return // already finished: keep its result
	default:
	}
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

// Wait blocks until the execution completes. It returns (nil, nil) if the
// execution was cancelled via Stop before completing on its own.
func (h *Handle) Wait() (any, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return nil, nil
	}
	return h.result, h.err
}

// Run executes fn under a barrier-with-timeout: fn's context is cancelled
// when timeout elapses, and Run converts that specific cancellation into a
// *swarmerrors.TimeoutError tagged with scope. Cleanup performed by fn via
// defer still runs, since fn observes ctx.Done() cooperatively rather than
// being forcibly killed. Run returns the Handle immediately; the caller
// chooses whether to block on Wait() (wait=true in workflow terms) or
// return the handle to the caller (wait=false).
func Run(ctx context.Context, timeout context.Context, scope swarmerrors.TimeoutScope, fn func(ctx context.Context) (any, error)) *Handle {
	childCtx, cancel := context.WithCancel(ctx)
	h := &Handle{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(h.done)
		resultCh := make(chan struct {
			res any
			err error
		}, 1)

		go func() {
			res, err := fn(childCtx)
			resultCh <- struct {
				res any
				err error
			}{res, err}
		}()

		select {
		case r := <-resultCh:
			h.mu.Lock()
			h.result, h.err = r.res, r.err
			h.mu.Unlock()
		case <-timeout.Done():
			cancel() // propagate cancellation to fn so its cleanup runs
			<-resultCh // wait for fn's cleanup to observe cancellation and return
			h.mu.Lock()
			h.err = swarmerrors.NewTimeoutError(scope, nil)
			h.mu.Unlock()
		case <-childCtx.Done():
			// Stop() was called externally; still wait for fn's cleanup to
			// observe the cancellation and return before Wait() unblocks, so
			// no background task from this execution outlives it.
			<-resultCh
		}
	}()

	return h
}

// Semaphores bundles the global (all LLM calls) and per-agent (tool
// fan-out) concurrency limiters described in §5. Weighted semaphores from
// golang.org/x/sync are fiber/task-safe and release cleanly from deferred
// calls on every path, including timeout cancellation.
type Semaphores struct {
	Global   *semaphore.Weighted
	perAgent sync.Map // agent name -> *semaphore.Weighted
	perAgentLimit int64
}

// NewSemaphores builds the process-wide bound (globalLimit, default 50) and
// the per-agent fan-out bound applied lazily per agent (perAgentLimit,
// default 10).
func NewSemaphores(globalLimit, perAgentLimit int64) *Semaphores {
	if globalLimit <= 0 {
		globalLimit = 50
	}
	if perAgentLimit <= 0 {
		perAgentLimit = 10
	}
	return &Semaphores{
		Global:        semaphore.NewWeighted(globalLimit),
		perAgentLimit: perAgentLimit,
	}
}

// ForAgent returns (creating if necessary) the per-agent tool fan-out
// semaphore for name.
func (s *Semaphores) ForAgent(name string) *semaphore.Weighted {
	if sem, ok := s.perAgent.Load(name); ok {
		return sem.(*semaphore.Weighted)
	}
	sem := semaphore.NewWeighted(s.perAgentLimit)
	actual, _ := s.perAgent.LoadOrStore(name, sem)
	return actual.(*semaphore.Weighted)
}
