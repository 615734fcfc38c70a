package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity is the scheduler-local execution/swarm identity every task
// spawned within an execute() must inherit automatically. In Go this
// "scheduler-local storage" is modeled as values carried on context.Context,
// since every suspension point (LLM call, tool call, delegation, MCP RPC)
// already takes a context.
type Identity struct {
	ExecutionID   string
	SwarmID       string
	ParentSwarmID string
}

type identityKey struct{}
type streamKey struct{}

// WithIdentity attaches (or overrides) the scheduler-local identity on ctx.
// Child contexts derived from the result automatically inherit it.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext reads the current scheduler-local identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// NewExecutionID allocates "exec_<swarmID>_<uuid>", per §4.1. Grounded on
// the teacher's own use of google/uuid for its a2a Task/session identifiers,
// generalized here to execution IDs.
func NewExecutionID(swarmID string) string {
	return fmt.Sprintf("exec_%s_%s", swarmID, uuid.NewString())
}

// Subscriber receives every event emitted within the execution scope it was
// registered under. A subscriber must never block the emitter for long and
// must never panic the run; Stream.Emit recovers and swallows subscriber
// failures so a buggy consumer cannot poison the execution (§4.1).
type Subscriber func(Event)

// Stream is a process-wide event emitter with per-execution subscriber
// lists. Lists are created fresh on entry to execute() and discarded on
// exit, so subscriptions never accumulate across runs.
type Stream struct {
	mu          sync.Mutex
	subscribers map[string][]Subscriber // keyed by ExecutionID
}

func NewStream() *Stream {
	return &Stream{subscribers: make(map[string][]Subscriber)}
}

// WithSubscriptions creates a fresh subscriber list scoped to executionID
// and returns a context carrying both the list handle and a cleanup func.
// Callers attach this at the top of execute(); the outermost execute is
// responsible for calling the returned cleanup once the run completes.
func (s *Stream) WithSubscriptions(ctx context.Context, executionID string) (context.Context, func()) {
	s.mu.Lock()
	s.subscribers[executionID] = nil
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		delete(s.subscribers, executionID)
		s.mu.Unlock()
	}
	return context.WithValue(ctx, streamKey{}, s), cleanup
}

// Subscribe registers a subscriber for the execution identified by ctx's
// scheduler-local identity. Returns an error if ctx carries no identity.
func (s *Stream) Subscribe(ctx context.Context, sub Subscriber) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return fmt.Errorf("eventlog: context carries no execution identity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id.ExecutionID] = append(s.subscribers[id.ExecutionID], sub)
	return nil
}

// Emit fills in timestamp/execution_id/swarm_id/parent_swarm_id from ctx (if
// absent) and delivers the event to every subscriber registered for the
// execution. Emit is non-blocking with respect to the caller's control flow:
// it runs subscribers synchronously but shields the caller from subscriber
// panics or errors.
func (s *Stream) Emit(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if id, ok := IdentityFromContext(ctx); ok {
		if evt.ExecutionID == "" {
			evt.ExecutionID = id.ExecutionID
		}
		if evt.SwarmID == "" {
			evt.SwarmID = id.SwarmID
		}
		if evt.ParentSwarmID == "" {
			evt.ParentSwarmID = id.ParentSwarmID
		}
	}

	stream, _ := ctx.Value(streamKey{}).(*Stream)
	if stream == nil {
		stream = s
	}

	stream.mu.Lock()
	subs := append([]Subscriber(nil), stream.subscribers[evt.ExecutionID]...)
	stream.mu.Unlock()

	for _, sub := range subs {
		deliver(sub, evt)
	}
}

func deliver(sub Subscriber, evt Event) {
	defer func() {
		_ = recover() // a buggy subscriber must never poison the run
	}()
	sub(evt)
}

// Emitf is a convenience wrapper that builds the Fields map inline.
func (s *Stream) Emitf(ctx context.Context, typ EventType, agent string, fields map[string]any) {
	s.Emit(ctx, Event{Type: typ, Agent: agent, Fields: fields})
}
