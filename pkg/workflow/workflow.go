// Package workflow implements the Workflow Driver (§4.9): a DAG of nodes,
// each executed as a mini-swarm in topological order, with input/output
// transformers and typed control-flow signals. Grounded on the teacher's
// DAG executor (ExecutionContext carrying a shared results map and shared
// state map, per-node error accumulation); autonomous/goal-driven execution
// is dropped as out of scope (§4.9.A).
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/swarm"
)

// WorkflowError follows the project's per-package <Name>Error convention (§7).
type WorkflowError struct {
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Message)
}
func (e *WorkflowError) Unwrap() error { return e.Err }

func newErr(op, msg string, err error) *WorkflowError {
	return &WorkflowError{Component: "workflow", Operation: op, Message: msg, Err: err, Timestamp: time.Now()}
}

// TransformContext is passed to input/output transformers (§4.9).
type TransformContext struct {
	Content         string
	OriginalPrompt  string
	AllResults      map[string]string // node name -> its output content
	NodeName        string
	Dependencies    []string
}

// Signal is the sentinel kind a transformer's return value carries. The
// zero value (SignalNone) means "just the transformed content, keep going".
type Signal int

const (
	SignalNone Signal = iota
	SignalGoto
	SignalHalt
	SignalSkip
)

// TransformResult is a transformer's return value: either plain transformed
// content (Signal == SignalNone) or one of the three control-flow sentinels,
// each of which requires non-empty Content (§4.9 "All three require
// non-null content and raise a precise error otherwise").
type TransformResult struct {
	Signal  Signal
	Content string
	Target  string // node name, only meaningful for SignalGoto
}

// GotoNode builds a goto_node(name, content) signal.
func GotoNode(name, content string) TransformResult {
	return TransformResult{Signal: SignalGoto, Target: name, Content: content}
}

// HaltWorkflow builds a halt_workflow(content) signal.
func HaltWorkflow(content string) TransformResult {
	return TransformResult{Signal: SignalHalt, Content: content}
}

// SkipExecution builds a skip_execution(content) signal, valid only from an
// input transformer (§4.9).
func SkipExecution(content string) TransformResult {
	return TransformResult{Signal: SignalSkip, Content: content}
}

// Plain wraps ordinary transformed content with no control-flow signal.
func Plain(content string) TransformResult {
	return TransformResult{Content: content}
}

func (r TransformResult) validate(op string) error {
	if r.Signal != SignalNone && r.Content == "" {
		return newErr(op, fmt.Sprintf("control signal %v requires non-empty content", r.Signal), nil)
	}
	return nil
}

// Transformer is a callable transform step; its early return only exits the
// transformer itself, never the host process (§4.9).
type Transformer func(ctx context.Context, tc TransformContext) (TransformResult, error)

// Node is one DAG node: an agent list built into a mini-swarm, its
// dependencies, and optional input/output transformers.
type Node struct {
	Name         string
	DependsOn    []string
	BuildSwarm   func(ctx context.Context) (*swarm.Swarm, error) // built per-execution so reset_context/overrides apply fresh
	Input        Transformer
	Output       Transformer
	ResetContext bool
}

// Config is the full workflow definition: its name (used to build
// swarm_id = "<workflow>/node:<name>" per node), its node set, and the node
// execution enters at. StartNode may be empty, in which case execution
// enters at the first node in topological order.
type Config struct {
	Name      string
	StartNode string
	Nodes     []Node
}

// Result is what Execute returns: the final output content, the per-node
// output map, and whether the run was halted early.
type Result struct {
	Output     string
	NodeOutput map[string]string
	Halted     bool
}

// Driver runs one workflow definition.
type Driver struct {
	cfg    Config
	idx    map[string]Node
	events *eventlog.Stream
}

// New validates the DAG and builds a driver. events establishes the
// workflow's own execution scope (§4.1/§4.9): when Execute is itself called
// inside an existing execution (a workflow nested in another workflow's
// node, however unusual), the parent's execution_id is inherited instead.
func New(cfg Config, events *eventlog.Stream) (*Driver, error) {
	idx := make(map[string]Node, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if n.Name == "" {
			return nil, newErr("construct", "node name must not be empty", nil)
		}
		idx[n.Name] = n
	}
	for _, n := range cfg.Nodes {
		for _, dep := range n.DependsOn {
			if _, ok := idx[dep]; !ok {
				return nil, newErr("construct", fmt.Sprintf("node %q depends on unknown node %q", n.Name, dep), nil)
			}
		}
	}
	if cfg.StartNode != "" {
		if _, ok := idx[cfg.StartNode]; !ok {
			return nil, newErr("construct", fmt.Sprintf("start node %q is not a node in this workflow", cfg.StartNode), nil)
		}
	}
	return &Driver{cfg: cfg, idx: idx, events: events}, nil
}

// Execute runs the DAG in topological order starting from order (computed
// by TopologicalOrder), honoring goto/halt/skip control-flow signals
// (§4.9). originalPrompt seeds TransformContext.OriginalPrompt for every
// node.
func (d *Driver) Execute(ctx context.Context, originalPrompt string) (Result, error) {
	order, err := TopologicalOrder(d.cfg.Nodes)
	if err != nil {
		return Result{}, err
	}

	parent, hasParent := eventlog.IdentityFromContext(ctx)
	executionID := parent.ExecutionID
	isNewExecution := !hasParent || executionID == ""
	if isNewExecution {
		executionID = eventlog.NewExecutionID(d.cfg.Name)
	}
	ctx = eventlog.WithIdentity(ctx, eventlog.Identity{
		ExecutionID: executionID, SwarmID: d.cfg.Name, ParentSwarmID: parent.SwarmID,
	})
	if isNewExecution {
		var cleanup func()
		ctx, cleanup = d.events.WithSubscriptions(ctx, executionID)
		defer cleanup()
	}

	allResults := make(map[string]string)
	var lastOutput string

	pos := 0
	if d.cfg.StartNode != "" {
		start, ok := indexOf(order, d.cfg.StartNode)
		if !ok {
			return Result{}, newErr("execute", fmt.Sprintf("start node %q is not a node in this workflow", d.cfg.StartNode), nil)
		}
		pos = start
	}
	for pos < len(order) {
		name := order[pos]
		node := d.idx[name]

		content := originalPrompt
		skip := false

		if node.Input != nil {
			tc := TransformContext{
				Content: content, OriginalPrompt: originalPrompt, AllResults: allResults,
				NodeName: name, Dependencies: node.DependsOn,
			}
			res, err := node.Input(ctx, tc)
			if err != nil {
				return Result{}, err
			}
			if verr := res.validate("input_transform"); verr != nil {
				return Result{}, verr
			}
			switch res.Signal {
			case SignalHalt:
				return Result{Output: res.Content, NodeOutput: allResults, Halted: true}, nil
			case SignalGoto:
				target, ok := indexOf(order, res.Target)
				if !ok {
					return Result{}, newErr("execute", fmt.Sprintf("goto target %q is not a node in this workflow", res.Target), nil)
				}
				pos = target
				continue
			case SignalSkip:
				allResults[name] = res.Content
				lastOutput = res.Content
				skip = true
			default:
				content = res.Content
			}
		}

		if !skip {
			sw, err := node.BuildSwarm(ctx)
			if err != nil {
				return Result{}, err
			}
			sw = sw.ForNode(d.cfg.Name, name)
			assistantResult, err := sw.Execute(ctx, content, false)
			if err != nil {
				return Result{}, err
			}
			output := assistantResult.Message.Content

			if node.Output != nil {
				tc := TransformContext{
					Content: output, OriginalPrompt: originalPrompt, AllResults: allResults,
					NodeName: name, Dependencies: node.DependsOn,
				}
				res, err := node.Output(ctx, tc)
				if err != nil {
					return Result{}, err
				}
				if verr := res.validate("output_transform"); verr != nil {
					return Result{}, verr
				}
				switch res.Signal {
				case SignalHalt:
					return Result{Output: res.Content, NodeOutput: allResults, Halted: true}, nil
				case SignalGoto:
					allResults[name] = res.Content
					target, ok := indexOf(order, res.Target)
					if !ok {
						return Result{}, newErr("execute", fmt.Sprintf("goto target %q is not a node in this workflow", res.Target), nil)
					}
					pos = target
					continue
				default:
					output = res.Content
				}
			}

			allResults[name] = output
			lastOutput = output
		}

		pos++
	}

	return Result{Output: lastOutput, NodeOutput: allResults}, nil
}

func indexOf(order []string, name string) (int, bool) {
	for i, n := range order {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// TopologicalOrder computes a valid execution order from depends_on edges,
// erroring on a cycle.
func TopologicalOrder(nodes []Node) ([]string, error) {
	indeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := indeg[n.Name]; !ok {
			indeg[n.Name] = 0
		}
		for _, dep := range n.DependsOn {
			adj[dep] = append(adj[dep], n.Name)
			indeg[n.Name]++
		}
	}

	var queue []string
	for _, n := range nodes {
		if indeg[n.Name] == 0 {
			queue = append(queue, n.Name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, next := range adj[name] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, newErr("topological_order", "cycle detected in node dependencies", nil)
	}
	return order, nil
}
