// Package hooks implements the ordered, short-circuiting handler chain that
// fires around tool use, LLM requests, and swarm/agent lifecycle events.
package hooks

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Event identifies a hook binding point: swarm-level (swarm_start,
// swarm_stop) and agent-level (pre_tool_use, post_tool_use, user_prompt,
// agent_stop, first_message, pre_delegation, post_delegation,
// context_warning).
type Event string

const (
	EventSwarmStart     Event = "swarm_start"
	EventSwarmStop      Event = "swarm_stop"
	EventPreToolUse     Event = "pre_tool_use"
	EventPostToolUse    Event = "post_tool_use"
	EventUserPrompt     Event = "user_prompt"
	EventAgentStop      Event = "agent_stop"
	EventFirstMessage   Event = "first_message"
	EventPreDelegation  Event = "pre_delegation"
	EventPostDelegation Event = "post_delegation"
	EventContextWarning Event = "context_warning"
)

// ActionKind is the closed set of short-circuiting actions a handler may
// return. The executor chains handlers in priority order and stops at the
// first one that returns anything other than Continue.
type ActionKind string

const (
	ActionContinue     ActionKind = "continue"
	ActionHalt         ActionKind = "halt"
	ActionReplace      ActionKind = "replace"
	ActionReprompt     ActionKind = "reprompt" // only valid from EventSwarmStop
	ActionFinishAgent  ActionKind = "finish_agent"
	ActionFinishSwarm  ActionKind = "finish_swarm"
)

// Action is the value a Handler returns. Message carries the halt/finish
// text; Value carries the replacement for ActionReplace.
type Action struct {
	Kind    ActionKind
	Message string
	Value   any
}

func Continue() Action                 { return Action{Kind: ActionContinue} }
func Halt(message string) Action       { return Action{Kind: ActionHalt, Message: message} }
func Replace(value any) Action         { return Action{Kind: ActionReplace, Value: value} }
func Reprompt(text string) Action      { return Action{Kind: ActionReprompt, Message: text} }
func FinishAgent(message string) Action { return Action{Kind: ActionFinishAgent, Message: message} }
func FinishSwarm(message string) Action { return Action{Kind: ActionFinishSwarm, Message: message} }

// Context is the payload handed to a Handler. ToolName/Arguments are only
// meaningful for pre/post_tool_use; Prompt is only meaningful for
// user_prompt; Result carries a tool's result for post_tool_use.
type Context struct {
	Event     Event
	AgentName string
	ToolName  string
	Arguments map[string]any
	Prompt    string
	Result    string
	Metadata  map[string]any
}

// Handler runs when a bound event fires. It must return quickly; shell
// handlers are wrapped by ShellHandler to enforce isolation and a timeout.
type Handler func(ctx context.Context, hc Context) (Action, error)

type binding struct {
	event    Event
	matcher  *regexp.Regexp // nil matches everything
	priority int
	seq      int // registration order, for stable same-priority ordering
	handler  Handler
}

// Registry holds ordered handler bindings per event. Each NewRegistry value
// is independent; an explicit Clear lets tests isolate runs, matching the
// project's convention of additive-but-clearable registries.
type Registry struct {
	bindings []binding
	seq      int
}

func NewRegistry() *Registry {
	return &Registry{}
}

// CompileMatcher turns a tool-name matcher spec into a regex anchored at
// word boundaries. An empty spec matches everything. Literal names,
// pipe-joined alternatives ("A|B|C"), and raw regex patterns all compile the
// same way: the whole spec is treated as a regex body.
func CompileMatcher(spec string) (*regexp.Regexp, error) {
	if spec == "" {
		return nil, nil
	}
	pattern := fmt.Sprintf(`\b(?:%s)\b`, spec)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("hooks: invalid matcher %q: %w", spec, err)
	}
	return re, nil
}

// Register binds handler to event with an optional matcher spec (only
// consulted for pre_tool_use/post_tool_use) and a priority; higher priority
// runs first, ties broken by registration order.
func (r *Registry) Register(event Event, matcherSpec string, priority int, handler Handler) error {
	matcher, err := CompileMatcher(matcherSpec)
	if err != nil {
		return err
	}
	r.seq++
	r.bindings = append(r.bindings, binding{
		event:    event,
		matcher:  matcher,
		priority: priority,
		seq:      r.seq,
		handler:  handler,
	})
	sort.SliceStable(r.bindings, func(i, j int) bool {
		if r.bindings[i].priority != r.bindings[j].priority {
			return r.bindings[i].priority > r.bindings[j].priority
		}
		return r.bindings[i].seq < r.bindings[j].seq
	})
	return nil
}

// Clear removes every binding, matching the "explicit clear entry point"
// convention required of process-wide registries.
func (r *Registry) Clear() {
	r.bindings = nil
	r.seq = 0
}

func (b binding) matchesTool(toolName string) bool {
	if b.matcher == nil {
		return true
	}
	return b.matcher.MatchString(toolName)
}

// Executor chains the handlers bound to an event in priority order and
// returns the first non-continue action, or Continue() if every handler
// passed through.
type Executor struct {
	registry *Registry
}

func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes every handler bound to hc.Event (filtered by tool matcher for
// the two tool-use events) until one short-circuits.
func (e *Executor) Run(ctx context.Context, hc Context) (Action, error) {
	for _, b := range e.registry.bindings {
		if b.event != hc.Event {
			continue
		}
		if (hc.Event == EventPreToolUse || hc.Event == EventPostToolUse) && !b.matchesTool(hc.ToolName) {
			continue
		}
		action, err := b.handler(ctx, hc)
		if err != nil {
			return Action{}, fmt.Errorf("hooks: handler for %s failed: %w", hc.Event, err)
		}
		if action.Kind == "" {
			action.Kind = ActionContinue
		}
		if action.Kind == ActionReprompt && hc.Event != EventSwarmStop {
			return Action{}, fmt.Errorf("hooks: reprompt action is only valid from %s, got %s", EventSwarmStop, hc.Event)
		}
		if action.Kind != ActionContinue {
			return action, nil
		}
	}
	return Continue(), nil
}

// normalizeToolName lets tool names be passed as either a bare identifier or
// a string without affecting matcher behavior.
func normalizeToolName(name string) string {
	return strings.TrimSpace(name)
}
