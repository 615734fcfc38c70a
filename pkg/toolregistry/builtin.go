package toolregistry

import (
	"context"
	"fmt"
	"sync"
)

// builtinTool is the shared scaffold every builtin tool embeds.
type builtinTool struct {
	name        string
	description string
	params      map[string]ParameterSchema
}

func (t builtinTool) Name() string                             { return t.name }
func (t builtinTool) Description() string                      { return t.description }
func (t builtinTool) Parameters() map[string]ParameterSchema { return t.params }

// ThinkTool lets an agent externalize a reasoning step without taking any
// action; always removable=false (§4.4).
type ThinkTool struct{ builtinTool }

func NewThinkTool() *ThinkTool {
	return &ThinkTool{builtinTool{
		name:        "Think",
		description: "Record a reasoning step without performing any action.",
		params: map[string]ParameterSchema{
			"thought": {Type: "string", Description: "The reasoning to record.", Required: true},
		},
	}}
}

func (t *ThinkTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	thought, _ := params["thought"].(string)
	return thought, nil
}

// ClockTool reports the current time, letting an agent reason about
// deadlines without depending on the host's wall clock being in its
// training data.
type ClockTool struct {
	builtinTool
	now func() string
}

func NewClockTool(now func() string) *ClockTool {
	return &ClockTool{builtinTool: builtinTool{name: "Clock", description: "Return the current wall-clock time."}, now: now}
}

func (t *ClockTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.now(), nil
}

// TodoItem is one entry in an agent's private todo list.
type TodoItem struct {
	Content string
	Done    bool
}

// TodoWriteTool maintains a per-agent-instance todo list. Its AllComplete
// method is the convergence check a chain-of-thought-style reasoning loop
// can poll to decide whether to keep iterating (§4.4.A).
type TodoWriteTool struct {
	builtinTool
	mu    sync.Mutex
	items []TodoItem
}

func NewTodoWriteTool() *TodoWriteTool {
	return &TodoWriteTool{builtinTool: builtinTool{
		name:        "TodoWrite",
		description: "Replace the current todo list with the given items.",
		params: map[string]ParameterSchema{
			"items": {Type: "array", Description: "The full todo list, replacing any previous one.", Required: true},
		},
	}}
}

func (t *TodoWriteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	raw, _ := params["items"].([]any)
	items := make([]TodoItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		done, _ := m["done"].(bool)
		items = append(items, TodoItem{Content: content, Done: done})
	}

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()

	return fmt.Sprintf("todo list updated (%d items)", len(items)), nil
}

// AllComplete reports whether the list is non-empty and every item is done,
// the convergence signal a reasoning loop polls before stopping.
func (t *TodoWriteTool) AllComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return false
	}
	for _, item := range t.items {
		if !item.Done {
			return false
		}
	}
	return true
}

func (t *TodoWriteTool) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items) == 0
}

// SkillLoader resolves a named skill to its restricted toolset and
// front-matter permissions. With a nil loader, LoadSkill returns a
// "no skill loader configured" error.
type SkillLoader interface {
	Load(name string) (allowedTools []string, ok bool)
}

// LoadSkillTool activates a named skill, restricting the registry's active
// toolset to the skill's declared front-matter list (§4.4).
type LoadSkillTool struct {
	builtinTool
	registry *Registry
	loader   SkillLoader
}

func NewLoadSkillTool(registry *Registry, loader SkillLoader) *LoadSkillTool {
	return &LoadSkillTool{
		builtinTool: builtinTool{
			name:        "LoadSkill",
			description: "Load a named skill, restricting the active toolset to the skill's declared list.",
			params: map[string]ParameterSchema{
				"name": {Type: "string", Description: "The skill to load.", Required: true},
			},
		},
		registry: registry,
		loader:   loader,
	}
}

func (t *LoadSkillTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	name, _ := params["name"].(string)
	if t.loader == nil {
		return "", fmt.Errorf("no skill loader configured")
	}
	tools, ok := t.loader.Load(name)
	if !ok {
		return "", fmt.Errorf("skill %q not found", name)
	}
	t.registry.SetActiveSkillTools(tools)
	return fmt.Sprintf("skill %q loaded, %d tools active", name, len(tools)), nil
}

// RegisterBuiltins registers the four always-active builtin tools (§4.4.A).
// Callers register file/search/shell stubs separately via RegisterStub,
// since those are deliberately out of scope bodies that only exist to
// exercise the permission wrapper and rerunnable-tool classification.
func RegisterBuiltins(r *Registry, now func() string, loader SkillLoader) (*TodoWriteTool, error) {
	todo := NewTodoWriteTool()
	for _, tool := range []Tool{NewThinkTool(), NewClockTool(now), todo} {
		if err := r.Register(tool, SourceBuiltin, false); err != nil {
			return nil, err
		}
	}
	if err := r.Register(NewLoadSkillTool(r, loader), SourceBuiltin, false); err != nil {
		return nil, err
	}
	return todo, nil
}
