// Package toolregistry implements the per-agent, source-tagged tool table:
// builtin/delegation/mcp/plugin entries, lazy MCP schema loading, and the
// skill-driven activation step that runs before every LLM request. It is
// grounded on the teacher's ToolRegistry (source-tagged entries over a
// generic BaseRegistry, OTel-wrapped ExecuteTool), adapted from a
// config-driven multi-source builder into the swarm runtime's narrower
// per-agent registry.
package toolregistry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agentmesh/swarmkit/pkg/observability"
	"github.com/agentmesh/swarmkit/pkg/registry"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// Source tags where a tool entry came from.
type Source string

const (
	SourceBuiltin    Source = "builtin"
	SourceDelegation Source = "delegation"
	SourceMCP        Source = "mcp"
	SourcePlugin     Source = "plugin"
)

// ParameterSchema describes one named parameter a tool accepts.
type ParameterSchema struct {
	Type        string
	Description string
	Required    bool
}

// Tool is the interface every tool body satisfies, whether builtin,
// delegation, mcp-backed, or plugin-contributed (§6).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]ParameterSchema
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Entry is one registered tool plus its provenance.
type Entry struct {
	Tool      Tool
	Source    Source
	Removable bool
}

// ToolRegistryError reports registry-level failures (duplicate name,
// builtin collision, unknown tool), matching the project's per-package
// <Name>Error convention.
type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *ToolRegistryError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Component, e.Action, e.Message)
}

func (e *ToolRegistryError) Unwrap() error { return e.Err }

func newRegistryErr(action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{Component: "toolregistry", Action: action, Message: message, Err: err, Timestamp: time.Now()}
}

// Registry is a per-agent tool table. It wraps the generic BaseRegistry so
// it gets thread-safe register/get/list/remove for free.
type Registry struct {
	base *registry.BaseRegistry[Entry]

	// activeNames, when non-nil, restricts the set of activatable tools a
	// skill has enabled; removable=false tools are always active regardless.
	activeNames map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Entry]()}
}

// nameSuffixPattern matches a trailing "Tool" suffix on a Go type name's
// final path component, e.g. "WeatherTool" -> "Weather" (§4.4).
var nameSuffixPattern = regexp.MustCompile(`Tool$`)

// InferName derives a tool's registered name from a Go type name when the
// tool does not declare one explicitly.
func InferName(typeName string) string {
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		typeName = typeName[idx+1:]
	}
	return nameSuffixPattern.ReplaceAllString(typeName, "")
}

// Register adds tool under source. Custom tools (source delegation/mcp/
// plugin) cannot override a builtin name; builtins register first in
// practice, but this is still enforced defensively.
func (r *Registry) Register(tool Tool, source Source, removable bool) error {
	name := tool.Name()
	if existing, ok := r.base.Get(name); ok && existing.Source == SourceBuiltin && source != SourceBuiltin {
		return newRegistryErr("register", fmt.Sprintf("tool %q collides with a builtin", name), nil)
	}
	if err := r.base.Register(name, Entry{Tool: tool, Source: source, Removable: removable}); err != nil {
		return newRegistryErr("register", err.Error(), err)
	}
	return nil
}

// Remove deregisters a tool, refusing to remove non-removable entries.
func (r *Registry) Remove(name string) error {
	entry, ok := r.base.Get(name)
	if !ok {
		return newRegistryErr("remove", fmt.Sprintf("tool %q not found", name), nil)
	}
	if !entry.Removable {
		return newRegistryErr("remove", fmt.Sprintf("tool %q is not removable", name), nil)
	}
	if err := r.base.Remove(name); err != nil {
		return newRegistryErr("remove", err.Error(), err)
	}
	return nil
}

func (r *Registry) Get(name string) (Entry, bool) {
	return r.base.Get(name)
}

func (r *Registry) List() []Entry {
	return r.base.List()
}

// SetActiveSkillTools restricts the activatable set to names (plus every
// removable=false tool). Passing nil clears the restriction (all tools
// active).
func (r *Registry) SetActiveSkillTools(names []string) {
	if names == nil {
		r.activeNames = nil
		return
	}
	active := make(map[string]bool, len(names))
	for _, n := range names {
		active[strings.TrimSpace(n)] = true
	}
	r.activeNames = active
}

// ActiveTools computes the set presented to the provider for the next LLM
// request, honoring the current skill restriction (§4.4).
func (r *Registry) ActiveTools() []Entry {
	all := r.base.List()
	if r.activeNames == nil {
		return all
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if !e.Removable || r.activeNames[e.Tool.Name()] {
			out = append(out, e)
		}
	}
	return out
}

// Execute runs a tool by name, wrapping the call in an OTel span and
// recording Prometheus metrics, matching the teacher's ExecuteTool. The
// event log itself remains the source of truth for reconstruction; this
// span/metric pair is a best-effort secondary projection (§3.A).
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	entry, ok := r.base.Get(name)
	if !ok {
		return "", newRegistryErr("execute", fmt.Sprintf("tool %q not registered", name), nil)
	}

	tracer := observability.GetTracer("swarmkit.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution)
	defer span.End()

	start := time.Now()
	result, err := entry.Tool.Execute(ctx, params)
	duration := time.Since(start)

	metrics := observability.GetGlobalMetrics()
	metrics.RecordToolCall(name, duration)
	if err != nil {
		metrics.RecordToolError(name, classifyToolError(err))
	}
	return result, err
}

func classifyToolError(err error) string {
	var perr *swarmerrors.PermissionDeniedError
	if e, ok := err.(*swarmerrors.PermissionDeniedError); ok {
		perr = e
		return fmt.Sprintf("permission_denied:%s", perr.ToolName)
	}
	return "execution_error"
}
