// Package mcptools connects to a stdio-transport MCP server and exposes its
// tools through the Tool Registry under the mcp source tag (§4.4). It is
// adapted from the teacher's mcptoolset package: same lazy-connect,
// same mark3labs/mcp-go client/Initialize/ListTools/CallTool sequence,
// narrowed to the stdio transport and wired through toolregistry.Tool and
// eventlog rather than the teacher's own Toolset/CallableTool interfaces.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
	"github.com/agentmesh/swarmkit/pkg/toolregistry"
)

// Config names a single stdio MCP server to connect to.
type Config struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string // empty means expose every tool the server lists
}

// Server lazily connects to one MCP server and exposes its tools as
// toolregistry.Tool values. The connection is established on first Tools()
// call, matching the teacher's lazy-toolset design.
type Server struct {
	cfg    Config
	events *eventlog.Stream

	mu            sync.Mutex
	client        *client.Client
	connected     bool
	tools         []toolregistry.Tool
	schemasLoaded bool
}

func New(cfg Config, events *eventlog.Stream) (*Server, error) {
	if cfg.Command == "" {
		return nil, swarmerrors.NewConfigError("mcptools", "command", "command is required for a stdio MCP server", nil)
	}
	return &Server{cfg: cfg, events: events}, nil
}

// Tools connects (if not already connected) and returns the server's
// filtered tool set, registering each as toolregistry.SourceMCP.
func (s *Server) Tools(ctx context.Context) ([]toolregistry.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}
	return s.tools, nil
}

// connect starts the stdio subprocess and initializes the MCP session.
// When an explicit tool list is configured, it skips the tools/list RPC
// entirely (:optimized mode) and hands back stub tools whose schema is
// filled in lazily on first use; otherwise it issues tools/list up front
// (:discovery mode) the way an unconfigured server must, since there is no
// name list to build stubs from (§4.4).
func (s *Server) connect(ctx context.Context) error {
	mode := "discovery"
	if len(s.cfg.Filter) > 0 {
		mode = "optimized"
	}
	s.events.Emitf(ctx, eventlog.EventMCPServerInitStart, "", map[string]any{"server": s.cfg.Name, "command": s.cfg.Command, "mode": mode})

	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcptools: create client for %q: %w", s.cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcptools: start %q: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "swarmkit", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcptools: initialize %q: %w", s.cfg.Name, err)
	}

	var tools []toolregistry.Tool
	if mode == "optimized" {
		for _, name := range s.cfg.Filter {
			tools = append(tools, &mcpTool{client: mcpClient, name: name, server: s})
		}
	} else {
		listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			mcpClient.Close()
			return fmt.Errorf("mcptools: list tools on %q: %w", s.cfg.Name, err)
		}
		for _, mt := range listResp.Tools {
			tools = append(tools, &mcpTool{
				client:       mcpClient,
				name:         mt.Name,
				desc:         mt.Description,
				params:       convertSchema(mt.InputSchema),
				schemaLoaded: true,
			})
		}
	}

	s.client = mcpClient
	s.tools = tools
	s.connected = true

	s.events.Emitf(ctx, eventlog.EventMCPServerInitComplete, "", map[string]any{"server": s.cfg.Name, "mode": mode, "tool_count": len(tools)})
	return nil
}

// loadSchemas issues the deferred tools/list RPC for a server connected in
// :optimized mode and fills in every stub tool's real schema. It runs at
// most once, on whichever stub tool is used first.
func (s *Server) loadSchemas(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemasLoaded {
		return nil
	}
	listResp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcptools: lazy list tools on %q: %w", s.cfg.Name, err)
	}
	byName := make(map[string]mcp.Tool, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		byName[mt.Name] = mt
	}
	for _, t := range s.tools {
		mt, ok := t.(*mcpTool)
		if !ok {
			continue
		}
		if found, ok := byName[mt.name]; ok {
			mt.desc = found.Description
			mt.params = convertSchema(found.InputSchema)
		}
		mt.schemaLoaded = true
	}
	s.schemasLoaded = true
	return nil
}

// Close releases the underlying subprocess connection, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.connected = false
	s.tools = nil
	return err
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// mcpTool adapts one MCP-listed tool to toolregistry.Tool, routing Execute
// through the owning client's CallTool RPC. A tool created in :optimized
// mode starts with schemaLoaded=false and an empty params map (a
// permissive stub no parameter is marked required against); its first
// Execute call triggers the server's one-time deferred tools/list fetch.
type mcpTool struct {
	client       *client.Client
	name         string
	desc         string
	params       map[string]toolregistry.ParameterSchema
	schemaLoaded bool
	server       *Server
}

func (t *mcpTool) Name() string        { return t.name }
func (t *mcpTool) Description() string { return t.desc }
func (t *mcpTool) Parameters() map[string]toolregistry.ParameterSchema {
	return t.params
}

func (t *mcpTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if !t.schemaLoaded && t.server != nil {
		if err := t.server.loadSchemas(ctx); err != nil {
			return "", err
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = params

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcptools: call %q: %w", t.name, err)
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if resp.IsError {
		if len(texts) > 0 {
			return "", fmt.Errorf("mcptools: tool %q returned an error: %s", t.name, texts[0])
		}
		return "", fmt.Errorf("mcptools: tool %q returned an unspecified error", t.name)
	}
	switch len(texts) {
	case 0:
		return "", nil
	case 1:
		return texts[0], nil
	default:
		out := texts[0]
		for _, extra := range texts[1:] {
			out += "\n" + extra
		}
		return out, nil
	}
}

// convertSchema turns an MCP JSON-schema input shape into the registry's
// flat ParameterSchema map. It round-trips through encoding/json, the same
// way the teacher's convertSchema does, rather than assuming the concrete
// shape of mcp-go's ToolInputSchema fields — only the conventional
// "properties"/"required" JSON-schema keys are read back out.
func convertSchema(schema mcp.ToolInputSchema) map[string]toolregistry.ParameterSchema {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	properties, _ := raw["properties"].(map[string]any)
	required := toSet(stringsFromAny(raw["required"]))

	out := make(map[string]toolregistry.ParameterSchema, len(properties))
	for name, propRaw := range properties {
		ps := toolregistry.ParameterSchema{Required: required[name]}
		if m, ok := propRaw.(map[string]any); ok {
			if typ, ok := m["type"].(string); ok {
				ps.Type = typ
			}
			if desc, ok := m["description"].(string); ok {
				ps.Description = desc
			}
		}
		out[name] = ps
	}
	return out
}

func stringsFromAny(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
