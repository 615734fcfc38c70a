package eventlog

import "time"

// EventType enumerates every event the runtime emits. Consumers reconstruct
// execution state by sorting events of these types on Timestamp.
type EventType string

const (
	EventSwarmStart               EventType = "swarm_start"
	EventSwarmStop                EventType = "swarm_stop"
	EventAgentStart                EventType = "agent_start"
	EventAgentStop                 EventType = "agent_stop"
	EventAgentStep                 EventType = "agent_step"
	EventUserPrompt                EventType = "user_prompt"
	EventLLMAPIRequest             EventType = "llm_api_request"
	EventLLMAPIResponse            EventType = "llm_api_response"
	EventContentChunk              EventType = "content_chunk"
	EventToolCall                  EventType = "tool_call"
	EventToolResult                EventType = "tool_result"
	EventDelegationResult          EventType = "delegation_result"
	EventContextLimitWarning       EventType = "context_limit_warning"
	EventContextThresholdHit       EventType = "context_threshold_hit"
	EventContextCompression        EventType = "context_compression"
	EventOrphanToolCallsPruned     EventType = "orphan_tool_calls_pruned"
	EventLLMRequestFailed          EventType = "llm_request_failed"
	EventExecutionTimeout          EventType = "execution_timeout"
	EventTurnTimeout               EventType = "turn_timeout"
	EventMCPServerInitStart        EventType = "mcp_server_init_start"
	EventMCPServerInitComplete     EventType = "mcp_server_init_complete"
	EventAgentLazyInitStart        EventType = "agent_lazy_initialization_start"
	EventAgentLazyInitComplete     EventType = "agent_lazy_initialization_complete"
)

// PromptSource distinguishes a top-level user prompt from one injected by a
// delegating agent.
type PromptSource string

const (
	SourceUser       PromptSource = "user"
	SourceDelegation PromptSource = "delegation"
)

// ChunkType enumerates the sub-kinds of a streamed content_chunk event.
type ChunkType string

const (
	ChunkContent   ChunkType = "content"
	ChunkToolCall  ChunkType = "tool_call"
	ChunkSeparator ChunkType = "separator"
	ChunkCitations ChunkType = "citations"
)

// Event is the common envelope for every emitted event. Fields is a
// type-specific payload; it is a plain map so the event log never needs to
// know about every event shape and can stay a thin, process-wide emitter.
type Event struct {
	Type           EventType      `json:"type"`
	Agent          string         `json:"agent,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ExecutionID    string         `json:"execution_id"`
	SwarmID        string         `json:"swarm_id"`
	ParentSwarmID  string         `json:"parent_swarm_id,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
}

// TimestampISO renders the event timestamp as ISO-8601 with microsecond
// precision, matching the ordering guarantee in §4.1.
func (e Event) TimestampISO() string {
	return e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
}

func (e Event) field(key string) (any, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[key]
	return v, ok
}
