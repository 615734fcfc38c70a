// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability provides OpenTelemetry tracing and Prometheus metrics
// for agent runs, LLM calls, tool execution, and the HTTP surface.
package observability

// =============================================================================
// Service Attributes (OpenTelemetry Semantic Conventions)
// =============================================================================

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
)

// =============================================================================
// GenAI Semantic Conventions (OpenTelemetry GenAI SIG aligned)
// =============================================================================

const (
	// AttrGenAISystem identifies the GenAI system producing the span.
	AttrGenAISystem = "gen_ai.system"

	// AttrGenAIOperationName is the operation being performed.
	AttrGenAIOperationName = "gen_ai.operation.name"

	AttrGenAIRequestModel       = "gen_ai.request.model"
	AttrGenAIRequestTemperature = "gen_ai.request.temperature"
	AttrGenAIRequestTopP        = "gen_ai.request.top_p"
	AttrGenAIRequestMaxTokens   = "gen_ai.request.max_tokens"

	AttrGenAIResponseFinishReason = "gen_ai.response.finish_reason"
	AttrGenAIUsageInputTokens     = "gen_ai.usage.input_tokens"
	AttrGenAIUsageOutputTokens    = "gen_ai.usage.output_tokens"

	AttrGenAIToolName        = "gen_ai.tool.name"
	AttrGenAIToolDescription = "gen_ai.tool.description"
	AttrGenAIToolCallID      = "gen_ai.tool.call.id"
)

// =============================================================================
// Runtime-specific attributes (agent/swarm/execution identity)
// =============================================================================

const (
	AttrAgentName    = "swarmkit.agent.name"
	AttrAgentType    = "swarmkit.agent.type"
	AttrExecutionID  = "swarmkit.execution_id"
	AttrSwarmID      = "swarmkit.swarm_id"
	AttrEventID      = "swarmkit.event_id"
	AttrLLMRequest   = "swarmkit.llm.request"
	AttrLLMResponse  = "swarmkit.llm.response"
	AttrToolArgs     = "swarmkit.tool.args"
	AttrToolResponse = "swarmkit.tool.response"
)

// =============================================================================
// HTTP Attributes
// =============================================================================

const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response.body.size"
)

// =============================================================================
// Error Attributes
// =============================================================================

const (
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// =============================================================================
// Span Names
// =============================================================================

const (
	// SpanAgentRun is the top-level span for a single agent turn.
	SpanAgentRun = "swarmkit.agent.run"

	// SpanLLMCall is a span for an LLM API call.
	SpanLLMCall = "swarmkit.llm.call"

	// SpanToolExecution is a span for tool execution.
	SpanToolExecution = "swarmkit.tool.execute"

	// SpanHTTPRequest is a span for HTTP request handling.
	SpanHTTPRequest = "swarmkit.http.request"
)

// =============================================================================
// GenAI Operation Names (for AttrGenAIOperationName)
// =============================================================================

const (
	OpChat     = "chat"
	OpToolCall = "execute_tool"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	DefaultServiceName  = "swarmkit"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
