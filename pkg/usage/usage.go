// Package usage aggregates per-agent token usage and dollar cost for a
// swarm execution (§4.10). per_agent_usage is reconstructed from the event
// log rather than from live instance state, so it survives a process
// restart between execute() and the snapshot that resumes it; the live
// context_breakdown comes from in-memory counters instead, since it only
// needs to be accurate for the currently running process.
package usage

import (
	"github.com/agentmesh/swarmkit/pkg/eventlog"
)

// ModelRates holds USD-per-million-token rates for one model id.
type ModelRates struct {
	InputPerMillion         float64
	OutputPerMillion        float64
	CacheCreationPerMillion float64
	CacheReadPerMillion     float64
}

// PricingTable is a local model pricing table keyed by model id, grounded
// on the teacher's workflow token-aggregation result, generalized here from
// a single workflow result to cover every model a swarm might invoke
// (§4.10.A).
type PricingTable map[string]ModelRates

// DefaultPricingTable supplies rates for the handful of commonly used
// models the teacher's adapters target. Callers extend it for other models.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		"gpt-4o": {InputPerMillion: 2.50, OutputPerMillion: 10.00, CacheReadPerMillion: 1.25},
		"gpt-4o-mini":         {InputPerMillion: 0.15, OutputPerMillion: 0.60, CacheReadPerMillion: 0.075},
		"claude-3-5-sonnet":   {InputPerMillion: 3.00, OutputPerMillion: 15.00, CacheCreationPerMillion: 3.75, CacheReadPerMillion: 0.30},
		"claude-3-5-haiku":    {InputPerMillion: 0.80, OutputPerMillion: 4.00, CacheCreationPerMillion: 1.00, CacheReadPerMillion: 0.08},
	}
}

// AgentUsage is one agent's aggregated token usage and cost within an
// execution.
type AgentUsage struct {
	Agent        string
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Cost         float64
}

// Totals is the full aggregation attached to a swarm_stop event payload.
type Totals struct {
	PerAgent   map[string]AgentUsage
	TotalCost  float64
	TotalTokens int
}

// llmResponsePayload mirrors the fields agentengine attaches to an
// llm_api_response event; the usage package only reads what it needs.
type llmResponsePayload struct {
	agent        string
	model        string
	inputTokens  int
	outputTokens int
	cachedTokens int
}

// Aggregate scans every llm_api_response event recorded for an execution and
// produces per-agent usage totals, matching §4.10's "aggregated across the
// execution log, not from live state". events is assumed pre-filtered to one
// executionID, e.g. by a subscriber collecting into a slice during execute().
func Aggregate(events []eventlog.Event, models map[string]string, pricing PricingTable) Totals {
	totals := Totals{PerAgent: make(map[string]AgentUsage)}

	for _, evt := range events {
		if evt.Type != eventlog.EventLLMAPIResponse {
			continue
		}
		payload := extractPayload(evt)
		if payload.model == "" {
			payload.model = models[evt.Agent]
		}

		agg := totals.PerAgent[evt.Agent]
		agg.Agent = evt.Agent
		if agg.Model == "" {
			agg.Model = payload.model
		}
		agg.InputTokens += payload.inputTokens
		agg.OutputTokens += payload.outputTokens
		agg.CachedTokens += payload.cachedTokens
		totals.PerAgent[evt.Agent] = agg
	}

	for agent, agg := range totals.PerAgent {
		rates, ok := pricing[agg.Model]
		if ok {
			agg.Cost = float64(agg.InputTokens)/1_000_000*rates.InputPerMillion +
				float64(agg.OutputTokens)/1_000_000*rates.OutputPerMillion +
				float64(agg.CachedTokens)/1_000_000*rates.CacheReadPerMillion
		}
		totals.TotalCost += agg.Cost
		totals.TotalTokens += agg.InputTokens + agg.OutputTokens
		totals.PerAgent[agent] = agg
	}

	return totals
}

func extractPayload(evt eventlog.Event) llmResponsePayload {
	var p llmResponsePayload
	p.agent = evt.Agent
	if evt.Fields == nil {
		return p
	}
	if v, ok := evt.Fields["model"].(string); ok {
		p.model = v
	}
	if v, ok := evt.Fields["input_tokens"].(int); ok {
		p.inputTokens = v
	}
	if v, ok := evt.Fields["output_tokens"].(int); ok {
		p.outputTokens = v
	}
	if v, ok := evt.Fields["cached_tokens"].(int); ok {
		p.cachedTokens = v
	}
	return p
}

// ContextBreakdown is the live, in-memory projection of per-agent context
// usage, distinct from the durable per_agent_usage above (§4.10).
type ContextBreakdown struct {
	Agent             string
	MessageCount      int
	CumulativeInput   int
	CumulativeOutput  int
	UsagePercentage   float64
}
