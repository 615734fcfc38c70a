package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
)

func llmEvent(agent, model string, in, out, cached int) eventlog.Event {
	return eventlog.Event{
		Type:  eventlog.EventLLMAPIResponse,
		Agent: agent,
		Fields: map[string]any{
			"model": model, "input_tokens": in, "output_tokens": out, "cached_tokens": cached,
		},
	}
}

func TestAggregate_SumsPerAgentAcrossMultipleResponses(t *testing.T) {
	events := []eventlog.Event{
		llmEvent("coordinator", "gpt-4o-mini", 100, 50, 0),
		llmEvent("coordinator", "gpt-4o-mini", 200, 80, 10),
		llmEvent("researcher", "gpt-4o", 300, 120, 0),
	}
	totals := Aggregate(events, nil, DefaultPricingTable())

	coord := totals.PerAgent["coordinator"]
	assert.Equal(t, 300, coord.InputTokens)
	assert.Equal(t, 130, coord.OutputTokens)
	assert.Equal(t, 10, coord.CachedTokens)
	assert.Greater(t, coord.Cost, 0.0)

	researcher := totals.PerAgent["researcher"]
	assert.Equal(t, 300, researcher.InputTokens)

	assert.Equal(t, 300+130+300+120, totals.TotalTokens)
	assert.InDelta(t, coord.Cost+researcher.Cost, totals.TotalCost, 1e-9)
}

func TestAggregate_IgnoresNonResponseEvents(t *testing.T) {
	events := []eventlog.Event{
		{Type: eventlog.EventToolCall, Agent: "coordinator"},
		llmEvent("coordinator", "gpt-4o-mini", 10, 5, 0),
	}
	totals := Aggregate(events, nil, DefaultPricingTable())
	assert.Equal(t, 15, totals.TotalTokens)
}

func TestAggregate_FallsBackToModelsMapWhenEventOmitsModel(t *testing.T) {
	events := []eventlog.Event{
		{Type: eventlog.EventLLMAPIResponse, Agent: "coordinator", Fields: map[string]any{
			"input_tokens": 100, "output_tokens": 50,
		}},
	}
	totals := Aggregate(events, map[string]string{"coordinator": "gpt-4o-mini"}, DefaultPricingTable())
	assert.Equal(t, "gpt-4o-mini", totals.PerAgent["coordinator"].Model)
	assert.Greater(t, totals.PerAgent["coordinator"].Cost, 0.0)
}

func TestAggregate_UnknownModelYieldsZeroCostNotError(t *testing.T) {
	events := []eventlog.Event{llmEvent("coordinator", "unknown-model", 1000, 1000, 0)}
	totals := Aggregate(events, nil, DefaultPricingTable())
	assert.Equal(t, 0.0, totals.PerAgent["coordinator"].Cost)
	assert.Equal(t, 2000, totals.TotalTokens)
}
