package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetricsDoesNotPanic(t *testing.T) {
	var m NoopMetrics
	assert.NotPanics(t, func() {
		m.RecordAgentCall("agent", "swarm", time.Millisecond)
		m.RecordToolCall("Read", time.Millisecond)
		m.RecordToolError("Read", "execution_error")
		m.RecordLLMCall("gpt", "openai", time.Millisecond)
	})
}

func TestGlobalMetricsDefaultsToNoop(t *testing.T) {
	SetGlobalMetrics(nil)
	assert.IsType(t, NoopMetrics{}, GetGlobalMetrics())
}

func TestGlobalMetricsHonorsSetGlobalMetrics(t *testing.T) {
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	cfg := &MetricsConfig{Enabled: true}
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Skipf("prometheus metrics unavailable in this environment: %v", err)
	}
	SetGlobalMetrics(m)
	assert.Same(t, m, GetGlobalMetrics())
}
