package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
swarm:
  name: research-team
  lead_agent: coordinator
  agents:
    - name: coordinator
      model: ${TEST_MODEL:-gpt-4o-mini}
      provider: openai
      delegations:
        - agent: researcher
    - name: researcher
      model: gpt-4o-mini
      provider: openai
`

func TestLoad_ParsesSwarmDocumentAndExpandsEnvDefault(t *testing.T) {
	os.Unsetenv("TEST_MODEL")
	doc, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	require.NotNil(t, doc.Swarm)
	assert.Equal(t, "research-team", doc.Swarm.Name)
	assert.Equal(t, "gpt-4o-mini", doc.Swarm.Agents[0].Model)
	assert.Equal(t, "1800s", doc.Swarm.ExecutionTimeout)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	os.Setenv("TEST_MODEL", "gpt-4o")
	defer os.Unsetenv("TEST_MODEL")
	doc, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", doc.Swarm.Agents[0].Model)
}

func TestLoad_RejectsUnknownLeadAgent(t *testing.T) {
	bad := `
swarm:
  name: x
  lead_agent: ghost
  agents:
    - name: a
      model: m
`
	_, err := Load([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead_agent")
}

func TestLoad_RejectsAgentNameWithAt(t *testing.T) {
	bad := `
swarm:
  name: x
  lead_agent: a@b
  agents:
    - name: a@b
      model: m
`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func TestSwarmConfig_ToSwarmConfig(t *testing.T) {
	doc, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	sc, err := doc.Swarm.ToSwarmConfig()
	require.NoError(t, err)
	assert.Equal(t, "research-team", sc.Name)
	assert.Equal(t, "coordinator", sc.LeadAgent)
}

func TestAgentConfig_ToDefinitionCarriesDelegations(t *testing.T) {
	doc, err := Load([]byte(sampleYAML))
	require.NoError(t, err)
	def := doc.Swarm.Agents[0].ToDefinition()
	require.Len(t, def.Delegations, 1)
	assert.Equal(t, "researcher", def.Delegations[0].Agent)
	assert.Equal(t, "WorkWithresearcher", def.Delegations[0].WorkWithToolName())
}
