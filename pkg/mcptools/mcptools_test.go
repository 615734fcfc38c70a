package mcptools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/swarmkit/pkg/eventlog"
)

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Config{Name: "demo"}, eventlog.NewStream())
	require.Error(t, err)
}

func TestConvertSchema_ExtractsTypeDescriptionAndRequired(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "file path"},
			"all":  map[string]any{"type": "boolean"},
		},
		Required: []string{"path"},
	}

	params := convertSchema(schema)
	require.Contains(t, params, "path")
	assert.Equal(t, "string", params["path"].Type)
	assert.Equal(t, "file path", params["path"].Description)
	assert.True(t, params["path"].Required)

	require.Contains(t, params, "all")
	assert.False(t, params["all"].Required)
}

func TestEnvSlice_FormatsKeyValuePairs(t *testing.T) {
	out := envSlice(map[string]string{"FOO": "bar"})
	assert.Equal(t, []string{"FOO=bar"}, out)
	assert.Nil(t, envSlice(nil))
}

func TestToSet_NilOnEmpty(t *testing.T) {
	assert.Nil(t, toSet(nil))
	set := toSet([]string{"a", "b"})
	assert.True(t, set["a"])
	assert.False(t, set["c"])
}
