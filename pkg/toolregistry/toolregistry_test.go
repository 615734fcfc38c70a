package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	err  error
}

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub" }
func (s stubTool) Parameters() map[string]ParameterSchema {
	return map[string]ParameterSchema{}
}
func (s stubTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func TestInferName_StripsToolSuffixAndPackagePath(t *testing.T) {
	assert.Equal(t, "Weather", InferName("weather.WeatherTool"))
	assert.Equal(t, "Clock", InferName("Clock"))
}

func TestRegister_CustomToolCannotOverrideBuiltin(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubTool{name: "Clock"}, SourceBuiltin, false))
	err := r.Register(stubTool{name: "Clock"}, SourceDelegation, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides with a builtin")
}

func TestRemove_RefusesNonRemovable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubTool{name: "Clock"}, SourceBuiltin, false))
	err := r.Remove("Clock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not removable")
}

func TestActiveTools_SkillRestrictionKeepsNonRemovable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubTool{name: "Clock"}, SourceBuiltin, false))
	require.NoError(t, r.Register(stubTool{name: "Deploy"}, SourcePlugin, true))
	require.NoError(t, r.Register(stubTool{name: "Query"}, SourcePlugin, true))

	r.SetActiveSkillTools([]string{"Query"})
	active := r.ActiveTools()

	names := map[string]bool{}
	for _, e := range active {
		names[e.Tool.Name()] = true
	}
	assert.True(t, names["Clock"], "non-removable tools stay active regardless of skill restriction")
	assert.True(t, names["Query"])
	assert.False(t, names["Deploy"])

	r.SetActiveSkillTools(nil)
	assert.Len(t, r.ActiveTools(), 3)
}

func TestExecute_UnknownToolReturnsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "Ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestExecute_RunsRegisteredTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubTool{name: "Echo"}, SourceBuiltin, false))
	out, err := r.Execute(context.Background(), "Echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=max results"`
}

func TestSchemaFromStruct_DerivesParametersFromTags(t *testing.T) {
	params, err := SchemaFromStruct[searchArgs]()
	require.NoError(t, err)

	require.Contains(t, params, "query")
	assert.Equal(t, "string", params["query"].Type)
	assert.Equal(t, "search query", params["query"].Description)
	assert.True(t, params["query"].Required)

	require.Contains(t, params, "limit")
	assert.False(t, params["limit"].Required)
}
