package toolregistry

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFromStruct derives a ParameterSchema map from a Go struct type's
// json/jsonschema tags, so a tool author can declare its parameters as a
// typed struct instead of hand-writing the map Parameters() returns.
// Grounded on the teacher's functiontool.generateSchema: same reflector
// settings (inline everything, no $ref/$schema/$id), adapted here to land
// in this registry's flat ParameterSchema shape rather than a raw
// map[string]any destined for an LLM request body.
func SchemaFromStruct[T any]() (map[string]ParameterSchema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: marshal schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("toolregistry: unmarshal schema: %w", err)
	}

	properties, _ := raw["properties"].(map[string]any)
	required := make(map[string]bool)
	if reqList, ok := raw["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	out := make(map[string]ParameterSchema, len(properties))
	for name, propRaw := range properties {
		ps := ParameterSchema{Required: required[name]}
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
	return out, nil
}
