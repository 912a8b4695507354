package tools

import (
	"github.com/invopop/jsonschema"
)

// Parameter describes one named argument of a tool.
type Parameter struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ToolDefinition is the schema advertised to the model. Name is the registry key.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]Parameter
	Required    []string
}

// InputSchema renders the parameters as a JSON Schema object.
func (d ToolDefinition) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	for name, p := range d.Parameters {
		props[name] = p
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(d.Required) > 0 {
		schema["required"] = d.Required
	}
	return schema
}

// GenerateSchema reflects a JSON Schema from T. Properties are inlined and
// fields without `omitempty` are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// DefinitionFor derives a ToolDefinition from the struct T. Descriptions come
// from `jsonschema_description` tags.
func DefinitionFor[T any](name, description string) ToolDefinition {
	schema := GenerateSchema[T]()
	def := ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  map[string]Parameter{},
		Required:    append([]string(nil), schema.Required...),
	}
	if schema.Properties == nil {
		return def
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		typ := pair.Value.Type
		if typ == "" {
			typ = "string"
		}
		def.Parameters[pair.Key] = Parameter{Type: typ, Description: pair.Value.Description}
	}
	return def
}
