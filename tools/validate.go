package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Validate checks args against def: every required parameter is present and
// every declared parameter has the declared JSON type. Unknown arguments are
// ignored.
func Validate(def ToolDefinition, args map[string]any) error {
	for _, name := range def.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}

	// Deterministic order so error messages are stable.
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, ok := def.Parameters[name]
		if !ok || p.Type == "" {
			continue
		}
		if err := checkType(args[name], p.Type); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

func checkType(v any, want string) error {
	ok := false
	switch want {
	case "string":
		_, ok = v.(string)
	case "number":
		ok = isNumber(v)
	case "integer":
		ok = isInteger(v)
	case "boolean":
		_, ok = v.(bool)
	case "object":
		_, ok = v.(map[string]any)
	case "array":
		_, ok = v.([]any)
	case "null":
		ok = v == nil
	default:
		// Unknown schema types are not enforced.
		return nil
	}
	if !ok {
		return fmt.Errorf("expected %s, got %s", want, jsonKind(v))
	}
	return nil
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64, float32, int, int64, int32:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	}
	return false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int64, int32:
		return true
	case float64:
		return math.Trunc(n) == n
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64, int32:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
