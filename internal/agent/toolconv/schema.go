// Package toolconv renders the tool catalog in each backend's schema shape.
package toolconv

import (
	"encoding/json"

	"github.com/haasonsaas/echodesk/internal/agent"
)

// SchemaMap decodes a tool's input schema. Tools with no schema, or one that
// does not decode to an object, advertise an empty object schema.
func SchemaMap(tool agent.Tool) map[string]any {
	var schema map[string]any
	if raw := tool.Schema(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &schema); err != nil {
			schema = nil
		}
	}
	if schema == nil {
		schema = map[string]any{}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// requiredFields returns schema["required"] as strings.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
