package google

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// toGeminiSchema converts a JSON Schema map to Gemini's Schema type.
// Gemini has no const keyword, so const becomes a one-value enum and an
// anyOf made entirely of consts collapses into an enum. $ref is rejected:
// the API would silently drop it, which corrupts the tool contract.
func toGeminiSchema(schemaMap map[string]any) (*genai.Schema, error) {
	if schemaMap == nil {
		return nil, nil
	}
	if _, ok := schemaMap["$ref"]; ok {
		return nil, errors.New("$ref is not supported in Gemini tool schemas")
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			schema.Enum = append(schema.Enum, enumValue(e))
		}
	}
	if c, ok := schemaMap["const"]; ok {
		schema.Enum = []string{enumValue(c)}
		if schema.Type == "" {
			schema.Type = genai.TypeString
		}
	}

	if anyOf, ok := schemaMap["anyOf"].([]any); ok {
		if values, allConst := constValues(anyOf); allConst {
			schema.Enum = values
			if schema.Type == "" {
				schema.Type = genai.TypeString
			}
		} else {
			for _, variant := range anyOf {
				variantMap, ok := variant.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("anyOf variant is not an object: %v", variant)
				}
				sub, err := toGeminiSchema(variantMap)
				if err != nil {
					return nil, err
				}
				schema.AnyOf = append(schema.AnyOf, sub)
			}
		}
	}

	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}
			sub, err := toGeminiSchema(propMap)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			schema.Properties[name] = sub
		}
	}

	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := schemaMap["items"].(map[string]any); ok {
		sub, err := toGeminiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		schema.Items = sub
	}

	return schema, nil
}

// constValues extracts enum values when every anyOf variant is a bare const.
func constValues(anyOf []any) ([]string, bool) {
	values := make([]string, 0, len(anyOf))
	for _, variant := range anyOf {
		variantMap, ok := variant.(map[string]any)
		if !ok {
			return nil, false
		}
		c, ok := variantMap["const"]
		if !ok {
			return nil, false
		}
		values = append(values, enumValue(c))
	}
	return values, len(values) > 0
}

func enumValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
