// Package toolval validates tool call arguments against the tool's declared
// JSON Schema before execution, coercing the simple type mismatches models
// commonly produce.
package toolval

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/omnillm/pkg/llm"
)

// ValidationError reports arguments that failed schema validation, carrying
// the tool name and a rendering of what was received.
type ValidationError struct {
	Tool  string
	Args  map[string]any
	Cause error
}

func (e *ValidationError) Error() string {
	argsJSON, _ := json.MarshalIndent(e.Args, "", "  ")
	return fmt.Sprintf("tool %q argument validation failed:\n%v\n\nReceived:\n%s",
		e.Tool, e.Cause, argsJSON)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ValidateArguments checks args against the tool's parameter schema and
// returns them, coerced where that makes them valid.
//
// Coercion rules, applied only when the uncoerced form fails:
//   - a string holding a valid number becomes a number (or integer)
//   - a number becomes a string where the schema expects one
//   - the strings "true"/"false" become booleans
//
// An uncompilable schema fails open: the arguments pass unvalidated rather
// than blocking every call to the tool.
func ValidateArguments(tool *llm.ToolDefinition, args map[string]any) (map[string]any, error) {
	if tool == nil || len(tool.Parameters) == 0 {
		return args, nil
	}
	if args == nil {
		args = map[string]any{}
	}

	schema, err := compiledSchema(tool.Name, tool.Parameters)
	if err != nil {
		return args, nil
	}

	if err := validateMap(schema, args); err == nil {
		return args, nil
	}

	coerced := coerceArgs(args, tool.Parameters)
	if err := validateMap(schema, coerced); err != nil {
		return nil, &ValidationError{Tool: tool.Name, Args: args, Cause: err}
	}
	return coerced, nil
}

var schemaCache sync.Map

func compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

func validateMap(schema *jsonschema.Schema, args map[string]any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

// coerceArgs applies the coercion rules to top-level properties.
func coerceArgs(args map[string]any, raw json.RawMessage) map[string]any {
	var schemaDef struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	_ = json.Unmarshal(raw, &schemaDef)

	out := make(map[string]any, len(args))
	for k, v := range args {
		prop, ok := schemaDef.Properties[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = coerceValue(v, prop.Type)
	}
	return out
}

func coerceValue(v any, targetType string) any {
	switch targetType {
	case "number", "integer":
		if s, ok := v.(string); ok {
			var n float64
			if err := json.Unmarshal([]byte(s), &n); err == nil {
				if targetType == "integer" {
					return int64(n)
				}
				return n
			}
		}
	case "string":
		switch n := v.(type) {
		case float64:
			return fmt.Sprintf("%g", n)
		case int64:
			return fmt.Sprintf("%d", n)
		case json.Number:
			return n.String()
		}
	case "boolean":
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return v
}

// SchemaFor derives a tool parameter schema from a Go struct type. $refs are
// inlined because the Gemini adapter rejects them.
func SchemaFor[T any]() (json.RawMessage, error) {
	r := &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var v T
	schema := r.Reflect(&v)
	return json.Marshal(schema)
}
