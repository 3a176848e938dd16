// Package schema declares response and function-parameter schemas shared
// with the remote collaborators and validates decoded payloads against them.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Type is a schema value type. Values use the upper-case spelling expected by
// the Gemini API; JSONSchema lowers them for OpenAI.
type Type string

const (
	TypeObject  Type = "OBJECT"
	TypeString  Type = "STRING"
	TypeNumber  Type = "NUMBER"
	TypeInteger Type = "INTEGER"
	TypeBoolean Type = "BOOLEAN"
	TypeArray   Type = "ARRAY"
)

// Schema is the OpenAPI subset understood by both collaborators.
type Schema struct {
	Type        Type               `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`

	// Minimum is enforced locally only; not every collaborator accepts it.
	Minimum *float64 `json:"-"`
}

// Min returns a pointer to v, for use as Schema.Minimum.
func Min(v float64) *float64 { return &v }

// ValidationError describes the first mismatch found by Validate.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Msg
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Msg)
}

// ValidateJSON decodes data and validates it against s.
func (s *Schema) ValidateJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("invalid json: %v", err)}
	}
	return s.Validate(v)
}

// Validate checks a value produced by json.Unmarshal into an any.
// Properties not declared in the schema are ignored.
func (s *Schema) Validate(v any) error {
	return s.validate("", v)
}

func (s *Schema) validate(path string, v any) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
	}

	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fail("want object, got %s", kind(v))
		}
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				return &ValidationError{Path: join(path, name), Msg: "required field missing"}
			}
		}
		for _, name := range sortedKeys(s.Properties) {
			fv, ok := obj[name]
			if !ok {
				continue
			}
			if err := s.Properties[name].validate(join(path, name), fv); err != nil {
				return err
			}
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return fail("want string, got %s", kind(v))
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			return fail("%q not one of [%s]", str, strings.Join(s.Enum, ", "))
		}
	case TypeNumber, TypeInteger:
		n, ok := v.(float64)
		if !ok {
			return fail("want number, got %s", kind(v))
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fail("not a finite number")
		}
		if s.Type == TypeInteger && n != math.Trunc(n) {
			return fail("want integer, got %v", n)
		}
		if s.Minimum != nil && n < *s.Minimum {
			return fail("%v below minimum %v", n, *s.Minimum)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fail("want boolean, got %s", kind(v))
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return fail("want array, got %s", kind(v))
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
					return err
				}
			}
		}
	default:
		return fail("unsupported schema type %q", s.Type)
	}
	return nil
}

// JSONSchema renders s as a JSON Schema document. Objects are closed and
// list every property as required, as strict structured outputs demand.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{"type": strings.ToLower(string(s.Type))}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = slices.Clone(s.Enum)
	}
	if s.Items != nil {
		out["items"] = s.Items.JSONSchema()
	}
	if s.Type == TypeObject {
		props := make(map[string]any, len(s.Properties))
		names := sortedKeys(s.Properties)
		for _, name := range names {
			props[name] = s.Properties[name].JSONSchema()
		}
		out["properties"] = props
		out["required"] = names
		out["additionalProperties"] = false
	}
	return out
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func sortedKeys(m map[string]*Schema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
