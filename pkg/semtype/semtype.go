// Package semtype defines the semantic value types exchanged with operations and
// the shape checks that map loosely typed values (typically decoded JSON) onto them.
package semtype

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
)

// Type is the semantic type of a parameter or return value.
type Type string

const (
	String      Type = "string"
	StringArray Type = "stringArray"
	Integer     Type = "integer"
	Boolean     Type = "boolean"
	Bytes       Type = "bytes"
	Dictionary  Type = "dictionary"
	// Void is only valid as a return type.
	Void Type = "void"
)

// Valid reports whether t is a known semantic type.
func (t Type) Valid() bool {
	switch t {
	case String, StringArray, Integer, Boolean, Bytes, Dictionary, Void:
		return true
	}
	return false
}

// IsParameterType reports whether t may be declared on a parameter.
func (t Type) IsParameterType() bool {
	return t.Valid() && t != Void
}

// BytesKey names the single field of the object that carries Bytes arguments
// over JSON: {"base64": "<standard base64>"}.
const BytesKey = "base64"

// InputSchema returns the JSON Schema fragment for arguments of type t. It
// differs from JSONSchema only for Bytes, which callers send wrapped.
func (t Type) InputSchema() map[string]interface{} {
	if t == Bytes {
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				BytesKey: map[string]interface{}{"type": "string", "contentEncoding": "base64"},
			},
			"required":             []string{BytesKey},
			"additionalProperties": false,
		}
	}
	return t.JSONSchema()
}

// JSONSchema returns the JSON Schema fragment describing values of type t as
// they appear in results.
func (t Type) JSONSchema() map[string]interface{} {
	switch t {
	case String:
		return map[string]interface{}{"type": "string"}
	case StringArray:
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	case Integer:
		return map[string]interface{}{"type": "integer"}
	case Boolean:
		return map[string]interface{}{"type": "boolean"}
	case Bytes:
		return map[string]interface{}{"type": "string", "contentEncoding": "base64"}
	case Dictionary:
		return map[string]interface{}{"type": "object"}
	case Void:
		return map[string]interface{}{"type": "null"}
	}
	return map[string]interface{}{}
}

// Zero returns the canonical zero value for t.
func Zero(t Type) any {
	switch t {
	case String:
		return ""
	case StringArray:
		return []string{}
	case Integer:
		return int64(0)
	case Boolean:
		return false
	case Bytes:
		return []byte{}
	case Dictionary:
		return map[string]any{}
	}
	return nil
}

// ShapeOf names the runtime shape of v as it would appear to an external caller.
func ShapeOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32:
		if isIntegral(float64(x)) {
			return "integer"
		}
		return "number"
	case float64:
		if isIntegral(x) {
			return "integer"
		}
		return "number"
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []byte:
		return "bytes"
	case []string:
		return "stringArray"
	case []any:
		for _, e := range x {
			if _, ok := e.(string); !ok {
				return "array"
			}
		}
		return "stringArray"
	case map[string]any, map[string]string:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// Normalize checks that v has the runtime shape of t and returns it in canonical
// form: string, []string, int64, bool, []byte or map[string]any. Slices and maps
// are copied so the result never aliases caller memory.
//
// Only exact shapes match. A numeric string is not an Integer and a fractional
// number is not an Integer. A plain string is never Bytes; JSON callers send
// bytes as {"base64": "..."} with no other fields.
func Normalize(t Type, v any) (any, bool) {
	switch t {
	case String:
		s, ok := v.(string)
		return s, ok
	case StringArray:
		return normalizeStrings(v)
	case Integer:
		return normalizeInteger(v)
	case Boolean:
		b, ok := v.(bool)
		return b, ok
	case Bytes:
		return normalizeBytes(v)
	case Dictionary:
		return normalizeDict(v)
	case Void:
		return nil, v == nil
	}
	return nil, false
}

func normalizeStrings(v any) (any, bool) {
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func normalizeInteger(v any) (any, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, false
		}
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return nil, false
		}
		return int64(x), true
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return nil, false
}

func floatToInt(f float64) (any, bool) {
	if !isIntegral(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	return int64(f), true
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

func normalizeBytes(v any) (any, bool) {
	switch x := v.(type) {
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out, true
	case map[string]any:
		if len(x) != 1 {
			return nil, false
		}
		encoded, ok := x[BytesKey].(string)
		if !ok {
			return nil, false
		}
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}

func normalizeDict(v any) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out, true
	}
	return nil, false
}
