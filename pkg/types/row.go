// Package types provides core data types for the studio explorer.
package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Row represents a single record returned by a row source.
// Values are one of: string, a Go numeric type, bool, []string or nil.
// No fixed shape is imposed; only a schema interprets fields.
type Row map[string]any

// Has reports whether the field is present in the row (even if nil).
func (r Row) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the field as a string. Only string values qualify.
func (r Row) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Strings returns the field as a string list.
// Lists containing non-string elements do not qualify.
func (r Row) Strings(key string) ([]string, bool) {
	return AsStrings(r[key])
}

// Number returns the field as a float64 when it holds a numeric value.
func (r Row) Number(key string) (float64, bool) {
	return AsNumber(r[key])
}

// Project returns a copy of the row restricted to the given fields.
// An empty field list copies every field. Absent fields stay absent.
func (r Row) Project(fields []string) Row {
	if len(fields) == 0 {
		out := make(Row, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	out := make(Row, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// AsNumber converts Go numeric types to float64.
// Strings are never treated as numbers, even when they look numeric.
func AsNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), !math.IsNaN(float64(val))
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsStrings converts []string and []any-of-strings to []string.
func AsStrings(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Display renders a value the way it is compared and searched:
// nil as "", lists comma-joined, numbers in shortest form.
func Display(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b)
	}
	if f, ok := AsNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if list, ok := AsStrings(v); ok {
		return strings.Join(list, ", ")
	}
	return ""
}

// NormalizeValue converts decoded transport values (JSON, protobuf Struct,
// database/sql scans) into the value set a Row holds.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64, int64, int, []string:
		return val
	case []byte:
		return string(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		if list, ok := AsStrings(val); ok {
			return list
		}
		// Mixed lists are not part of the row value set.
		return nil
	}
	if f, ok := AsNumber(v); ok {
		return f
	}
	return nil
}

// NormalizeRow applies NormalizeValue to every field of a decoded record.
func NormalizeRow(m map[string]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		row[k] = NormalizeValue(v)
	}
	return row
}
