// Package mapsafe reads typed values out of decoded JSON-like maps.
package mapsafe

import (
	"encoding/json"
	"math"
	"strconv"
)

// Lookup returns the value for key converted to T and whether the key was
// present and convertible. Numbers decoded as float64 convert to int only
// when integral, and strings convert to bool with strconv.ParseBool.
func Lookup[T any](m map[string]any, key string) (T, bool) {
	var zero T

	val, ok := m[key]
	if !ok || val == nil {
		return zero, false
	}

	var out any
	switch any(zero).(type) {
	case int:
		n, ok := toFloat(val)
		if !ok || n != math.Trunc(n) {
			return zero, false
		}
		out = int(n)
	case float64:
		n, ok := toFloat(val)
		if !ok {
			return zero, false
		}
		out = n
	case string:
		s, ok := val.(string)
		if !ok {
			return zero, false
		}
		out = s
	case bool:
		switch x := val.(type) {
		case bool:
			out = x
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return zero, false
			}
			out = b
		default:
			return zero, false
		}
	default:
		v, ok := val.(T)
		return v, ok
	}

	return out.(T), true
}

// Get returns the value for key converted to T, or defaultValue when the key
// is missing or cannot be converted.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	if v, ok := Lookup[T](m, key); ok {
		return v
	}
	return defaultValue
}

func toFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
