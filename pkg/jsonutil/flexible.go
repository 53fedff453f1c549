package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleIntValue converts a json.RawMessage to an int, handling cases where
// LLMs return the value as a quoted string ("2") or a float (2.0).
// Returns an error when the value cannot be interpreted as an integer.
func FlexibleIntValue(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("value is null or empty")
	}

	// Try number first
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal != float64(int64(numVal)) {
			return 0, fmt.Errorf("value %g is not an integer", numVal)
		}
		return int(numVal), nil
	}

	// Try quoted string
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(strVal))
		if err != nil {
			return 0, fmt.Errorf("string value %q is not an integer", strVal)
		}
		return n, nil
	}

	return 0, fmt.Errorf("value %s is not an integer", string(raw))
}

// FlexibleStringSlice converts a json.RawMessage to a string slice, coercing
// non-string elements (numbers, booleans) to their string form. Returns nil
// for null/empty input.
func FlexibleStringSlice(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("value is not an array: %w", err)
	}

	out := make([]string, len(items))
	for i, item := range items {
		out[i] = FlexibleStringValue(item)
	}
	return out, nil
}
