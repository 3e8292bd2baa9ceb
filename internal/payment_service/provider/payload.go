package provider

import (
	"encoding/json"
	"strconv"
)

// stringAt walks nested JSON objects and renders the scalar at path. Missing
// keys, objects and arrays yield "".
func stringAt(m map[string]any, path ...string) string {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	switch v := cur.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// reasonFrom reads a failure reason given either as a string or as an object
// with a message or code.
func reasonFrom(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]any:
		return firstNonEmpty(stringAt(v, "message"), stringAt(v, "code"))
	}
	return ""
}
