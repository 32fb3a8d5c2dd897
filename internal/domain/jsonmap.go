package domain

import (
	"encoding/json"
)

// ParseHeaderMap parses a job's headers column into a flat string map.
// The column stores a JSON object literal as text. An empty or invalid
// value yields an empty map and a false second return, never an error:
// bad headers must not fail the request.
func ParseHeaderMap(raw string) (map[string]string, bool) {
	headers := map[string]string{}
	if raw == "" {
		return headers, true
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return headers, false
	}

	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case float64, bool:
			b, _ := json.Marshal(val)
			headers[k] = string(b)
		default:
			// Nested objects and arrays are not valid header values.
		}
	}

	return headers, true
}
