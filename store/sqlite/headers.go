package sqlite

import "encoding/json"

// marshalHeaders serializes a header map for storage; nil/empty maps store
// as an empty JSON object so unmarshalHeaders never has to special-case "".
func marshalHeaders(h map[string]string) string {
	if len(h) == 0 {
		return "{}"
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalHeaders(s string) map[string]string {
	h := map[string]string{}
	if s == "" {
		return h
	}
	_ = json.Unmarshal([]byte(s), &h)
	return h
}
