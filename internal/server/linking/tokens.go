package linking

import "strings"

// ParseAccessTokens splits a packed "id=token,id=token" list into a map.
// Pairs that are not exactly one key and one value are skipped.
func ParseAccessTokens(packed string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(packed, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			continue
		}
		id, token := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if id == "" || token == "" {
			continue
		}
		out[id] = token
	}
	return out
}
