package apify

import "strings"

// NormalizeActorID converts an actor reference into the form the API
// expects in URL paths. "owner/name" becomes "owner~name"; opaque ids and
// ids already using "~" pass through, as does anything unrecognised.
func NormalizeActorID(actorID string) string {
	id := strings.TrimSpace(actorID)
	if looksOpaque(id) || strings.Contains(id, "~") {
		return id
	}
	if strings.Contains(id, "/") {
		var parts []string
		for _, part := range strings.Split(id, "/") {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) == 2 {
			return parts[0] + "~" + parts[1]
		}
	}
	return id
}

func looksOpaque(id string) bool {
	if len(id) < 10 || len(id) > 32 {
		return false
	}
	for _, r := range id {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return false
		}
	}
	return true
}

// MergeInput builds the actor input from caller, forced and fallback tiers.
// Caller keys always win; forced keys fill whatever the caller left out;
// the fallback document is used verbatim only when nothing else supplied a
// single key. The inputs are not modified.
func MergeInput(caller, forced, fallback map[string]any) map[string]any {
	merged := make(map[string]any, len(caller)+len(forced))
	for k, v := range caller {
		merged[k] = v
	}
	for k, v := range forced {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		for k, v := range fallback {
			merged[k] = v
		}
	}
	return merged
}
