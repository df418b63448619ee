package sources

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/trendagents/trend-pipeline/internal/models"
)

// fieldMap names the raw keys an adapter looks up for each Trend field, in
// precedence order.
type fieldMap struct {
	platform   string
	idKeys     []string
	titleKeys  []string
	untitled   string
	urlKeys    []string
	viewsKeys  []string
	likesKeys  []string
	sharesKeys []string
}

func (f fieldMap) normalize(raw map[string]any) models.Trend {
	if raw == nil {
		raw = map[string]any{}
	}

	id := stringify(firstTruthy(raw, f.idKeys...))
	if id == "" {
		id = fingerprint(raw)
	}

	title := stringify(firstTruthy(raw, f.titleKeys...))
	if title == "" {
		title = f.untitled
	}

	return models.Trend{
		ID:    id,
		Title: title,
		URL:   stringify(firstTruthy(raw, f.urlKeys...)),
		Metrics: models.TrendMetrics{
			Views:  ParseInt(firstTruthy(raw, f.viewsKeys...)),
			Likes:  ParseInt(firstTruthy(raw, f.likesKeys...)),
			Shares: ParseInt(firstTruthy(raw, f.sharesKeys...)),
		},
		Raw: raw,
	}
}

// firstTruthy returns the first value among keys that is not nil, an empty
// string, a zero number, false or an empty collection.
func firstTruthy(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := raw[key]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch typed := v.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case json.Number:
		f, err := typed.Float64()
		return err != nil || f != 0
	case float64:
		return typed != 0
	case float32:
		return typed != 0
	case int:
		return typed != 0
	case int32:
		return typed != 0
	case int64:
		return typed != 0
	case uint:
		return typed != 0
	case uint32:
		return typed != 0
	case uint64:
		return typed != 0
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	}
	return true
}

func stringify(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// ParseInt converts a raw metric to a non-negative integer. Floats and
// float strings are truncated; anything else yields nil.
func ParseInt(v any) *int64 {
	var n int64
	switch typed := v.(type) {
	case nil, bool:
		return nil
	case int:
		n = int64(typed)
	case int32:
		n = int64(typed)
	case int64:
		n = typed
	case uint32:
		n = int64(typed)
	case uint64:
		if typed > math.MaxInt64 {
			return nil
		}
		n = int64(typed)
	case float32:
		return fromFloat(float64(typed))
	case float64:
		return fromFloat(typed)
	case json.Number:
		return parseNumericString(typed.String())
	case string:
		return parseNumericString(typed)
	default:
		return nil
	}
	if n < 0 {
		return nil
	}
	return &n
}

func parseNumericString(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return nil
		}
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return fromFloat(f)
}

func fromFloat(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

// fingerprint derives a stable identifier from the item's JSON encoding.
// Map keys are sorted by encoding/json, so equal items hash equally.
func fingerprint(raw map[string]any) string {
	encoded, err := json.Marshal(raw)
	if err != nil {
		encoded = []byte(fmt.Sprint(raw))
	}
	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return fmt.Sprintf("%016x", h.Sum64())
}
