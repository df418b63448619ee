// Package count parses the many shapes engagement counters take in scraped
// data ("12.3K", "1,204", 5000, 5e3) into an integer plus display string.
package count

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var suffixPattern = regexp.MustCompile(`(?i)^([\d,.]+)\s*([KMB])\b`)

var multipliers = map[string]float64{
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
}

// Normalize returns the integer value of v and its comma-grouped display
// form. When no integer can be extracted from a non-empty string, the
// trimmed string is returned as display with a nil value. Unsupported
// inputs yield (nil, ""). Normalize never panics.
func Normalize(v any) (*int64, string) {
	switch typed := v.(type) {
	case nil, bool:
		return nil, ""
	case string:
		return normalizeString(typed)
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return result(n)
		}
		if f, err := typed.Float64(); err == nil {
			return fromFloat(f)
		}
		return normalizeString(typed.String())
	case float64:
		return fromFloat(typed)
	case float32:
		return fromFloat(float64(typed))
	case int:
		return result(int64(typed))
	case int8:
		return result(int64(typed))
	case int16:
		return result(int64(typed))
	case int32:
		return result(int64(typed))
	case int64:
		return result(typed)
	case uint:
		return fromUnsigned(uint64(typed))
	case uint8:
		return result(int64(typed))
	case uint16:
		return result(int64(typed))
	case uint32:
		return result(int64(typed))
	case uint64:
		return fromUnsigned(typed)
	}
	return nil, ""
}

func normalizeString(raw string) (*int64, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ""
	}
	if n, ok := parseSuffixed(s); ok {
		return result(n)
	}
	if n, ok := parseDigits(s); ok {
		return result(n)
	}
	return nil, s
}

// parseSuffixed handles magnitude suffixes such as "1.5K" or "2 m".
func parseSuffixed(s string) (int64, bool) {
	m := suffixPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	base, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	scaled := base * multipliers[strings.ToUpper(m[2])]
	if math.IsNaN(scaled) || scaled >= math.MaxInt64 {
		return 0, false
	}
	return int64(scaled), true
}

// parseDigits drops everything except digits and group separators.
func parseDigits(s string) (int64, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func fromFloat(f float64) (*int64, string) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return nil, ""
	}
	return result(int64(math.Round(f)))
}

func fromUnsigned(u uint64) (*int64, string) {
	if u > math.MaxInt64 {
		return nil, ""
	}
	return result(int64(u))
}

func result(n int64) (*int64, string) {
	return &n, Group(n)
}

// Group renders n with comma thousands separators.
func Group(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}
