// Package calllog logs outbound calls to third-party services and redacts
// secrets from anything that is logged or surfaced as debug output.
package calllog

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Redacted replaces the value of any key that looks like a credential.
const Redacted = "***REDACTED***"

// Call tracks one in-flight external call
type Call struct {
	context string
	start   time.Time
}

// Start logs the beginning of an external call. The payload is redacted
// before it is logged.
func Start(context string, payload map[string]any) *Call {
	entry := logrus.WithField("context", context)
	if payload != nil {
		entry = entry.WithField("payload", Redact(payload))
	}
	entry.Debug("Starting external call")
	return &Call{context: context, start: time.Now()}
}

// Done logs completion of the call with its duration.
func (c *Call) Done() {
	logrus.WithFields(logrus.Fields{
		"context":      c.context,
		"duration_sec": time.Since(c.start).Round(time.Millisecond).Seconds(),
	}).Info("Completed external call")
}

// Redact returns a copy of payload in which every value whose key contains
// "token" or "key" (case-insensitive) is replaced by Redacted. Nested maps and
// slices are walked.
func Redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if sensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return Redact(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(typed))
		for i, item := range typed {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "token") || strings.Contains(lower, "key")
}
