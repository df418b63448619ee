package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
)

// Purpose binds a generation role to its sampling temperature
type Purpose struct {
	Name        string
	Temperature float64
}

var (
	// PurposeIdeas turns a trend into candidate ideas
	PurposeIdeas = Purpose{Name: "ideas", Temperature: 0.7}
	// PurposePosts expands an idea into publishable posts
	PurposePosts = Purpose{Name: "posts", Temperature: 0.8}
)

// JSONCaller performs one structured generation call
type JSONCaller interface {
	CallJSON(ctx context.Context, platform string, messages []Message, rootKey string) (map[string]any, string, error)
}

// Structured issues JSON-object completions for one purpose
type Structured struct {
	client  *Client
	purpose Purpose
}

// Ensure Structured implements JSONCaller
var _ JSONCaller = (*Structured)(nil)

// NewStructured creates a structured generation client for a purpose.
func NewStructured(client *Client, purpose Purpose) *Structured {
	return &Structured{client: client, purpose: purpose}
}

// CallJSON requests a JSON object and checks that it carries rootKey. A
// response that is not valid JSON triggers exactly one fresh request;
// a second failure is a ProtocolError. The raw text of the accepted
// response is returned alongside the parsed object.
func (s *Structured) CallJSON(ctx context.Context, platform string, messages []Message, rootKey string) (map[string]any, string, error) {
	content, err := s.complete(ctx, platform, messages)
	if err != nil {
		return nil, "", err
	}

	parsed, parseErr := parseObject(content)
	if parseErr != nil {
		logrus.Warnf("Failed to parse %s JSON for %s, retrying once: %v", s.purpose.Name, platform, parseErr)
		content, err = s.complete(ctx, platform, messages)
		if err != nil {
			return nil, "", err
		}
		parsed, parseErr = parseObject(content)
		if parseErr != nil {
			return nil, content, &apperrors.ProtocolError{Msg: "backend did not return valid JSON", Err: parseErr}
		}
	}

	if parsed == nil {
		return nil, content, &apperrors.ProtocolError{Msg: fmt.Sprintf("backend response is not a JSON object; missing root key '%s'", rootKey)}
	}
	if _, ok := parsed[rootKey]; !ok {
		return nil, content, &apperrors.ProtocolError{Msg: fmt.Sprintf("backend response missing root key '%s'", rootKey)}
	}

	return parsed, content, nil
}

func (s *Structured) complete(ctx context.Context, platform string, messages []Message) (string, error) {
	temperature := s.purpose.Temperature
	content, err := s.client.createCompletion(ctx, fmt.Sprintf("openai.%s:%s", s.purpose.Name, platform), chatRequest{
		Model:          s.client.model,
		Messages:       messages,
		Temperature:    &temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		content = "{}"
	}
	return content, nil
}

// parseObject decodes content as JSON. Valid JSON that is not an object
// returns (nil, nil) so the caller can report the missing root key.
func parseObject(content string) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &decoded); err != nil {
		return nil, err
	}
	obj, _ := decoded.(map[string]any)
	return obj, nil
}

// stripCodeFence removes a markdown ``` wrapper some models add despite
// the json_object response format.
func stripCodeFence(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
