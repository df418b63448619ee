package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/cache"
	"github.com/trendagents/trend-pipeline/internal/calllog"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/prompts"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

const ideasRootKey = "ideas"

// IdeasService turns a trend into candidate content ideas
type IdeasService struct {
	caller   llm.JSONCaller
	registry *sources.Registry
	cache    *cache.Store
	metrics  *Metrics
}

// NewIdeasService creates an ideas service. store and metrics may be nil.
func NewIdeasService(caller llm.JSONCaller, registry *sources.Registry, store *cache.Store, metrics *Metrics) *IdeasService {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &IdeasService{
		caller:   caller,
		registry: registry,
		cache:    store,
		metrics:  metrics,
	}
}

// GenerateIdeas asks the generation backend for ideas about req.Trend.
// Malformed elements degrade to empty fields; only a missing or non-list
// "ideas" value is an error.
func (s *IdeasService) GenerateIdeas(ctx context.Context, req models.IdeasRequest) (*models.IdeasResponse, error) {
	platform, _, err := resolvePlatform(s.registry, req.Platform)
	if err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.load(ctx, platform, req.Trend)
	}
	if req.Trend.ID == "" {
		// an empty trend id would share one entry across unrelated trends
		logrus.Debugf("Generating %s ideas uncached: trend has no id", platform)
		return s.load(ctx, platform, req.Trend)
	}

	key := cache.IdeasKey{Platform: platform, TrendID: req.Trend.ID}
	if req.Regenerate {
		s.cache.InvalidateIdeas(key)
	} else if ideas, ok := s.cache.GetIdeas(key); ok {
		s.metrics.RecordCacheHit(StageIdeas)
		return &models.IdeasResponse{Ideas: ideas}, nil
	}

	val, err := s.cache.Fill(ctx, key, func(ctx context.Context) (any, error) {
		if !req.Regenerate {
			if ideas, ok := s.cache.GetIdeas(key); ok {
				s.metrics.RecordCacheHit(StageIdeas)
				return &models.IdeasResponse{Ideas: ideas}, nil
			}
		}
		resp, err := s.load(ctx, platform, req.Trend)
		if err != nil {
			return nil, err
		}
		s.cache.PutIdeas(key, resp.Ideas)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp := *val.(*models.IdeasResponse)
	return &resp, nil
}

func (s *IdeasService) load(ctx context.Context, platform string, trend models.Trend) (*models.IdeasResponse, error) {
	start := time.Now()
	resp, err := s.generate(ctx, platform, trend)
	s.metrics.Record(StageIdeas, time.Since(start), err)
	if err != nil {
		logrus.Errorf("Idea generation failed for %s: %v", platform, err)
		return nil, err
	}
	return resp, nil
}

func (s *IdeasService) generate(ctx context.Context, platform string, trend models.Trend) (*models.IdeasResponse, error) {
	messages := prompts.TrendToIdeas(platform, trend)

	parsed, raw, err := s.caller.CallJSON(ctx, platform, messages, ideasRootKey)
	if err != nil {
		return nil, err
	}

	items, ok := parsed[ideasRootKey].([]any)
	if !ok {
		return nil, &apperrors.ProtocolError{Msg: fmt.Sprintf("backend response missing '%s' list", ideasRootKey)}
	}

	ideas := make([]models.Idea, 0, len(items))
	for i, item := range items {
		ideas = append(ideas, ideaFrom(item, i+1))
	}

	logrus.Infof("Generated %d ideas for %s trend %q", len(ideas), platform, trend.Title)
	return &models.IdeasResponse{
		Ideas: ideas,
		Debug: debugPayload(messages, raw),
	}, nil
}

// ideaFrom maps one array element onto an Idea. position is 1-based and
// names the idea when the element carries no id.
func ideaFrom(item any, position int) models.Idea {
	obj, _ := item.(map[string]any)

	id := scalarText(obj["id"])
	if id == "" {
		id = fmt.Sprintf("idea-%d", position)
	}
	summary, _ := obj["summary"].(string)
	rationale, _ := obj["rationale"].(string)

	return models.Idea{
		ID:        id,
		Summary:   strings.TrimSpace(summary),
		Rationale: strings.TrimSpace(rationale),
	}
}

// scalarText renders strings and numbers as text. Anything else, and the
// zero values "", 0 and false, render as "".
func scalarText(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		if typed == 0 {
			return ""
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case int:
		if typed == 0 {
			return ""
		}
		return strconv.Itoa(typed)
	}
	return ""
}

func debugPayload(messages []llm.Message, raw string) map[string]any {
	prompt := make([]any, 0, len(messages))
	for _, m := range messages {
		prompt = append(prompt, map[string]any{"role": m.Role, "content": m.Content})
	}
	return calllog.Redact(map[string]any{
		"prompt":       prompt,
		"raw_response": raw,
	})
}
