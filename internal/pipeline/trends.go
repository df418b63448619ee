package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apify"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/cache"
	"github.com/trendagents/trend-pipeline/internal/calllog"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

// DefaultTrendLimit is used when a request does not set a positive limit.
const DefaultTrendLimit = 5

// ActorRunner starts a job-source actor and collects its dataset
type ActorRunner interface {
	RunActor(ctx context.Context, opts apify.RunOptions) (*apify.RunResult, error)
}

// TrendSummarizer condenses an actor run into a ranked digest
type TrendSummarizer interface {
	Summarize(ctx context.Context, result *apify.RunResult) string
}

// TrendService fetches trends for a platform through its configured actor
type TrendService struct {
	config     *config.Config
	runner     ActorRunner
	summarizer TrendSummarizer
	registry   *sources.Registry
	cache      *cache.Store
	metrics    *Metrics
}

// NewTrendService creates a trend service. store and metrics may be nil.
func NewTrendService(cfg *config.Config, runner ActorRunner, summarizer TrendSummarizer, registry *sources.Registry, store *cache.Store, metrics *Metrics) *TrendService {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &TrendService{
		config:     cfg,
		runner:     runner,
		summarizer: summarizer,
		registry:   registry,
		cache:      store,
		metrics:    metrics,
	}
}

// FetchTrends runs the platform's actor and returns either adapter-normalized
// trends or a ranked summary, depending on the configured mode. Results are
// served from the cache unless the request asks to regenerate.
func (s *TrendService) FetchTrends(ctx context.Context, req models.TrendRequest) (*models.TrendsResponse, error) {
	platform, adapter, err := resolvePlatform(s.registry, req.Platform)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTrendLimit
	}

	if s.cache == nil {
		return s.load(ctx, platform, adapter, limit)
	}

	key := cache.TrendsKey{Platform: platform}
	if req.Regenerate {
		// ideas and posts derive from the trend list
		removed := s.cache.InvalidatePlatform(platform)
		logrus.Debugf("Regenerating %s trends, dropped %d cached entries", platform, removed)
	} else if cached, ok := s.cache.GetTrends(key); ok {
		s.metrics.RecordCacheHit(StageTrends)
		return &cached, nil
	}

	val, err := s.cache.Fill(ctx, key, func(ctx context.Context) (any, error) {
		if !req.Regenerate {
			if cached, ok := s.cache.GetTrends(key); ok {
				s.metrics.RecordCacheHit(StageTrends)
				return &cached, nil
			}
		}
		resp, err := s.load(ctx, platform, adapter, limit)
		if err != nil {
			return nil, err
		}
		s.cache.PutTrends(key, *resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp := *val.(*models.TrendsResponse)
	return &resp, nil
}

func (s *TrendService) load(ctx context.Context, platform string, adapter sources.Adapter, limit int) (*models.TrendsResponse, error) {
	start := time.Now()
	resp, err := s.fetch(ctx, platform, adapter, limit)
	s.metrics.Record(StageTrends, time.Since(start), err)
	return resp, err
}

func (s *TrendService) fetch(ctx context.Context, platform string, adapter sources.Adapter, limit int) (*models.TrendsResponse, error) {
	actorID := s.config.ActorFor(platform)
	if actorID == "" {
		return nil, &apperrors.ConfigurationError{Setting: fmt.Sprintf("APIFY_%s_ACTOR", strings.ToUpper(platform))}
	}

	logrus.Infof("Fetching %s trends via actor %s (limit %d)", platform, actorID, limit)
	result, err := s.runner.RunActor(ctx, apify.RunOptions{
		ActorID:      actorID,
		Input:        map[string]any{"limit": limit},
		DefaultInput: adapter.DefaultInput(),
	})
	if err != nil {
		logrus.Errorf("Apify error for platform %s: %v", platform, err)
		return nil, err
	}

	resp := &models.TrendsResponse{
		Mode: s.mode(),
		Debug: calllog.Redact(map[string]any{
			"actor":  result.ActorID,
			"run_id": result.RunID,
			"input":  result.Input,
			"items":  result.Items,
		}),
	}

	switch resp.Mode {
	case config.TrendsModeSummary:
		resp.Summary = s.summarizer.Summarize(ctx, result)
	default:
		resp.Trends = normalizeItems(platform, adapter, result.Items, limit)
		if len(resp.Trends) == 0 {
			logrus.Infof("No trends returned for platform %s", platform)
		}
	}

	return resp, nil
}

func (s *TrendService) mode() string {
	if s.config.TrendsMode == config.TrendsModeSummary {
		return config.TrendsModeSummary
	}
	return config.TrendsModeTyped
}

// normalizeItems adapts object items in provider order, stopping at limit.
// Items that are not JSON objects are skipped.
func normalizeItems(platform string, adapter sources.Adapter, items []any, limit int) []models.Trend {
	trends := make([]models.Trend, 0, limit)
	for _, item := range items {
		if len(trends) >= limit {
			break
		}
		raw, ok := item.(map[string]any)
		if !ok {
			logrus.Warnf("Skipping non-object %s item of type %T", platform, item)
			continue
		}
		trends = append(trends, adapter.Normalize(raw))
	}
	return trends
}

// resolvePlatform lower-cases the platform name and finds its adapter.
func resolvePlatform(registry *sources.Registry, platform string) (string, sources.Adapter, error) {
	adapter, err := registry.Lookup(platform)
	if err != nil {
		return "", nil, err
	}
	return adapter.GetName(), adapter, nil
}
