// Package pipeline orchestrates the trend, idea and post stages on top of
// the job source, the generation backend and the result cache.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/cache"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/notifications"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

const refreshTimeout = 30 * time.Minute

// Dependencies are the external collaborators of a Service
type Dependencies struct {
	Runner      ActorRunner
	Summarizer  TrendSummarizer
	IdeasCaller llm.JSONCaller
	PostsCaller llm.JSONCaller
	Registry    *sources.Registry
	Cache       *cache.Store
	Notifier    notifications.NotificationInterface
}

// Service bundles the three pipeline stages with shared cache and metrics
type Service struct {
	config   *config.Config
	Trends   *TrendService
	Ideas    *IdeasService
	Posts    *PostsService
	cache    *cache.Store
	registry *sources.Registry
	notifier notifications.NotificationInterface
	metrics  *Metrics
	now      func() time.Time

	refreshing atomic.Bool
}

// NewService creates a new pipeline service
func NewService(cfg *config.Config, deps Dependencies) *Service {
	registry := deps.Registry
	if registry == nil {
		registry = sources.DefaultRegistry()
	}
	metrics := NewMetrics()

	return &Service{
		config:   cfg,
		Trends:   NewTrendService(cfg, deps.Runner, deps.Summarizer, registry, deps.Cache, metrics),
		Ideas:    NewIdeasService(deps.IdeasCaller, registry, deps.Cache, metrics),
		Posts:    NewPostsService(deps.PostsCaller, registry, deps.Cache, metrics),
		cache:    deps.Cache,
		registry: registry,
		notifier: deps.Notifier,
		metrics:  metrics,
		now:      time.Now,
	}
}

// FetchTrends runs the trends stage
func (s *Service) FetchTrends(ctx context.Context, req models.TrendRequest) (*models.TrendsResponse, error) {
	return s.Trends.FetchTrends(ctx, req)
}

// GenerateIdeas runs the ideas stage
func (s *Service) GenerateIdeas(ctx context.Context, req models.IdeasRequest) (*models.IdeasResponse, error) {
	return s.Ideas.GenerateIdeas(ctx, req)
}

// GeneratePosts runs the posts stage
func (s *Service) GeneratePosts(ctx context.Context, req models.PostsRequest) (*models.PostsResponse, error) {
	return s.Posts.GeneratePosts(ctx, req)
}

// Metrics returns the shared stage counters
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// GetMetrics returns current metrics, including cache occupancy, as JSON
func (s *Service) GetMetrics() string {
	data, _ := json.MarshalIndent(struct {
		Stages map[string]StageMetrics `json:"stages"`
		Cache  cache.Stats             `json:"cache"`
	}{
		Stages: s.metrics.Snapshot(),
		Cache:  s.CacheStats(),
	}, "", "  ")
	return string(data)
}

// CacheStats reports cache occupancy; zero when caching is disabled.
func (s *Service) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

// InvalidateCache drops cached results for one platform, or for every
// platform when platform is empty. It returns the number of entries removed.
func (s *Service) InvalidateCache(platform string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	if strings.TrimSpace(platform) == "" {
		before := s.cache.Stats()
		s.cache.Purge()
		return before.Trends + before.Ideas + before.Posts, nil
	}

	name, _, err := resolvePlatform(s.registry, platform)
	if err != nil {
		return 0, err
	}
	return s.cache.InvalidatePlatform(name), nil
}

// RunRefresh re-fetches trends for every configured refresh platform,
// replacing cached results, and pushes a digest per platform to the
// notification channels. Platforms are processed one at a time; a failing
// platform does not stop the rest. Only one refresh runs at a time; an
// overlapping call returns apperrors.ErrRefreshInProgress.
func (s *Service) RunRefresh() error {
	if !s.refreshing.CompareAndSwap(false, true) {
		logrus.Warn("Trend refresh already running; skipping")
		return apperrors.ErrRefreshInProgress
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	logrus.Info("Starting scheduled trend refresh")

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	var failures []string
	for _, platform := range s.config.RefreshPlatforms {
		digest, err := s.refreshPlatform(ctx, platform)
		if err != nil {
			logrus.Errorf("Trend refresh failed for %s: %v", platform, err)
			failures = append(failures, fmt.Sprintf("%s: %v", platform, err))
			continue
		}

		if s.notifier == nil {
			continue
		}
		if err := s.notifier.SendDigest(digest); err != nil {
			logrus.Errorf("Failed to send %s digest: %v", platform, err)
			failures = append(failures, fmt.Sprintf("%s digest: %v", platform, err))
		}
	}

	var err error
	if len(failures) > 0 {
		err = fmt.Errorf("refresh errors: %s", strings.Join(failures, "; "))
	}
	s.metrics.Record(StageRefresh, time.Since(start), err)

	logrus.Infof("Trend refresh completed in %v", time.Since(start))
	return err
}

func (s *Service) refreshPlatform(ctx context.Context, platform string) (*models.Digest, error) {
	resp, err := s.Trends.FetchTrends(ctx, models.TrendRequest{
		Platform:   platform,
		Limit:      s.config.RefreshLimit,
		Regenerate: true,
	})
	if err != nil {
		return nil, err
	}

	return &models.Digest{
		GeneratedAt: s.now(),
		Platform:    strings.ToLower(strings.TrimSpace(platform)),
		Mode:        resp.Mode,
		Trends:      resp.Trends,
		Summary:     resp.Summary,
	}, nil
}
