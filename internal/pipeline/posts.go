package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/cache"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/prompts"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

const (
	postsRootKey = "posts"
	// DefaultPostCount is used when a request does not set a positive count.
	DefaultPostCount = 3
)

// PostsService expands an idea into publish-ready posts
type PostsService struct {
	caller   llm.JSONCaller
	registry *sources.Registry
	cache    *cache.Store
	metrics  *Metrics
}

// NewPostsService creates a posts service. store and metrics may be nil.
func NewPostsService(caller llm.JSONCaller, registry *sources.Registry, store *cache.Store, metrics *Metrics) *PostsService {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &PostsService{
		caller:   caller,
		registry: registry,
		cache:    store,
		metrics:  metrics,
	}
}

// GeneratePosts asks the generation backend for posts expanding req.Idea.
func (s *PostsService) GeneratePosts(ctx context.Context, req models.PostsRequest) (*models.PostsResponse, error) {
	platform, _, err := resolvePlatform(s.registry, req.Platform)
	if err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = DefaultPostCount
	}

	if s.cache == nil {
		return s.load(ctx, platform, req.Idea, count)
	}
	if req.TrendID == "" || req.Idea.ID == "" {
		// idea ids repeat across batches, so both ids are needed for a key
		logrus.Debugf("Generating %s posts uncached: trend or idea id missing", platform)
		return s.load(ctx, platform, req.Idea, count)
	}

	key := cache.PostsKey{Platform: platform, TrendID: req.TrendID, IdeaID: req.Idea.ID}
	if req.Regenerate {
		s.cache.InvalidatePosts(key)
	} else if posts, ok := s.cache.GetPosts(key); ok {
		s.metrics.RecordCacheHit(StagePosts)
		return &models.PostsResponse{Posts: posts}, nil
	}

	val, err := s.cache.Fill(ctx, key, func(ctx context.Context) (any, error) {
		if !req.Regenerate {
			if posts, ok := s.cache.GetPosts(key); ok {
				s.metrics.RecordCacheHit(StagePosts)
				return &models.PostsResponse{Posts: posts}, nil
			}
		}
		resp, err := s.load(ctx, platform, req.Idea, count)
		if err != nil {
			return nil, err
		}
		s.cache.PutPosts(key, resp.Posts)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp := *val.(*models.PostsResponse)
	return &resp, nil
}

func (s *PostsService) load(ctx context.Context, platform string, idea models.Idea, count int) (*models.PostsResponse, error) {
	start := time.Now()
	resp, err := s.generate(ctx, platform, idea, count)
	s.metrics.Record(StagePosts, time.Since(start), err)
	if err != nil {
		logrus.Errorf("Post generation failed for %s: %v", platform, err)
		return nil, err
	}
	return resp, nil
}

func (s *PostsService) generate(ctx context.Context, platform string, idea models.Idea, count int) (*models.PostsResponse, error) {
	messages := prompts.IdeaToPosts(platform, idea, count)

	parsed, raw, err := s.caller.CallJSON(ctx, platform, messages, postsRootKey)
	if err != nil {
		return nil, err
	}

	items, ok := parsed[postsRootKey].([]any)
	if !ok {
		return nil, &apperrors.ProtocolError{Msg: fmt.Sprintf("backend response missing '%s' list", postsRootKey)}
	}

	posts := make([]models.Post, 0, len(items))
	for _, item := range items {
		posts = append(posts, postFrom(item))
	}

	logrus.Infof("Generated %d posts for %s idea %s", len(posts), platform, idea.ID)
	return &models.PostsResponse{
		Posts: posts,
		Debug: debugPayload(messages, raw),
	}, nil
}

func postFrom(item any) models.Post {
	obj, _ := item.(map[string]any)
	text, _ := obj["post_text"].(string)
	visual, _ := obj["visual_concept"].(string)

	return models.Post{
		PostText:      text,
		VisualConcept: visual,
		Hashtags:      hashtagsFrom(obj["hashtags"]),
	}
}

// hashtagsFrom keeps string and numeric entries of a list, without their
// leading "#". Blank entries are dropped; a non-list yields an empty list.
func hashtagsFrom(v any) []string {
	tags := []string{}
	list, ok := v.([]any)
	if !ok {
		return tags
	}
	for _, item := range list {
		var tag string
		switch typed := item.(type) {
		case string:
			tag = typed
		case float64, int:
			tag = fmt.Sprint(typed)
		default:
			continue
		}
		tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
