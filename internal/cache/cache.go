// Package cache keeps recent pipeline results in memory, keyed by platform
// and, below that, by trend and idea identifiers.
package cache

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/trendagents/trend-pipeline/internal/models"
	"golang.org/x/sync/singleflight"
)

// TrendsKey addresses the trend list of a platform
type TrendsKey struct {
	Platform string
}

// IdeasKey addresses the ideas generated for one trend
type IdeasKey struct {
	Platform string
	TrendID  string
}

// PostsKey addresses the posts generated for one idea
type PostsKey struct {
	Platform string
	TrendID  string
	IdeaID   string
}

// Stats reports the number of live entries per stage
type Stats struct {
	Trends int `json:"trends"`
	Ideas  int `json:"ideas"`
	Posts  int `json:"posts"`
}

// Store is a size-bounded, concurrency-safe result cache
type Store struct {
	trends *lru.Cache[TrendsKey, models.TrendsResponse]
	ideas  *lru.Cache[IdeasKey, []models.Idea]
	posts  *lru.Cache[PostsKey, []models.Post]

	fills singleflight.Group
}

// New creates a store holding at most size entries per stage
func New(size int) (*Store, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	trends, err := lru.New[TrendsKey, models.TrendsResponse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create trends cache: %w", err)
	}
	ideas, err := lru.New[IdeasKey, []models.Idea](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create ideas cache: %w", err)
	}
	posts, err := lru.New[PostsKey, []models.Post](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create posts cache: %w", err)
	}
	return &Store{
		trends: trends,
		ideas:  ideas,
		posts:  posts,
	}, nil
}

// Fill runs fill for key unless a fill for the same key is already in
// flight, in which case the caller shares that result. Fills for different
// keys never wait on each other. A caller stops waiting as soon as ctx is
// done; the fill itself runs on a context without cancellation so its
// result can still be stored for later callers.
func (s *Store) Fill(ctx context.Context, key any, fill func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := s.fills.DoChan(flightKey(key), func() (any, error) {
		return fill(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func flightKey(key any) string {
	return fmt.Sprintf("%#v", key)
}

func (s *Store) GetTrends(key TrendsKey) (models.TrendsResponse, bool) {
	resp, ok := s.trends.Get(key)
	if !ok {
		return models.TrendsResponse{}, false
	}
	return cloneTrendsResponse(resp), true
}

func (s *Store) PutTrends(key TrendsKey, resp models.TrendsResponse) {
	s.trends.Add(key, cloneTrendsResponse(resp))
}

func (s *Store) GetIdeas(key IdeasKey) ([]models.Idea, bool) {
	ideas, ok := s.ideas.Get(key)
	if !ok {
		return nil, false
	}
	return cloneIdeas(ideas), true
}

func (s *Store) PutIdeas(key IdeasKey, ideas []models.Idea) {
	s.ideas.Add(key, cloneIdeas(ideas))
}

func (s *Store) InvalidateIdeas(key IdeasKey) {
	s.ideas.Remove(key)
}

func (s *Store) GetPosts(key PostsKey) ([]models.Post, bool) {
	posts, ok := s.posts.Get(key)
	if !ok {
		return nil, false
	}
	return clonePosts(posts), true
}

func (s *Store) PutPosts(key PostsKey, posts []models.Post) {
	s.posts.Add(key, clonePosts(posts))
}

func (s *Store) InvalidatePosts(key PostsKey) {
	s.posts.Remove(key)
}

// InvalidatePlatform drops every entry, at every stage, for the platform.
// It returns the number of entries removed.
func (s *Store) InvalidatePlatform(platform string) int {
	platform = strings.ToLower(platform)
	removed := 0

	for _, key := range s.trends.Keys() {
		if key.Platform == platform && s.trends.Remove(key) {
			removed++
		}
	}
	for _, key := range s.ideas.Keys() {
		if key.Platform == platform && s.ideas.Remove(key) {
			removed++
		}
	}
	for _, key := range s.posts.Keys() {
		if key.Platform == platform && s.posts.Remove(key) {
			removed++
		}
	}
	return removed
}

// Purge empties the store
func (s *Store) Purge() {
	s.trends.Purge()
	s.ideas.Purge()
	s.posts.Purge()
}

func (s *Store) Stats() Stats {
	return Stats{
		Trends: s.trends.Len(),
		Ideas:  s.ideas.Len(),
		Posts:  s.posts.Len(),
	}
}

func cloneTrendsResponse(resp models.TrendsResponse) models.TrendsResponse {
	out := resp
	out.Trends = cloneTrends(resp.Trends)
	out.Debug = cloneMap(resp.Debug)
	return out
}

func cloneTrends(trends []models.Trend) []models.Trend {
	if trends == nil {
		return nil
	}
	out := make([]models.Trend, len(trends))
	for i, trend := range trends {
		out[i] = trend
		out[i].Raw = cloneMap(trend.Raw)
		out[i].Metrics = models.TrendMetrics{
			Views:  cloneInt(trend.Metrics.Views),
			Likes:  cloneInt(trend.Metrics.Likes),
			Shares: cloneInt(trend.Metrics.Shares),
		}
	}
	return out
}

func cloneIdeas(ideas []models.Idea) []models.Idea {
	if ideas == nil {
		return nil
	}
	out := make([]models.Idea, len(ideas))
	copy(out, ideas)
	return out
}

func clonePosts(posts []models.Post) []models.Post {
	if posts == nil {
		return nil
	}
	out := make([]models.Post, len(posts))
	for i, post := range posts {
		out[i] = post
		if post.Hashtags != nil {
			out[i].Hashtags = make([]string, len(post.Hashtags))
			copy(out[i].Hashtags, post.Hashtags)
		}
	}
	return out
}

// cloneMap copies the top level only; nested values are shared.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInt(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
