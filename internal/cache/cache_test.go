package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trendagents/trend-pipeline/internal/models"
)

func newStore(t *testing.T) *Store {
	store, err := New(16)
	require.NoError(t, err)
	return store
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestStore_TrendsRoundTrip(t *testing.T) {
	store := newStore(t)
	views := int64(10)
	resp := models.TrendsResponse{
		Mode: "typed",
		Trends: []models.Trend{
			{ID: "1", Title: "a", Metrics: models.TrendMetrics{Views: &views}, Raw: map[string]any{"id": "1"}},
		},
	}

	_, ok := store.GetTrends(TrendsKey{Platform: "x"})
	assert.False(t, ok)

	store.PutTrends(TrendsKey{Platform: "x"}, resp)
	got, ok := store.GetTrends(TrendsKey{Platform: "x"})

	require.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestStore_CopiesValues(t *testing.T) {
	store := newStore(t)
	views := int64(10)
	trends := []models.Trend{{ID: "1", Title: "a", Metrics: models.TrendMetrics{Views: &views}, Raw: map[string]any{"k": "v"}}}
	store.PutTrends(TrendsKey{Platform: "x"}, models.TrendsResponse{Trends: trends})

	// mutating the stored-from value does not reach the cache
	trends[0].Title = "changed"
	trends[0].Raw["k"] = "changed"
	views = 99

	got, _ := store.GetTrends(TrendsKey{Platform: "x"})
	assert.Equal(t, "a", got.Trends[0].Title)
	assert.Equal(t, "v", got.Trends[0].Raw["k"])
	assert.Equal(t, int64(10), *got.Trends[0].Metrics.Views)

	// nor does mutating a loaded value
	got.Trends[0].Title = "changed again"
	again, _ := store.GetTrends(TrendsKey{Platform: "x"})
	assert.Equal(t, "a", again.Trends[0].Title)

	posts := []models.Post{{PostText: "p", Hashtags: []string{"go"}}}
	key := PostsKey{Platform: "x", TrendID: "1", IdeaID: "idea-1"}
	store.PutPosts(key, posts)
	posts[0].Hashtags[0] = "rust"

	gotPosts, ok := store.GetPosts(key)
	require.True(t, ok)
	assert.Equal(t, []string{"go"}, gotPosts[0].Hashtags)
}

func TestStore_IdeasAndPosts(t *testing.T) {
	store := newStore(t)
	ideasKey := IdeasKey{Platform: "tiktok", TrendID: "t1"}
	postsKey := PostsKey{Platform: "tiktok", TrendID: "t1", IdeaID: "idea-1"}

	store.PutIdeas(ideasKey, []models.Idea{{ID: "idea-1", Summary: "s"}})
	store.PutPosts(postsKey, []models.Post{{PostText: "p", Hashtags: []string{}}})

	ideas, ok := store.GetIdeas(ideasKey)
	require.True(t, ok)
	assert.Equal(t, "s", ideas[0].Summary)

	posts, ok := store.GetPosts(postsKey)
	require.True(t, ok)
	assert.NotNil(t, posts[0].Hashtags)

	_, ok = store.GetIdeas(IdeasKey{Platform: "tiktok", TrendID: "t2"})
	assert.False(t, ok)

	store.InvalidateIdeas(ideasKey)
	_, ok = store.GetIdeas(ideasKey)
	assert.False(t, ok)

	store.InvalidatePosts(postsKey)
	_, ok = store.GetPosts(postsKey)
	assert.False(t, ok)
}

func TestStore_InvalidatePlatform(t *testing.T) {
	store := newStore(t)
	store.PutTrends(TrendsKey{Platform: "x"}, models.TrendsResponse{Mode: "typed"})
	store.PutIdeas(IdeasKey{Platform: "x", TrendID: "1"}, []models.Idea{{ID: "idea-1"}})
	store.PutPosts(PostsKey{Platform: "x", TrendID: "1", IdeaID: "idea-1"}, []models.Post{{PostText: "p"}})
	store.PutTrends(TrendsKey{Platform: "tiktok"}, models.TrendsResponse{Mode: "typed"})

	removed := store.InvalidatePlatform("X")

	assert.Equal(t, 3, removed)
	assert.Equal(t, Stats{Trends: 1}, store.Stats())
	_, ok := store.GetTrends(TrendsKey{Platform: "tiktok"})
	assert.True(t, ok)
}

func TestStore_Purge(t *testing.T) {
	store := newStore(t)
	store.PutTrends(TrendsKey{Platform: "x"}, models.TrendsResponse{})
	store.PutIdeas(IdeasKey{Platform: "x"}, nil)

	store.Purge()

	assert.Equal(t, Stats{}, store.Stats())
}

func TestStore_Eviction(t *testing.T) {
	store, err := New(2)
	require.NoError(t, err)

	store.PutTrends(TrendsKey{Platform: "tiktok"}, models.TrendsResponse{})
	store.PutTrends(TrendsKey{Platform: "x"}, models.TrendsResponse{})
	store.PutTrends(TrendsKey{Platform: "facebook"}, models.TrendsResponse{})

	_, ok := store.GetTrends(TrendsKey{Platform: "tiktok"})
	assert.False(t, ok)
	assert.Equal(t, 2, store.Stats().Trends)
}

func TestStore_FillSharesInFlightResult(t *testing.T) {
	store := newStore(t)
	key := IdeasKey{Platform: "x", TrendID: "1"}
	release := make(chan struct{})
	var calls int32

	fill := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "ideas", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := store.Fill(context.Background(), key, fill)
			assert.NoError(t, err)
			results[i] = val
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	// let the waiters join the in-flight fill
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, val := range results {
		assert.Equal(t, "ideas", val)
	}
}

func TestStore_FillIndependentKeys(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	defer close(release)

	go store.Fill(context.Background(), IdeasKey{Platform: "x", TrendID: "a"}, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})

	tests := []any{
		IdeasKey{Platform: "x", TrendID: "b"},
		TrendsKey{Platform: "x"},
		PostsKey{Platform: "x", TrendID: "a", IdeaID: "idea-1"},
	}
	for _, key := range tests {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		val, err := store.Fill(ctx, key, func(ctx context.Context) (any, error) { return "done", nil })
		cancel()

		require.NoError(t, err, "%#v", key)
		assert.Equal(t, "done", val)
	}
}

func TestStore_FillHonoursContext(t *testing.T) {
	store := newStore(t)
	key := TrendsKey{Platform: "tiktok"}
	release := make(chan struct{})
	finished := make(chan struct{})

	go store.Fill(context.Background(), key, func(ctx context.Context) (any, error) {
		<-release
		close(finished)
		return nil, nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := store.Fill(ctx, key, func(ctx context.Context) (any, error) { return nil, nil })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	expired, cancelExpired := context.WithCancel(context.Background())
	cancelExpired()
	_, err = store.Fill(expired, TrendsKey{Platform: "x"}, func(ctx context.Context) (any, error) {
		t.Error("fill must not start for a cancelled context")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-finished
}

func TestStore_FillOutlivesCaller(t *testing.T) {
	store := newStore(t)
	key := PostsKey{Platform: "x", TrendID: "1", IdeaID: "idea-1"}
	stored := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := store.Fill(ctx, key, func(fillCtx context.Context) (any, error) {
		<-ctx.Done()
		assert.NoError(t, fillCtx.Err())
		store.PutPosts(key, []models.Post{{PostText: "late"}})
		close(stored)
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-stored
	posts, ok := store.GetPosts(key)
	require.True(t, ok)
	assert.Equal(t, "late", posts[0].PostText)
}

func TestFlightKey(t *testing.T) {
	assert.NotEqual(t,
		flightKey(IdeasKey{Platform: "x", TrendID: "1"}),
		flightKey(PostsKey{Platform: "x", TrendID: "1"}))
	assert.NotEqual(t,
		flightKey(PostsKey{Platform: "x", TrendID: "a b", IdeaID: "c"}),
		flightKey(PostsKey{Platform: "x", TrendID: "a", IdeaID: "b c"}))
}
