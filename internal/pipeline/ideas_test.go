package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

func sampleTrend() models.Trend {
	views := int64(1000)
	return models.Trend{
		ID:      "123",
		Title:   "Cool dance",
		Metrics: models.TrendMetrics{Views: &views},
		Raw:     map[string]any{"aweme_id": "123"},
	}
}

func TestGenerateIdeas(t *testing.T) {
	caller := new(MockJSONCaller)
	caller.On("CallJSON", mock.Anything, "tiktok", mock.MatchedBy(func(messages []llm.Message) bool {
		return len(messages) == 3 && messages[2].Role == "user"
	}), "ideas").Return(map[string]any{
		"ideas": []any{
			map[string]any{"summary": "  Dance challenge  ", "rationale": " duets drive reach "},
			map[string]any{"id": "custom", "summary": "Behind the scenes"},
			"not an object",
			map[string]any{"id": float64(7), "summary": 42, "rationale": nil},
		},
	}, `{"ideas":[...]}`, nil)

	service := NewIdeasService(caller, sources.DefaultRegistry(), nil, nil)
	resp, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "TikTok", Trend: sampleTrend()})

	require.NoError(t, err)
	require.Len(t, resp.Ideas, 4)
	assert.Equal(t, models.Idea{ID: "idea-1", Summary: "Dance challenge", Rationale: "duets drive reach"}, resp.Ideas[0])
	assert.Equal(t, models.Idea{ID: "custom", Summary: "Behind the scenes", Rationale: ""}, resp.Ideas[1])
	assert.Equal(t, models.Idea{ID: "idea-3"}, resp.Ideas[2])
	assert.Equal(t, models.Idea{ID: "7"}, resp.Ideas[3])

	assert.Equal(t, `{"ideas":[...]}`, resp.Debug["raw_response"])
	assert.Len(t, resp.Debug["prompt"], 3)
	caller.AssertExpectations(t)
}

func TestGenerateIdeas_ContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		parsed map[string]any
	}{
		{name: "Ideas is an object", parsed: map[string]any{"ideas": map[string]any{"id": "1"}}},
		{name: "Ideas is a string", parsed: map[string]any{"ideas": "none"}},
		{name: "Ideas is null", parsed: map[string]any{"ideas": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := new(MockJSONCaller)
			caller.On("CallJSON", mock.Anything, "x", mock.Anything, "ideas").Return(tt.parsed, "{}", nil)

			service := NewIdeasService(caller, sources.DefaultRegistry(), nil, nil)
			_, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: sampleTrend()})

			require.Error(t, err)
			assert.True(t, apperrors.IsProtocol(err))
			assert.Contains(t, err.Error(), "'ideas' list")
		})
	}
}

func TestGenerateIdeas_CallerErrorPropagates(t *testing.T) {
	caller := new(MockJSONCaller)
	backendErr := &apperrors.ProtocolError{Msg: "backend did not return valid JSON", Err: errors.New("unexpected end")}
	caller.On("CallJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, "", backendErr)
	metrics := NewMetrics()

	service := NewIdeasService(caller, sources.DefaultRegistry(), nil, metrics)
	_, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "facebook", Trend: sampleTrend()})

	assert.ErrorIs(t, err, backendErr)
	assert.Equal(t, 1, metrics.Snapshot()[StageIdeas].Errors)
}

func TestGenerateIdeas_UnsupportedPlatform(t *testing.T) {
	caller := new(MockJSONCaller)
	service := NewIdeasService(caller, sources.DefaultRegistry(), nil, nil)

	_, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "vine"})

	assert.ErrorIs(t, err, apperrors.ErrUnsupportedPlatform)
	caller.AssertNotCalled(t, "CallJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateIdeas_Cache(t *testing.T) {
	caller := new(MockJSONCaller)
	caller.On("CallJSON", mock.Anything, "x", mock.Anything, "ideas").Return(map[string]any{
		"ideas": []any{map[string]any{"summary": "a"}},
	}, "{}", nil)
	store := newTestCache(t)
	service := NewIdeasService(caller, sources.DefaultRegistry(), store, nil)

	trend := sampleTrend()
	first, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: trend})
	require.NoError(t, err)
	second, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: trend})
	require.NoError(t, err)

	assert.Equal(t, first.Ideas, second.Ideas)
	assert.Nil(t, second.Debug)
	caller.AssertNumberOfCalls(t, "CallJSON", 1)

	other := trend
	other.ID = "456"
	_, err = service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: other})
	require.NoError(t, err)
	caller.AssertNumberOfCalls(t, "CallJSON", 2)

	_, err = service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: trend, Regenerate: true})
	require.NoError(t, err)
	caller.AssertNumberOfCalls(t, "CallJSON", 3)
}

func TestDebugPayload(t *testing.T) {
	debug := debugPayload([]llm.Message{{Role: "user", Content: "hi"}}, `{"ideas":[]}`)

	prompt := debug["prompt"].([]any)
	require.Len(t, prompt, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, prompt[0])
	assert.Equal(t, `{"ideas":[]}`, debug["raw_response"])
	assert.Len(t, debug, 2)
}

func TestScalarText(t *testing.T) {
	assert.Equal(t, "abc", scalarText("abc"))
	assert.Equal(t, "7", scalarText(float64(7)))
	assert.Equal(t, "1.5", scalarText(1.5))
	assert.Equal(t, "", scalarText(float64(0)))
	assert.Equal(t, "", scalarText(true))
	assert.Equal(t, "", scalarText(nil))
	assert.Equal(t, "", scalarText([]any{"a"}))
}

func TestGenerateIdeas_MissingTrendIDIsNotCached(t *testing.T) {
	caller := new(MockJSONCaller)
	caller.On("CallJSON", mock.Anything, "x", mock.Anything, "ideas").Return(map[string]any{
		"ideas": []any{map[string]any{"summary": "a"}},
	}, "{}", nil)
	store := newTestCache(t)
	service := NewIdeasService(caller, sources.DefaultRegistry(), store, nil)

	for _, title := range []string{"#AI", "#Cooking"} {
		_, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{
			Platform: "x",
			Trend:    models.Trend{Title: title},
		})
		require.NoError(t, err)
	}

	caller.AssertNumberOfCalls(t, "CallJSON", 2)
	assert.Zero(t, store.Stats().Ideas)
}

func mentions(title string) interface{} {
	return mock.MatchedBy(func(messages []llm.Message) bool {
		return len(messages) == 3 && strings.Contains(messages[2].Content, title)
	})
}

func TestGenerateIdeas_ConcurrentFills(t *testing.T) {
	payload := map[string]any{"ideas": []any{map[string]any{"summary": "a"}}}
	started := make(chan struct{})
	release := make(chan struct{})

	caller := new(MockJSONCaller)
	caller.On("CallJSON", mock.Anything, "x", mentions("Trend A"), "ideas").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(payload, "{}", nil)
	caller.On("CallJSON", mock.Anything, "x", mentions("Trend B"), "ideas").Return(payload, "{}", nil)

	store := newTestCache(t)
	service := NewIdeasService(caller, sources.DefaultRegistry(), store, nil)
	trendA := models.Trend{ID: "a", Title: "Trend A"}
	trendB := models.Trend{ID: "b", Title: "Trend B"}

	firstDone := make(chan error, 1)
	go func() {
		_, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: trendA})
		firstDone <- err
	}()
	<-started

	// another trend on the same platform is not held up by the fill for trend A
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := service.GenerateIdeas(ctx, models.IdeasRequest{Platform: "x", Trend: trendB})
	require.NoError(t, err)
	assert.Len(t, resp.Ideas, 1)

	// a caller waiting on the same fill gives up at its deadline
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	start := time.Now()
	_, err = service.GenerateIdeas(short, models.IdeasRequest{Platform: "x", Trend: trendA})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-firstDone)

	cached, err := service.GenerateIdeas(context.Background(), models.IdeasRequest{Platform: "x", Trend: trendA})
	require.NoError(t, err)
	assert.Len(t, cached.Ideas, 1)
	caller.AssertNumberOfCalls(t, "CallJSON", 2)
}
