package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/trendagents/trend-pipeline/internal/apify"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
)

// MockRunner is a mock implementation of ActorRunner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunActor(ctx context.Context, opts apify.RunOptions) (*apify.RunResult, error) {
	args := m.Called(ctx, opts)
	result, _ := args.Get(0).(*apify.RunResult)
	return result, args.Error(1)
}

// MockSummarizer is a mock implementation of TrendSummarizer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, result *apify.RunResult) string {
	args := m.Called(ctx, result)
	return args.String(0)
}

// MockJSONCaller is a mock implementation of llm.JSONCaller
type MockJSONCaller struct {
	mock.Mock
}

func (m *MockJSONCaller) CallJSON(ctx context.Context, platform string, messages []llm.Message, rootKey string) (map[string]any, string, error) {
	args := m.Called(ctx, platform, messages, rootKey)
	parsed, _ := args.Get(0).(map[string]any)
	return parsed, args.String(1), args.Error(2)
}

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendDigest(digest *models.Digest) error {
	args := m.Called(digest)
	return args.Error(0)
}
