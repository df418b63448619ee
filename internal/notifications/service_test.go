package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/models"
	"gopkg.in/gomail.v2"
)

func sampleDigest() *models.Digest {
	views := int64(12500)
	likes := int64(300)
	return &models.Digest{
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Platform:    models.PlatformX,
		Mode:        "typed",
		Trends: []models.Trend{
			{ID: "1", Title: "#AI", URL: "https://x.com/hashtag/AI", Metrics: models.TrendMetrics{Views: &views, Likes: &likes}},
			{ID: "2", Title: "#Go"},
		},
	}
}

func TestSendDigest_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := NewService(&config.Config{TeamsWebhookURL: server.URL})
	err := service.SendDigest(sampleDigest())

	require.NoError(t, err)
	assert.Equal(t, "MessageCard", received.Type)
	assert.Equal(t, "X Trends Digest", received.Title)
	require.Len(t, received.Sections, 1)
	require.Len(t, received.Sections[0].Facts, 2)
	assert.Equal(t, "1. [#AI](https://x.com/hashtag/AI)", received.Sections[0].Facts[0].Name)
	assert.Equal(t, "Views: 12,500 | Likes: 300", received.Sections[0].Facts[0].Value)
	assert.Equal(t, "No metrics", received.Sections[0].Facts[1].Value)
}

func TestSendDigest_TeamsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad card"))
	}))
	defer server.Close()

	service := NewService(&config.Config{TeamsWebhookURL: server.URL})
	err := service.SendDigest(sampleDigest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams: Teams webhook returned status 400")
}

func TestSendDigest_Email(t *testing.T) {
	cfg := &config.Config{
		NotificationEmail: "team@example.com",
		SMTPHost:          "smtp.example.com",
		SMTPPort:          587,
		SMTPUsername:      "bot@example.com",
		SMTPPassword:      "secret",
	}
	service := NewService(cfg)

	var sent *gomail.Message
	service.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	require.NoError(t, service.SendDigest(sampleDigest()))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"team@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"bot@example.com"}, sent.GetHeader("From"))
	assert.Equal(t, []string{"X Trends Digest"}, sent.GetHeader("Subject"))
}

func TestSendDigest_ContinuesAfterChannelFailure(t *testing.T) {
	teamsCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		teamsCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := NewService(&config.Config{
		TeamsWebhookURL:   server.URL,
		NotificationEmail: "team@example.com",
	})
	service.send = func(m *gomail.Message) error {
		return errors.New("connection refused")
	}

	err := service.SendDigest(sampleDigest())

	require.Error(t, err)
	assert.True(t, teamsCalled)
	assert.Contains(t, err.Error(), "Email: failed to send email: connection refused")
	assert.NotContains(t, err.Error(), "Teams:")
}

func TestSendDigest_NoChannels(t *testing.T) {
	service := NewService(&config.Config{})
	assert.NoError(t, service.SendDigest(sampleDigest()))
}

func TestBuildTeamsMessage_Summary(t *testing.T) {
	digest := &models.Digest{
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Platform:    models.PlatformTikTok,
		Mode:        "summary",
		Summary:     "1. Dance — 2,000",
	}

	message := buildTeamsMessage(digest)

	assert.Equal(t, "TikTok Trends Digest", message.Title)
	assert.Equal(t, "Generated 2026-03-02 09:00:00 UTC", message.Text)
	require.Len(t, message.Sections, 1)
	assert.Equal(t, "Summary", message.Sections[0].ActivityTitle)
	assert.Equal(t, "1. Dance — 2,000", message.Sections[0].ActivityText)
}

func TestBuildEmailText(t *testing.T) {
	text := buildEmailText(sampleDigest())

	assert.Contains(t, text, "X Trends Digest\n")
	assert.Contains(t, text, "Generated: 2026-03-02 09:00:00 UTC")
	assert.Contains(t, text, "1. #AI\n   Views: 12,500 | Likes: 300\n   URL: https://x.com/hashtag/AI")
	assert.Contains(t, text, "2. #Go\n   No metrics")
	assert.NotContains(t, text, "SUMMARY")
}

func TestBuildEmailHTML(t *testing.T) {
	html, err := buildEmailHTML(sampleDigest())

	require.NoError(t, err)
	assert.Contains(t, html, "<title>X Trends Digest</title>")
	assert.Contains(t, html, `<a href="https://x.com/hashtag/AI" target="_blank">#AI</a>`)
	assert.Contains(t, html, "<strong>#Go</strong>")
	assert.Contains(t, html, "March 2, 2026 at 9:00 AM UTC")
}

func TestTopTrends_Capped(t *testing.T) {
	digest := &models.Digest{}
	for i := 0; i < 15; i++ {
		digest.Trends = append(digest.Trends, models.Trend{Title: "t"})
	}

	assert.Len(t, topTrends(digest), 10)
}
