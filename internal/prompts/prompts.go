// Package prompts builds the chat messages sent to the generation backend
// for the ideas and posts stages.
package prompts

import (
	"fmt"
	"strings"

	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
)

const IdeasPerTrend = 5

var styleGuidance = map[string]string{
	models.PlatformTikTok: "TikTok style: 15-45s energetic videos, leverage trending sounds, quick cuts, captions on-screen. " +
		"Encourage hooks in first 2 seconds and mention duet/stitch options when relevant.",
	models.PlatformX: "X style: concise 1-2 sentence posts under 260 characters, leverage threads, quotes, and topical hashtags. " +
		"Assume casual yet authoritative tone.",
	models.PlatformFacebook: "Facebook style: mix of short paragraphs, emojis sparingly, refer to groups/events/pages. " +
		"Highlight community interaction and call-to-action for comments or shares.",
}

// StyleGuidance returns the tone and format notes for a platform, or an
// empty string for unknown platforms.
func StyleGuidance(platform string) string {
	return styleGuidance[platform]
}

// TrendToIdeas builds the messages asking for IdeasPerTrend ideas under the "ideas" key.
func TrendToIdeas(platform string, trend models.Trend) []llm.Message {
	title := strings.TrimSpace(trend.Title)
	if title == "" {
		title = "Unknown trend"
	}

	user := fmt.Sprintf("Platform: %s. Trend title: %s. Metrics: %s. "+
		"Return exactly %d ideas in JSON array format under key 'ideas'. Each idea must include 'id', 'summary', and 'rationale'. "+
		"Follow platform conventions and stay within brand-safe territory.",
		platform, title, metricsSummary(trend.Metrics), IdeasPerTrend)

	return []llm.Message{
		{
			Role: "system",
			Content: "You are a senior social strategist. Output strictly valid JSON per the provided schema. " +
				"Avoid ambiguous language. Reject or reframe disallowed content per policy.",
		},
		{
			Role: "developer",
			Content: fmt.Sprintf("Given a trend title and minimal context, create %d distinct, creative post ideas tailored to the platform. "+
				"Each idea should have a one-sentence summary and a short rationale that references known platform conventions "+
				"(e.g., sounds/duets/cuts for TikTok; threads/quotes for X; groups/pages/reels for Facebook). Avoid brand-unsafe topics. "+
				"Style guidance: %s", IdeasPerTrend, StyleGuidance(platform)),
		},
		{Role: "user", Content: user},
	}
}

// IdeaToPosts builds the messages asking for count posts under the "posts" key.
func IdeaToPosts(platform string, idea models.Idea, count int) []llm.Message {
	summary := strings.TrimSpace(idea.Summary)
	if summary == "" {
		summary = "Unknown idea"
	}

	user := fmt.Sprintf("Platform: %s. Idea summary: %s. Generate exactly %d posts in JSON under key 'posts'. "+
		"Each post needs 'post_text', 'visual_concept', and 'hashtags' (list of 5-8 items). Ensure copy is platform-appropriate and safe.",
		platform, summary, count)

	return []llm.Message{
		{
			Role: "system",
			Content: "You are an expert copywriter and concept developer. Output strictly valid JSON per the provided schema. " +
				"Avoid ambiguous wording. Comply with all safety policies.",
		},
		{
			Role: "developer",
			Content: fmt.Sprintf("Generate %d complete, publish-ready posts for the specified platform. Each post must include: post_text, "+
				"visual_concept (a short scene plan suitable for either a single image or a 10-30s video), and 5-8 platform-appropriate hashtags. "+
				"Follow platform length and tone norms. Be original; do not reuse the same concept. "+
				"Style guidance: %s", count, StyleGuidance(platform)),
		},
		{Role: "user", Content: user},
	}
}

func metricsSummary(m models.TrendMetrics) string {
	var parts []string
	for _, metric := range []struct {
		name  string
		value *int64
	}{
		{"views", m.Views},
		{"likes", m.Likes},
		{"shares", m.Shares},
	} {
		if metric.value != nil {
			parts = append(parts, fmt.Sprintf("%s: %d", metric.name, *metric.value))
		}
	}
	if len(parts) == 0 {
		return "no metrics provided"
	}
	return strings.Join(parts, ", ")
}
