package apify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/count"
	"github.com/trendagents/trend-pipeline/internal/llm"
)

// Fixed digest strings returned instead of an error
const (
	NoDatasetSummary     = "No dataset returned."
	NoTrendsSummary      = "No trending data available."
	SummaryErrorFallback = "Error summarizing trends."
)

const (
	summaryInputItems = 20
	summaryMaxTokens  = 250
	unknownCount      = "Unknown"
	untitled          = "Untitled"
)

// Keys tried, in order, across the various trend actors.
var (
	titleKeys = []string{"trend", "hashtag", "title", "keyword", "name", "text", "query"}
	countKeys = []string{"volume", "views", "tweetCount", "impressions", "tweet_volume"}
)

// Completer produces a free-form completion
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, maxTokens int) (string, error)
}

// RankedItem is a dataset item reduced to a title and a count
type RankedItem struct {
	Title        string `json:"title"`
	Count        int64  `json:"count"` // -1 when no count could be parsed
	DisplayCount string `json:"display_count"`
}

// Summarizer turns raw dataset items into a ranked text digest
type Summarizer struct {
	completer Completer
}

// NewSummarizer creates a summarizer backed by the given completer.
func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize ranks the run's items and asks the backend for a top-10 digest.
// Backend failures degrade to SummaryErrorFallback.
func (s *Summarizer) Summarize(ctx context.Context, result *RunResult) string {
	if result == nil || result.NoDataset {
		return NoDatasetSummary
	}

	ranked := RankItems(result.Items)
	if len(ranked) == 0 {
		return NoTrendsSummary
	}

	limit := summaryInputItems
	if len(ranked) < limit {
		limit = len(ranked)
	}
	bullets := make([]string, 0, limit)
	for _, item := range ranked[:limit] {
		bullets = append(bullets, fmt.Sprintf("- %s: %s", item.Title, item.DisplayCount))
	}

	messages := []llm.Message{
		{Role: "system", Content: "You are a concise summarizer of trending topics."},
		{Role: "user", Content: "Return the top 10 trends sorted by count in the format '1. Title — Count'."},
		{Role: "user", Content: strings.Join(bullets, "\n")},
	}

	text, err := s.completer.Complete(ctx, messages, summaryMaxTokens)
	if err != nil {
		logrus.Errorf("Failed to summarize items: %v", err)
		return SummaryErrorFallback
	}
	return strings.TrimSpace(text)
}

// RankItems reduces object items to title/count pairs sorted by count,
// highest first. Items without a parsed count keep their relative order
// after every counted item. Non-object items are skipped.
func RankItems(items []any) []RankedItem {
	ranked := make([]RankedItem, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		n, display := extractCount(item)
		value := int64(-1)
		if n != nil {
			value = *n
		}
		ranked = append(ranked, RankedItem{
			Title:        extractTitle(item),
			Count:        value,
			DisplayCount: display,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

func extractTitle(item map[string]any) string {
	for _, key := range titleKeys {
		if v, ok := item[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return untitled
}

// extractCount returns the first parseable count. A key whose value only
// yields display text ends the search with that text.
func extractCount(item map[string]any) (*int64, string) {
	for _, key := range countKeys {
		v, ok := item[key]
		if !ok {
			continue
		}
		n, display := count.Normalize(v)
		if n != nil {
			if display == "" {
				display = count.Group(*n)
			}
			return n, display
		}
		if display != "" {
			return nil, display
		}
	}
	return nil, unknownCount
}
