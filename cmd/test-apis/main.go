package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/trendagents/trend-pipeline/internal/apify"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/models"
	"github.com/trendagents/trend-pipeline/internal/pipeline"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

const sampleLimit = 3

func main() {
	fmt.Println("🔍 Trend Pipeline - API Connectivity Check")
	fmt.Println("======================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	llmClient := llm.NewClientFromConfig(cfg)
	registry := sources.DefaultRegistry()
	trends := pipeline.NewTrendService(cfg, apify.NewClientFromConfig(cfg), apify.NewSummarizer(llmClient), registry, nil, nil)
	ideas := pipeline.NewIdeasService(llm.NewStructured(llmClient, llm.PurposeIdeas), registry, nil, nil)

	timeout := time.Duration(cfg.ApifyDefaultTimeout+cfg.ApifyExtraGrace+60) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("\n📡 Probing job source (mode: %s)...\n", cfg.TrendsMode)
	fmt.Println(strings.Repeat("-", 40))

	var sample *models.Trend
	var samplePlatform string
	for _, platform := range registry.Platforms() {
		trend := checkPlatform(ctx, trends, platform)
		if sample == nil && trend != nil {
			sample, samplePlatform = trend, platform
		}
	}

	fmt.Println("\n🧠 Probing generation backend...")
	fmt.Println(strings.Repeat("-", 40))
	if cfg.OpenAIAPIKey == "" {
		fmt.Println("⚠️  SKIPPED (OPENAI_API_KEY not set)")
	} else if sample == nil {
		fmt.Println("⚠️  SKIPPED (no trend to generate ideas from)")
	} else {
		checkIdeas(ctx, ideas, samplePlatform, *sample)
	}

	fmt.Println("\n✅ Connectivity check completed!")
}

func checkPlatform(ctx context.Context, trends *pipeline.TrendService, platform string) *models.Trend {
	fmt.Printf("🔸 Fetching %s trends... ", platform)

	resp, err := trends.FetchTrends(ctx, models.TrendRequest{Platform: platform, Limit: sampleLimit})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return nil
	}

	if resp.Mode == config.TrendsModeSummary {
		fmt.Printf("✅ SUCCESS\n")
		for _, line := range strings.Split(resp.Summary, "\n") {
			fmt.Printf("   %s\n", line)
		}
		return nil
	}

	fmt.Printf("✅ SUCCESS (%d trends)\n", len(resp.Trends))
	if len(resp.Trends) == 0 {
		return nil
	}
	fmt.Printf("   📝 Sample: %q\n", resp.Trends[0].Title)
	return &resp.Trends[0]
}

func checkIdeas(ctx context.Context, ideas *pipeline.IdeasService, platform string, trend models.Trend) {
	fmt.Printf("🔸 Generating ideas for %q... ", trend.Title)

	resp, err := ideas.GenerateIdeas(ctx, models.IdeasRequest{Platform: platform, Trend: trend})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d ideas)\n", len(resp.Ideas))
	for _, idea := range resp.Ideas {
		fmt.Printf("   • %s\n", idea.Summary)
	}
}
