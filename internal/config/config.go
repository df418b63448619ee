package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Trend fetch modes
const (
	TrendsModeTyped   = "typed"   // adapter-normalized trend records
	TrendsModeSummary = "summary" // LLM-ranked digest string
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Generation backend
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIBaseURL           string
	OpenAIRequestsPerMinute int

	// Job source (Apify)
	ApifyToken          string
	ApifyBaseURL        string
	ApifyTikTokActor    string
	ApifyXActor         string
	ApifyFacebookActor  string
	ApifyDefaultTimeout int // seconds, sent as waitForFinish
	ApifyExtraGrace     int // seconds of polling after waitForFinish
	ApifyForceInputJSON string

	// Pipeline behaviour
	TrendsMode string
	CacheSize  int

	// Scheduled refresh
	RefreshSchedule  string
	RefreshPlatforms []string
	RefreshLimit     int

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8000"),
		Debug: getBoolEnv("DEBUG", false),

		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIRequestsPerMinute: getIntEnv("OPENAI_REQUESTS_PER_MINUTE", 0),

		ApifyToken:          getEnv("APIFY_TOKEN", ""),
		ApifyBaseURL:        getEnv("APIFY_BASE_URL", "https://api.apify.com/v2"),
		ApifyTikTokActor:    getEnv("APIFY_TIKTOK_ACTOR", "clockworks~tiktok-trends-scraper"),
		ApifyXActor:         getEnv("APIFY_X_ACTOR", "oCAEibQtPGKXcF5MM"),
		ApifyFacebookActor:  getEnv("APIFY_FACEBOOK_ACTOR", "apify~facebook-posts-scraper"),
		ApifyDefaultTimeout: getIntEnv("APIFY_DEFAULT_TIMEOUT_SEC", 180),
		ApifyExtraGrace:     getIntEnv("APIFY_EXTRA_GRACE_SEC", 120),
		ApifyForceInputJSON: getEnv("APIFY_FORCE_INPUT_JSON", ""),

		TrendsMode: strings.ToLower(getEnv("TRENDS_MODE", TrendsModeTyped)),
		CacheSize:  getIntEnv("CACHE_SIZE", 256),

		RefreshSchedule:  getEnv("TRENDS_REFRESH_SCHEDULE", ""),
		RefreshPlatforms: getSliceEnv("REFRESH_PLATFORMS", []string{"tiktok", "x", "facebook"}),
		RefreshLimit:     getIntEnv("REFRESH_LIMIT", 5),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TrendsMode != TrendsModeTyped && c.TrendsMode != TrendsModeSummary {
		return fmt.Errorf("TRENDS_MODE must be '%s' or '%s'", TrendsModeTyped, TrendsModeSummary)
	}

	if c.ApifyDefaultTimeout < 0 || c.ApifyExtraGrace < 0 {
		return fmt.Errorf("APIFY_DEFAULT_TIMEOUT_SEC and APIFY_EXTRA_GRACE_SEC must not be negative")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// ActorFor returns the configured actor identifier for a platform.
func (c *Config) ActorFor(platform string) string {
	switch platform {
	case "tiktok":
		return c.ApifyTikTokActor
	case "x":
		return c.ApifyXActor
	case "facebook":
		return c.ApifyFacebookActor
	}
	return ""
}

// NotificationsEnabled reports whether any digest channel is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
		return out
	}
	return defaultValue
}
