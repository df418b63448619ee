package sources

import (
	"github.com/trendagents/trend-pipeline/internal/models"
)

// TikTokAdapter normalizes items from TikTok trend actors
type TikTokAdapter struct {
	fields fieldMap
}

// NewTikTokAdapter creates a new TikTok adapter
func NewTikTokAdapter() *TikTokAdapter {
	return &TikTokAdapter{fields: fieldMap{
		platform:   models.PlatformTikTok,
		idKeys:     []string{"id", "aweme_id", "video_id", "url"},
		titleKeys:  []string{"title", "desc", "caption"},
		untitled:   "Untitled TikTok trend",
		urlKeys:    []string{"url", "share_url"},
		viewsKeys:  []string{"playCount", "views"},
		likesKeys:  []string{"diggCount", "likes"},
		sharesKeys: []string{"shareCount", "shares"},
	}}
}

func (a *TikTokAdapter) GetName() string {
	return a.fields.platform
}

func (a *TikTokAdapter) Normalize(raw map[string]any) models.Trend {
	return a.fields.normalize(raw)
}

func (a *TikTokAdapter) DefaultInput() map[string]any {
	return nil
}
