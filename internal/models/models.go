package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Supported platforms
const (
	PlatformTikTok   = "tiktok"
	PlatformX        = "x"
	PlatformFacebook = "facebook"
)

// Platforms lists every platform the pipeline can serve, in display order.
var Platforms = []string{PlatformTikTok, PlatformX, PlatformFacebook}

// TrendMetrics holds the engagement counters scraped for a trend.
type TrendMetrics struct {
	Views  *int64 `json:"views"`
	Likes  *int64 `json:"likes"`
	Shares *int64 `json:"shares"`
}

// Trend represents one scraped trending item
type Trend struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	URL     string         `json:"url,omitempty"`
	Metrics TrendMetrics   `json:"metrics"`
	Raw     map[string]any `json:"raw"`
}

// Idea is a candidate content concept derived from a trend
type Idea struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Rationale string `json:"rationale"`
}

// Post is a publish-ready content unit derived from an idea.
// Hashtags are stored without the leading "#".
type Post struct {
	PostText      string   `json:"post_text"`
	VisualConcept string   `json:"visual_concept"`
	Hashtags      []string `json:"hashtags"`
}

// RenderHashtags returns the hashtags joined for display, each prefixed with "#".
func (p Post) RenderHashtags() string {
	tags := make([]string, 0, len(p.Hashtags))
	for _, tag := range p.Hashtags {
		tags = append(tags, "#"+tag)
	}
	return strings.Join(tags, " ")
}

// TrendRequest asks for the current trends of a platform
type TrendRequest struct {
	Platform   string `json:"platform"`
	Limit      int    `json:"limit"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// TrendsResponse carries either typed trends or a ranked digest, depending on mode.
type TrendsResponse struct {
	Mode    string         `json:"mode"`
	Trends  []Trend        `json:"trends,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Debug   map[string]any `json:"debug,omitempty"`
}

// MarshalJSON emits "trends" as a list in typed mode, even an empty one.
// Summary responses leave it out.
func (r TrendsResponse) MarshalJSON() ([]byte, error) {
	type plain TrendsResponse
	if r.Mode == "summary" {
		return json.Marshal(plain(r))
	}
	trends := r.Trends
	if trends == nil {
		trends = []Trend{}
	}
	return json.Marshal(struct {
		plain
		Trends []Trend `json:"trends"`
	}{plain: plain(r), Trends: trends})
}

// IdeasRequest asks for ideas derived from one trend
type IdeasRequest struct {
	Platform   string `json:"platform"`
	Trend      Trend  `json:"trend"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// IdeasResponse is returned by the ideas stage
type IdeasResponse struct {
	Ideas []Idea         `json:"ideas"`
	Debug map[string]any `json:"debug,omitempty"`
}

// PostsRequest asks for posts expanding one idea.
// TrendID is optional and only scopes the cache entry.
type PostsRequest struct {
	Platform   string `json:"platform"`
	TrendID    string `json:"trend_id,omitempty"`
	Idea       Idea   `json:"idea"`
	Count      int    `json:"count"`
	Regenerate bool   `json:"regenerate,omitempty"`
}

// PostsResponse is returned by the posts stage
type PostsResponse struct {
	Posts []Post         `json:"posts"`
	Debug map[string]any `json:"debug,omitempty"`
}

// Digest is a scheduled trend snapshot pushed to notification channels
type Digest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Platform    string    `json:"platform"`
	Mode        string    `json:"mode"`
	Trends      []Trend   `json:"trends,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}
