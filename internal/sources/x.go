package sources

import (
	"github.com/trendagents/trend-pipeline/internal/models"
)

// XAdapter normalizes items from X (Twitter) trend actors
type XAdapter struct {
	fields fieldMap
}

// NewXAdapter creates a new X adapter
func NewXAdapter() *XAdapter {
	return &XAdapter{fields: fieldMap{
		platform:   models.PlatformX,
		idKeys:     []string{"id", "name", "topic"},
		titleKeys:  []string{"title", "name", "topic"},
		untitled:   "Untitled X trend",
		urlKeys:    []string{"url", "link"},
		viewsKeys:  []string{"tweet_volume", "views"},
		likesKeys:  []string{"likes"},
		sharesKeys: []string{"retweets", "quotes"},
	}}
}

func (a *XAdapter) GetName() string {
	return a.fields.platform
}

func (a *XAdapter) Normalize(raw map[string]any) models.Trend {
	return a.fields.normalize(raw)
}

// DefaultInput targets the live worldwide trends of the trends-by-country actor.
// The proxy is off because organization tokens often lack proxy access.
func (a *XAdapter) DefaultInput() map[string]any {
	return map[string]any{
		"country":      "2",
		"live":         true,
		"hour1":        false,
		"hour3":        false,
		"hour6":        false,
		"hour12":       false,
		"hour24":       false,
		"day2":         false,
		"day3":         false,
		"proxyOptions": map[string]any{"useApifyProxy": false},
	}
}
