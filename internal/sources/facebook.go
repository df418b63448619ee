package sources

import (
	"github.com/trendagents/trend-pipeline/internal/models"
)

// FacebookAdapter normalizes items from Facebook post and group actors
type FacebookAdapter struct {
	fields fieldMap
}

// NewFacebookAdapter creates a new Facebook adapter
func NewFacebookAdapter() *FacebookAdapter {
	return &FacebookAdapter{fields: fieldMap{
		platform:   models.PlatformFacebook,
		idKeys:     []string{"id", "post_id", "group_id"},
		titleKeys:  []string{"title", "name", "headline"},
		untitled:   "Untitled Facebook trend",
		urlKeys:    []string{"url", "link"},
		viewsKeys:  []string{"views"},
		likesKeys:  []string{"likes"},
		sharesKeys: []string{"shares"},
	}}
}

func (a *FacebookAdapter) GetName() string {
	return a.fields.platform
}

func (a *FacebookAdapter) Normalize(raw map[string]any) models.Trend {
	return a.fields.normalize(raw)
}

func (a *FacebookAdapter) DefaultInput() map[string]any {
	return nil
}
