package sources

import (
	"fmt"
	"strings"

	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/models"
)

// Adapter maps one platform's raw actor items onto the Trend shape
type Adapter interface {
	GetName() string
	Normalize(raw map[string]any) models.Trend
	// DefaultInput is the actor input used when neither the caller nor the
	// operator override supplied any field. It may be nil.
	DefaultInput() map[string]any
}

// Registry resolves platform names to adapters
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates a registry from the given adapters. A later adapter
// with the same name replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// DefaultRegistry returns a registry holding the TikTok, X and Facebook adapters.
func DefaultRegistry() *Registry {
	return NewRegistry(NewTikTokAdapter(), NewXAdapter(), NewFacebookAdapter())
}

// Register adds or replaces an adapter
func (r *Registry) Register(adapter Adapter) {
	name := strings.ToLower(adapter.GetName())
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = adapter
}

// Lookup returns the adapter for a platform. Matching is case-insensitive.
func (r *Registry) Lookup(platform string) (Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedPlatform, platform)
	}
	return adapter, nil
}

// Platforms lists registered platform names in registration order.
func (r *Registry) Platforms() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
