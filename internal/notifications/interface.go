package notifications

import "github.com/trendagents/trend-pipeline/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendDigest(digest *models.Digest) error
}
