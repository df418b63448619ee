package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/config"
)

// Refresher runs one scheduled trend refresh
type Refresher interface {
	RunRefresh() error
}

// Service handles scheduling of trend refreshes
type Service struct {
	config    *config.Config
	refresher Refresher
	cron      *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, refresher Refresher) *Service {
	return &Service{
		config:    cfg,
		refresher: refresher,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start registers the refresh job and starts the cron loop. An empty
// schedule leaves the scheduler idle.
func (s *Service) Start() error {
	if s.config.RefreshSchedule == "" {
		logrus.Info("No TRENDS_REFRESH_SCHEDULE set, scheduled refresh disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.RefreshSchedule, func() {
		logrus.Debug("Cron triggered trend refresh")
		if err := s.refresher.RunRefresh(); err != nil {
			logrus.Errorf("Scheduled trend refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid TRENDS_REFRESH_SCHEDULE %q: %w", s.config.RefreshSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q for platforms %v", s.config.RefreshSchedule, s.config.RefreshPlatforms)
	return nil
}

// Entries returns the number of registered jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logrus.Info("Scheduler stopped")
	}
}
