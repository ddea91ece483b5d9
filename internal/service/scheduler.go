package service

import (
	"context"
	"sync"
	"time"

	"swimnotify/internal/constants"
	"swimnotify/internal/metrics"

	"github.com/sirupsen/logrus"
)

// LogPurger removes message log entries past their expiry
type LogPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler periodically purges expired message log entries
type Scheduler struct {
	store    LogPurger
	interval time.Duration
	logger   logrus.FieldLogger
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewScheduler(store LogPurger, intervalMinutes int, logger logrus.FieldLogger) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = constants.DefaultPurgeIntervalMin
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		store:    store,
		interval: time.Duration(intervalMinutes) * time.Minute,
		logger:   logger.WithField(LogFieldComponent, "purge"),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start purges once and then on every interval until ctx is done or Stop
// is called
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting message log purge scheduler")

	s.runPurge(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runPurge(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runPurge(ctx context.Context) {
	removed, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge expired message logs")
		return
	}
	metrics.Default().Add(metrics.LogEntriesPurged, float64(removed), nil)
	if removed > 0 {
		s.logger.WithField(LogFieldCount, removed).Info("Purged expired message logs")
	}
}
