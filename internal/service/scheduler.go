package service

import (
	"context"
	"time"

	"smsrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler runs the sync operation on a fixed interval, replacing the
// original app's foreground refresh timer.
type Scheduler struct {
	syncer      *Syncer
	intervalMin int
	logger      *logrus.Logger
	stopCh      chan struct{}
}

func NewScheduler(syncer *Syncer, intervalMin int, logger *logrus.Logger) *Scheduler {
	if intervalMin <= 0 {
		intervalMin = constants.DefaultSyncIntervalMin
	}
	return &Scheduler{
		syncer:      syncer,
		intervalMin: intervalMin,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalMin) * time.Minute)
	defer ticker.Stop()

	s.logger.WithField("intervalMin", s.intervalMin).Info("Starting sync scheduler")

	s.runSync(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runSync(ctx context.Context) {
	s.logger.Debug("Running scheduled sync")

	result := s.syncer.Sync(ctx)

	if result.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"uploaded": result.Uploaded,
			"failed":   result.Failed,
		}).Warn("Scheduled sync left messages pending")
	}
}
