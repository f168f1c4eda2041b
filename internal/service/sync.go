package service

import (
	"context"
	"time"

	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Syncer combines the bulk scan with a retry sweep over all not-yet-uploaded
// messages and records the last successful sync time.
type Syncer struct {
	store    Store
	pipeline *Pipeline
	uploader UploadClient
	logger   *logrus.Logger
}

func NewSyncer(store Store, pipeline *Pipeline, uploader UploadClient, logger *logrus.Logger) *Syncer {
	return &Syncer{
		store:    store,
		pipeline: pipeline,
		uploader: uploader,
		logger:   logger,
	}
}

// Sync pulls anything new from the gateway, re-attempts upload for every
// pending message, and records the sync time. The scan is silent: periodic
// and sync-triggered scans must not interrupt the user.
func (s *Syncer) Sync(ctx context.Context) models.SyncResult {
	ctx, span := tracing.StartSpan(ctx, "sync.run")
	defer span.End()

	ingested := s.pipeline.ScanRecent(ctx, true)

	result := s.retryPending(ctx)
	result.Ingested = ingested

	if err := s.store.SetLastSyncTime(ctx, time.Now().UnixMilli()); err != nil {
		s.logger.WithError(err).Error("Failed to record last sync time")
	}

	tracing.AddSpanAttributes(ctx,
		attribute.Int("sync.ingested", result.Ingested),
		attribute.Int("sync.uploaded", result.Uploaded),
		attribute.Int("sync.failed", result.Failed),
	)

	s.logger.WithFields(logrus.Fields{
		"ingested": result.Ingested,
		"uploaded": result.Uploaded,
		"failed":   result.Failed,
	}).Info("Sync completed")

	return result
}

// RetryFailedUploads is the retry sweep without the scan step, for the
// lighter-weight manual action.
func (s *Syncer) RetryFailedUploads(ctx context.Context) models.SyncResult {
	ctx, span := tracing.StartSpan(ctx, "sync.retry_failed")
	defer span.End()

	result := s.retryPending(ctx)

	s.logger.WithFields(logrus.Fields{
		"uploaded": result.Uploaded,
		"failed":   result.Failed,
	}).Info("Retry sweep completed")

	return result
}

// retryPending sweeps every stored message with uploaded=false. With nothing
// pending it returns a zero result without touching the network.
func (s *Syncer) retryPending(ctx context.Context) models.SyncResult {
	messages := s.store.Messages(ctx)

	var pending []models.Message
	for _, msg := range messages {
		if !msg.Uploaded {
			pending = append(pending, msg)
		}
	}

	if len(pending) == 0 {
		return models.SyncResult{}
	}

	return attemptUploads(ctx, s.store, s.uploader, s.logger, pending)
}

// attemptUploads is the single retry-sweep primitive behind both the
// immediate post-ingest attempt (scope: one message) and the sync sweeps
// (scope: all pending). Messages are attempted sequentially: each outcome is
// persisted before the next attempt starts, keeping the delivery log and
// attempt counters consistent and avoiding bursts against the endpoint.
func attemptUploads(ctx context.Context, store Store, uploader UploadClient, logger *logrus.Logger, messages []models.Message) models.SyncResult {
	var result models.SyncResult

	for _, msg := range messages {
		outcome := uploader.Upload(ctx, msg)

		if outcome.Success {
			msg.Uploaded = true
			result.Uploaded++
		} else {
			msg.UploadAttempts++
			result.Failed++
			logger.WithFields(logrus.Fields{
				"messageId": privacy.MaskMessageID(msg.ID),
				"attempts":  msg.UploadAttempts,
				"error":     outcome.Error,
			}).Warn("Upload attempt failed")
		}

		// Best effort: the upload already happened, a failed flag write only
		// risks a redundant retry after restart.
		if err := store.UpdateMessage(ctx, msg); err != nil {
			logger.WithError(err).Error("Failed to persist upload outcome")
		}
	}

	return result
}
