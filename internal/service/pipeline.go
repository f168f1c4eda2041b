package service

import (
	"context"
	"fmt"

	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/gateway"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Store is the message store surface the pipeline and sync sweep depend on.
type Store interface {
	Messages(ctx context.Context) []models.Message
	SaveMessage(ctx context.Context, msg models.Message) error
	UpdateMessage(ctx context.Context, msg models.Message) error
	AllowedSenders(ctx context.Context) []string
	LastSyncTime(ctx context.Context) int64
	SetLastSyncTime(ctx context.Context, ts int64) error
}

// SMSGateway is the external capability that reads the device inbox and
// reports permission state.
type SMSGateway interface {
	RecentMessages(ctx context.Context) ([]gateway.Message, error)
	Permissions(ctx context.Context) (gateway.PermissionStatus, error)
}

// Pipeline accepts raw (sender, body, timestamp) observations from the live
// event feed and the bulk scan, applies the allow-list filter and the
// deduper, persists accepted messages, and triggers an immediate upload
// attempt. Each call runs synchronously so callers observe a consistent
// post-ingestion state.
type Pipeline struct {
	store    Store
	uploader UploadClient
	gateway  SMSGateway
	notifier Notifier
	logger   *logrus.Logger
}

func NewPipeline(store Store, uploader UploadClient, gw SMSGateway, notifier Notifier, logger *logrus.Logger) *Pipeline {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Pipeline{
		store:    store,
		uploader: uploader,
		gateway:  gw,
		notifier: notifier,
		logger:   logger,
	}
}

// NewMessageID derives an identifier from the source timestamp plus a random
// suffix, unique in practice without coordination.
func NewMessageID(timestamp int64) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%d_%s", timestamp, suffix)
}

// Ingest runs one observation through filter, dedupe, persistence, and an
// immediate upload attempt. It returns true when a new record was persisted.
// Rejected and duplicate observations leave no trace. Errors never escape;
// failures are logged and the observation is dropped.
func (p *Pipeline) Ingest(ctx context.Context, sender, body string, timestamp int64, silent bool) bool {
	ctx, span := tracing.StartSpan(ctx, "pipeline.ingest",
		attribute.String("sender", privacy.MaskSender(sender)),
	)
	defer span.End()

	allowList := p.store.AllowedSenders(ctx)
	if !IsAllowedSender(sender, allowList) {
		p.logger.WithField("sender", privacy.MaskSender(sender)).Debug("Sender not in allow-list, dropping")
		return false
	}

	// Dedupe against the current stored collection, re-read per candidate so
	// a bulk scan cannot insert intra-batch duplicates.
	existing := p.store.Messages(ctx)
	if IsDuplicate(sender, body, timestamp, existing) {
		p.logger.WithFields(logrus.Fields{
			"sender":    privacy.MaskSender(sender),
			"timestamp": timestamp,
		}).Debug("Duplicate observation, dropping")
		return false
	}

	msg := models.Message{
		ID:             NewMessageID(timestamp),
		Sender:         sender,
		Body:           body,
		Timestamp:      timestamp,
		Uploaded:       false,
		UploadAttempts: 0,
	}

	if err := p.store.SaveMessage(ctx, msg); err != nil {
		p.logger.WithError(err).Error("Failed to persist ingested message")
		if !silent {
			p.notifier.Notify("Error saving SMS message")
		}
		return false
	}

	p.logger.WithFields(logrus.Fields{
		"messageId": privacy.MaskMessageID(msg.ID),
		"sender":    privacy.MaskSender(msg.Sender),
		"body":      privacy.MaskBody(msg.Body),
	}).Info("Message ingested")

	result := attemptUploads(ctx, p.store, p.uploader, p.logger, []models.Message{msg})
	if !silent {
		if result.Uploaded == 1 {
			p.notifier.Notify("SMS uploaded successfully")
		} else {
			p.notifier.Notify("Upload failed, will retry on next sync")
		}
	}

	return true
}

// ScanRecent pulls the gateway's recent-message batch and ingests each
// observation. It returns the count of newly persisted messages; rejected and
// duplicate observations do not count. When permission has not been granted,
// ingestion simply does not occur. silent suppresses user-facing
// notifications but not the underlying work.
func (p *Pipeline) ScanRecent(ctx context.Context, silent bool) int {
	ctx, span := tracing.StartSpan(ctx, "pipeline.scan_recent")
	defer span.End()

	perms, err := p.gateway.Permissions(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to query SMS permissions, skipping scan")
		tracing.RecordError(ctx, err)
		return 0
	}
	if !perms.ReadSMS {
		p.logger.Info("SMS read permission not granted, skipping scan")
		if !silent {
			p.notifier.Notify("SMS permission required to read messages")
		}
		return 0
	}

	batch, err := p.gateway.RecentMessages(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to read recent messages from gateway")
		tracing.RecordError(ctx, err)
		return 0
	}

	count := 0
	for _, observed := range batch {
		if p.Ingest(ctx, observed.Sender, observed.Body, observed.Timestamp, true) {
			count++
		}
	}

	tracing.AddSpanAttributes(ctx,
		attribute.Int("scan.batch_size", len(batch)),
		attribute.Int("scan.ingested", count),
	)

	if !silent && count > 0 {
		p.notifier.Notify(fmt.Sprintf("%d new messages ingested", count))
	}

	return count
}
