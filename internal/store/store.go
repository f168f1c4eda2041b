package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"smsrelay/internal/constants"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// Ledger is the durable key-value collaborator backing the store.
type Ledger interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Logical ledger keys. Collections are stored as whole JSON arrays and
// rewritten on every mutation; see the concurrency note on MessageStore.
const (
	keyMessages       = "sms_messages"
	keyUploadLogs     = "upload_logs"
	keyServerURL      = "server_url"
	keyAllowedSenders = "allowed_senders"
	keyLastSync       = "last_sync_time"
)

// MessageStore owns the canonical message collection, the upload log, and the
// persisted configuration. Persistence is whole-collection read-modify-write
// with no locking: two mutations racing across entry points can lose an
// update (last writer wins on the serialized collection). The pipeline
// serializes mutations within one logical operation, which keeps the common
// case race-free; collisions across entry points are rare and lose at most a
// counter increment.
type MessageStore struct {
	ledger Ledger
	logger *logrus.Logger
}

func New(ledger Ledger, logger *logrus.Logger) *MessageStore {
	return &MessageStore{
		ledger: ledger,
		logger: logger,
	}
}

// Messages returns the stored collection, newest first. Reads fail soft: any
// ledger or decode failure is logged and yields an empty collection rather
// than an error, so callers always see a usable (possibly empty) list.
func (s *MessageStore) Messages(ctx context.Context) []models.Message {
	raw, err := s.ledger.Get(ctx, keyMessages)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WithError(err).Error("Failed to read message collection")
		}
		return []models.Message{}
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		s.logger.WithError(err).Error("Failed to decode message collection")
		return []models.Message{}
	}

	return messages
}

// SaveMessage inserts the record at the head of the collection, enforces the
// capacity bound by truncating the tail, and writes the whole collection back.
func (s *MessageStore) SaveMessage(ctx context.Context, msg models.Message) error {
	messages := s.Messages(ctx)
	messages = append([]models.Message{msg}, messages...)

	if len(messages) > constants.MaxStoredMessages {
		messages = messages[:constants.MaxStoredMessages]
	}

	return s.writeMessages(ctx, messages)
}

// UpdateMessage replaces the record with a matching ID in place. A missing ID
// is a no-op: the record may have been evicted by the capacity bound.
func (s *MessageStore) UpdateMessage(ctx context.Context, msg models.Message) error {
	messages := s.Messages(ctx)

	found := false
	for i := range messages {
		if messages[i].ID == msg.ID {
			messages[i] = msg
			found = true
			break
		}
	}
	if !found {
		s.logger.WithField("messageId", msg.ID).Debug("Update for absent message, skipping")
		return nil
	}

	return s.writeMessages(ctx, messages)
}

func (s *MessageStore) writeMessages(ctx context.Context, messages []models.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode message collection")
	}
	return s.ledger.Set(ctx, keyMessages, string(data))
}

// UploadLogs returns the bounded upload attempt history, newest first.
func (s *MessageStore) UploadLogs(ctx context.Context) []models.UploadLog {
	raw, err := s.ledger.Get(ctx, keyUploadLogs)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WithError(err).Error("Failed to read upload logs")
		}
		return []models.UploadLog{}
	}

	var logs []models.UploadLog
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		s.logger.WithError(err).Error("Failed to decode upload logs")
		return []models.UploadLog{}
	}

	return logs
}

// AppendUploadLog prepends the entry and evicts beyond the log capacity.
func (s *MessageStore) AppendUploadLog(ctx context.Context, entry models.UploadLog) error {
	logs := s.UploadLogs(ctx)
	logs = append([]models.UploadLog{entry}, logs...)

	if len(logs) > constants.MaxUploadLogs {
		logs = logs[:constants.MaxUploadLogs]
	}

	data, err := json.Marshal(logs)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode upload logs")
	}
	return s.ledger.Set(ctx, keyUploadLogs, string(data))
}

// ServerURL returns the configured upload endpoint, falling back to the
// documented placeholder default when none has been persisted.
func (s *MessageStore) ServerURL(ctx context.Context) string {
	raw, err := s.ledger.Get(ctx, keyServerURL)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WithError(err).Error("Failed to read server URL, using default")
		}
		return constants.DefaultServerURL
	}
	if raw == "" {
		return constants.DefaultServerURL
	}
	return raw
}

func (s *MessageStore) SetServerURL(ctx context.Context, url string) error {
	return s.ledger.Set(ctx, keyServerURL, url)
}

// SeedServerURL persists the configured endpoint only when none has been
// stored yet. Once a value is persisted, whether from config or an API edit,
// the stored value is the source of truth across restarts and config changes
// must not clobber it.
func (s *MessageStore) SeedServerURL(ctx context.Context, url string) error {
	_, err := s.ledger.Get(ctx, keyServerURL)
	if err == nil {
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return err
	}
	return s.ledger.Set(ctx, keyServerURL, url)
}

// AllowedSenders returns the configured allow-list, seeded with the default
// sender tokens when the store has none.
func (s *MessageStore) AllowedSenders(ctx context.Context) []string {
	raw, err := s.ledger.Get(ctx, keyAllowedSenders)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WithError(err).Error("Failed to read allow-list, using defaults")
		}
		return append([]string(nil), constants.DefaultAllowedSenders...)
	}

	var senders []string
	if err := json.Unmarshal([]byte(raw), &senders); err != nil {
		s.logger.WithError(err).Error("Failed to decode allow-list, using defaults")
		return append([]string(nil), constants.DefaultAllowedSenders...)
	}

	return senders
}

// AddAllowedSender persists a new allow-list token. Matching is
// case-insensitive, so tokens differing only in case are one entry.
func (s *MessageStore) AddAllowedSender(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "sender token cannot be empty")
	}

	senders := s.AllowedSenders(ctx)
	for _, existing := range senders {
		if strings.EqualFold(existing, token) {
			return nil
		}
	}

	senders = append(senders, token)
	return s.writeAllowedSenders(ctx, senders)
}

// RemoveAllowedSender removes a token, case-insensitively. Removing an
// absent token is a no-op.
func (s *MessageStore) RemoveAllowedSender(ctx context.Context, token string) error {
	senders := s.AllowedSenders(ctx)

	filtered := senders[:0]
	for _, existing := range senders {
		if !strings.EqualFold(existing, token) {
			filtered = append(filtered, existing)
		}
	}

	return s.writeAllowedSenders(ctx, filtered)
}

func (s *MessageStore) writeAllowedSenders(ctx context.Context, senders []string) error {
	data, err := json.Marshal(senders)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode allow-list")
	}
	return s.ledger.Set(ctx, keyAllowedSenders, string(data))
}

// LastSyncTime returns the last successful sync in epoch milliseconds,
// 0 meaning never.
func (s *MessageStore) LastSyncTime(ctx context.Context) int64 {
	raw, err := s.ledger.Get(ctx, keyLastSync)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WithError(err).Error("Failed to read last sync time")
		}
		return 0
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse last sync time")
		return 0
	}

	return ts
}

func (s *MessageStore) SetLastSyncTime(ctx context.Context, ts int64) error {
	return s.ledger.Set(ctx, keyLastSync, strconv.FormatInt(ts, 10))
}

// ClearData irreversibly removes all messages, upload logs, and the last-sync
// marker. Configuration (server URL, allow-list) survives.
func (s *MessageStore) ClearData(ctx context.Context) error {
	return s.ledger.Delete(ctx, keyMessages, keyUploadLogs, keyLastSync)
}
