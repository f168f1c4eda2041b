package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// UploadStore is the slice of the message store the upload client needs: the
// configured endpoint and the delivery log.
type UploadStore interface {
	ServerURL(ctx context.Context) string
	AppendUploadLog(ctx context.Context, entry models.UploadLog) error
}

// UploadClient delivers one message to the configured remote endpoint.
// Failures are returned as values; nothing escapes this boundary as an error.
type UploadClient interface {
	Upload(ctx context.Context, msg models.Message) models.UploadResult
}

type uploadPayload struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

type httpUploadClient struct {
	store   UploadStore
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

func NewUploadClient(store UploadStore, httpClient *http.Client, timeout time.Duration, logger *logrus.Logger) UploadClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultUploadTimeoutSec) * time.Second
	}

	return &httpUploadClient{
		store:   store,
		client:  httpClient,
		timeout: timeout,
		logger:  logger,
	}
}

// Upload POSTs the message to <serverUrl>/upload-sms with a hard timeout that
// aborts the in-flight request. Success is any 2xx response. Every call,
// success or failure, appends one entry to the delivery log.
func (c *httpUploadClient) Upload(ctx context.Context, msg models.Message) models.UploadResult {
	ctx, span := tracing.StartSpan(ctx, "upload.attempt",
		attribute.String("message.id", privacy.MaskMessageID(msg.ID)),
	)
	defer span.End()

	result := c.attempt(ctx, msg)

	if result.Success {
		tracing.SetSpanStatus(ctx, codes.Ok, "")
	} else {
		tracing.SetSpanStatus(ctx, codes.Error, result.Error)
	}

	entry := models.UploadLog{
		ID:        uuid.NewString(),
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Timestamp: time.Now().UnixMilli(),
		Success:   result.Success,
		Error:     result.Error,
	}
	if err := c.store.AppendUploadLog(ctx, entry); err != nil {
		c.logger.WithError(err).Error("Failed to record upload log entry")
	}

	return result
}

func (c *httpUploadClient) attempt(ctx context.Context, msg models.Message) models.UploadResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := uploadPayload{
		Sender:    msg.Sender,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return models.UploadResult{Success: false, Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	endpoint := strings.TrimSuffix(c.store.ServerURL(ctx), "/") + constants.UploadPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return models.UploadResult{Success: false, Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"endpoint":  endpoint,
		"messageId": privacy.MaskMessageID(msg.ID),
		"sender":    privacy.MaskSender(msg.Sender),
	}).Debug("Uploading message")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.UploadResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return models.UploadResult{
			Success: false,
			Error:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	return models.UploadResult{Success: true}
}
