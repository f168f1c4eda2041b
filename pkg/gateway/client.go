package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to the device-local SMS gateway: the service that can read the
// device inbox and report permission state.
type Client interface {
	RecentMessages(ctx context.Context) ([]Message, error)
	Permissions(ctx context.Context) (PermissionStatus, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger,
	}
}

// RecentMessages fetches the gateway's batch of recently received messages.
// A response without a messages field is an empty batch, not an error.
func (c *HTTPClient) RecentMessages(ctx context.Context) ([]Message, error) {
	body, err := c.get(ctx, "/v1/messages/recent")
	if err != nil {
		return nil, err
	}

	var result recentMessagesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.WithField("count", len(result.Messages)).Debug("Fetched recent messages from gateway")

	if result.Messages == nil {
		return []Message{}, nil
	}
	return result.Messages, nil
}

// Permissions fetches the current SMS permission grant state.
func (c *HTTPClient) Permissions(ctx context.Context) (PermissionStatus, error) {
	body, err := c.get(ctx, "/v1/permissions")
	if err != nil {
		return PermissionStatus{}, err
	}

	var status PermissionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return PermissionStatus{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return status, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
