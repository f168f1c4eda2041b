package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
	"smsrelay/internal/security"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing SMS gateway base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	// Overrides first so validation sees the effective values: an env-supplied
	// URL still has to pass the scheme check, and an env-supplied gateway URL
	// satisfies the required-field check.
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.BaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Upload.ServerURL == "" {
		c.Upload.ServerURL = constants.DefaultServerURL
	}
	if !strings.HasPrefix(c.Upload.ServerURL, "http://") && !strings.HasPrefix(c.Upload.ServerURL, "https://") {
		return models.ConfigError{Message: fmt.Sprintf("upload server URL must be http or https: %s", c.Upload.ServerURL)}
	}
	if c.Upload.TimeoutSec <= 0 {
		c.Upload.TimeoutSec = constants.DefaultUploadTimeoutSec
	}

	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = constants.DefaultGatewayTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Sync.IntervalMin <= 0 {
		c.Sync.IntervalMin = constants.DefaultSyncIntervalMin
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "smsrelay"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("SMSRELAY_UPLOAD_URL"); url != "" {
		c.Upload.ServerURL = url
	}
	if url := os.Getenv("SMSRELAY_GATEWAY_URL"); url != "" {
		c.Gateway.BaseURL = url
	}
	// Gateway API keys should come from the environment, not the config file
	if key := os.Getenv("SMSRELAY_GATEWAY_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if path := os.Getenv("SMSRELAY_DB_PATH"); path != "" {
		c.Database.Path = path
	}
}
