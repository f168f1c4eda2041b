package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/constants"
	"smsrelay/internal/database"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/retry"
	"smsrelay/internal/service"
	"smsrelay/internal/store"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/gateway"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("smsrelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting smsrelay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			if level > logrus.InfoLevel {
				level = logrus.InfoLevel
			}
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing; unset config fields keep the defaults
	tracingConfig := tracing.DefaultConfig()
	tracingConfig.ServiceName = cfg.Tracing.ServiceName
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.UseStdout = cfg.Tracing.UseStdout
	if cfg.Tracing.ServiceVersion != "" {
		tracingConfig.ServiceVersion = cfg.Tracing.ServiceVersion
	}
	if cfg.Tracing.Environment != "" {
		tracingConfig.Environment = cfg.Tracing.Environment
	}
	if cfg.Tracing.OTLPEndpoint != "" {
		tracingConfig.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	}
	tracingManager := tracing.NewManager(tracingConfig, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the ledger with exponential backoff. A bad path or bad encryption
	// secret fails immediately; transient open failures are retried.
	backoffConfig := retry.DefaultBackoffConfig()
	backoffConfig.InitialDelay = time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond
	backoffConfig.MaxDelay = time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond
	backoffConfig.MaxAttempts = cfg.Retry.MaxAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	attempt := 0
	err = backoff.RetryWithPredicate(ctx, func() error {
		attempt++
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil && apperrors.IsRetryable(initErr) {
			logger.Warnf("Failed to initialize database: %v (next attempt in ~%s)", initErr, backoff.GetNextDelay(attempt))
		}
		return initErr
	}, apperrors.IsRetryable)
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	messageStore := store.New(db, logger)

	// Seed the configured upload endpoint on first run only; once any value is
	// persisted (config seed or API edit), the store is the source of truth.
	if err := messageStore.SeedServerURL(ctx, cfg.Upload.ServerURL); err != nil {
		logger.Warnf("Failed to seed upload URL: %v", err)
	}

	uploadClient := service.NewUploadClient(
		messageStore,
		&http.Client{},
		time.Duration(cfg.Upload.TimeoutSec)*time.Second,
		logger,
	)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIKey,
		&http.Client{Timeout: time.Duration(cfg.Gateway.TimeoutSec) * time.Second},
		logger,
	)

	notifier := service.NewLogNotifier(logger)
	pipeline := service.NewPipeline(messageStore, uploadClient, gatewayClient, notifier, logger)
	syncer := service.NewSyncer(messageStore, pipeline, uploadClient, logger)

	if cfg.Sync.Enabled {
		scheduler := service.NewScheduler(syncer, cfg.Sync.IntervalMin, logger)
		go scheduler.Start(ctx)
		defer scheduler.Stop()
	} else {
		logger.Info("Periodic sync is disabled")
	}

	server := NewServer(cfg, pipeline, syncer, messageStore, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
