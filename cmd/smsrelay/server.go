package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/gateway"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Ingestor accepts raw observations from the webhook and the manual scan.
type Ingestor interface {
	Ingest(ctx context.Context, sender, body string, timestamp int64, silent bool) bool
	ScanRecent(ctx context.Context, silent bool) int
}

// SyncRunner exposes the sync and retry sweeps to the API.
type SyncRunner interface {
	Sync(ctx context.Context) models.SyncResult
	RetryFailedUploads(ctx context.Context) models.SyncResult
}

// StateStore is the store surface the API reads and mutates.
type StateStore interface {
	Messages(ctx context.Context) []models.Message
	UploadLogs(ctx context.Context) []models.UploadLog
	ServerURL(ctx context.Context) string
	SetServerURL(ctx context.Context, url string) error
	AllowedSenders(ctx context.Context) []string
	AddAllowedSender(ctx context.Context, token string) error
	RemoveAllowedSender(ctx context.Context, token string) error
	LastSyncTime(ctx context.Context) int64
	ClearData(ctx context.Context) error
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	cfg      *models.Config
	pipeline Ingestor
	syncer   SyncRunner
	store    StateStore
	server   *http.Server

	permMu          sync.RWMutex
	lastPermissions gateway.PermissionStatus
}

func NewServer(cfg *models.Config, pipeline Ingestor, syncer SyncRunner, store StateStore, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		pipeline: pipeline,
		syncer:   syncer,
		store:    store,
	}

	s.router.Use(s.observe)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	// Gateway push events
	webhooks := s.router.PathPrefix("/webhook").Subrouter()
	webhooks.HandleFunc("/sms", s.handleSMSWebhook()).Methods(http.MethodPost)
	webhooks.HandleFunc("/permissions", s.handlePermissionWebhook()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/messages", s.handleMessages()).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs()).Methods(http.MethodGet)
	api.HandleFunc("/permissions", s.handlePermissions()).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleScan()).Methods(http.MethodPost)
	api.HandleFunc("/sync", s.handleSync()).Methods(http.MethodPost)
	api.HandleFunc("/retry", s.handleRetry()).Methods(http.MethodPost)
	api.HandleFunc("/config/server-url", s.handleGetServerURL()).Methods(http.MethodGet)
	api.HandleFunc("/config/server-url", s.handleSetServerURL()).Methods(http.MethodPut)
	api.HandleFunc("/config/senders", s.handleGetSenders()).Methods(http.MethodGet)
	api.HandleFunc("/config/senders", s.handleAddSender()).Methods(http.MethodPost)
	api.HandleFunc("/config/senders/{token}", s.handleRemoveSender()).Methods(http.MethodDelete)
	api.HandleFunc("/data", s.handleClearData()).Methods(http.MethodDelete)
}

// observe wraps every request in a span and an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
			"traceId":  tracing.TraceID(ctx),
		}).Debug("Request handled")
	})
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		fmt.Sscanf(env, "%d", &port)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Error("Failed to write health response")
		}
	}
}

func (s *Server) handleSMSWebhook() http.HandlerFunc {
	type smsEvent struct {
		Sender    string `json:"sender"`
		Body      string `json:"body"`
		Timestamp int64  `json:"timestamp"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var event smsEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid event payload")
			return
		}
		if event.Sender == "" || event.Body == "" {
			s.writeError(w, http.StatusBadRequest, "sender and body are required")
			return
		}

		s.logger.WithField("sender", privacy.MaskSender(event.Sender)).Debug("SMS event received")

		ingested := s.pipeline.Ingest(r.Context(), event.Sender, event.Body, event.Timestamp, false)
		s.writeJSON(w, http.StatusOK, map[string]bool{"ingested": ingested})
	}
}

func (s *Server) handlePermissionWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status gateway.PermissionStatus
		if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid permission payload")
			return
		}

		s.permMu.Lock()
		s.lastPermissions = status
		s.permMu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"receiveSMS": status.ReceiveSMS,
			"readSMS":    status.ReadSMS,
		}).Info("Permission status updated")

		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages := s.store.Messages(r.Context())
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages":     messages,
			"lastSyncTime": s.store.LastSyncTime(r.Context()),
		})
	}
}

func (s *Server) handleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"logs": s.store.UploadLogs(r.Context()),
		})
	}
}

func (s *Server) handlePermissions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.permMu.RLock()
		status := s.lastPermissions
		s.permMu.RUnlock()

		s.writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) handleScan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := s.pipeline.ScanRecent(r.Context(), false)
		s.writeJSON(w, http.StatusOK, map[string]int{"ingested": count})
	}
}

func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.syncer.Sync(r.Context()))
	}
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.syncer.RetryFailedUploads(r.Context()))
	}
}

func (s *Server) handleGetServerURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"url": s.store.ServerURL(r.Context())})
	}
}

func (s *Server) handleSetServerURL() http.HandlerFunc {
	type request struct {
		URL string `json:"url"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		url := strings.TrimSpace(req.URL)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			s.writeError(w, http.StatusBadRequest, "url must be http or https")
			return
		}

		if err := s.store.SetServerURL(r.Context(), url); err != nil {
			s.logger.WithError(err).Error("Failed to persist server URL")
			s.writeError(w, http.StatusInternalServerError, "failed to save server URL")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

func (s *Server) handleGetSenders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"senders": s.store.AllowedSenders(r.Context()),
		})
	}
}

func (s *Server) handleAddSender() http.HandlerFunc {
	type request struct {
		Sender string `json:"sender"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		if strings.TrimSpace(req.Sender) == "" {
			s.writeError(w, http.StatusBadRequest, "sender is required")
			return
		}

		if err := s.store.AddAllowedSender(r.Context(), req.Sender); err != nil {
			s.logger.WithError(err).Error("Failed to add allowed sender")
			s.writeError(w, http.StatusInternalServerError, "failed to save sender")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"senders": s.store.AllowedSenders(r.Context()),
		})
	}
}

func (s *Server) handleRemoveSender() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := mux.Vars(r)["token"]

		if err := s.store.RemoveAllowedSender(r.Context(), token); err != nil {
			s.logger.WithError(err).Error("Failed to remove allowed sender")
			s.writeError(w, http.StatusInternalServerError, "failed to remove sender")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"senders": s.store.AllowedSenders(r.Context()),
		})
	}
}

func (s *Server) handleClearData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.ClearData(r.Context()); err != nil {
			s.logger.WithError(err).Error("Failed to clear data")
			s.writeError(w, http.StatusInternalServerError, "failed to clear data")
			return
		}

		s.logger.Warn("All messages, logs, and sync state cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}
