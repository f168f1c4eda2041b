package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Ingest(ctx context.Context, sender, body string, timestamp int64, silent bool) bool {
	args := m.Called(ctx, sender, body, timestamp, silent)
	return args.Bool(0)
}

func (m *mockIngestor) ScanRecent(ctx context.Context, silent bool) int {
	args := m.Called(ctx, silent)
	return args.Int(0)
}

type mockSyncRunner struct {
	mock.Mock
}

func (m *mockSyncRunner) Sync(ctx context.Context) models.SyncResult {
	args := m.Called(ctx)
	return args.Get(0).(models.SyncResult)
}

func (m *mockSyncRunner) RetryFailedUploads(ctx context.Context) models.SyncResult {
	args := m.Called(ctx)
	return args.Get(0).(models.SyncResult)
}

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) Messages(ctx context.Context) []models.Message {
	args := m.Called(ctx)
	return args.Get(0).([]models.Message)
}

func (m *mockStateStore) UploadLogs(ctx context.Context) []models.UploadLog {
	args := m.Called(ctx)
	return args.Get(0).([]models.UploadLog)
}

func (m *mockStateStore) ServerURL(ctx context.Context) string {
	args := m.Called(ctx)
	return args.String(0)
}

func (m *mockStateStore) SetServerURL(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *mockStateStore) AllowedSenders(ctx context.Context) []string {
	args := m.Called(ctx)
	return args.Get(0).([]string)
}

func (m *mockStateStore) AddAllowedSender(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockStateStore) RemoveAllowedSender(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockStateStore) LastSyncTime(ctx context.Context) int64 {
	args := m.Called(ctx)
	return args.Get(0).(int64)
}

func (m *mockStateStore) ClearData(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type serverFixture struct {
	server   *Server
	pipeline *mockIngestor
	syncer   *mockSyncRunner
	store    *mockStateStore
}

func newServerFixture() *serverFixture {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := &models.Config{}
	pipeline := &mockIngestor{}
	syncer := &mockSyncRunner{}
	store := &mockStateStore{}

	return &serverFixture{
		server:   NewServer(cfg, pipeline, syncer, store, logger),
		pipeline: pipeline,
		syncer:   syncer,
		store:    store,
	}
}

func (f *serverFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleSMSWebhook(t *testing.T) {
	f := newServerFixture()
	f.pipeline.On("Ingest", mock.Anything, "M-PESA", "Confirmed. KES 50 sent", int64(1000), false).Return(true)

	rec := f.do(http.MethodPost, "/webhook/sms", map[string]interface{}{
		"sender":    "M-PESA",
		"body":      "Confirmed. KES 50 sent",
		"timestamp": 1000,
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["ingested"])
	f.pipeline.AssertExpectations(t)
}

func TestHandleSMSWebhookRejectedSender(t *testing.T) {
	f := newServerFixture()
	f.pipeline.On("Ingest", mock.Anything, "SPAM", "win big", int64(1000), false).Return(false)

	rec := f.do(http.MethodPost, "/webhook/sms", map[string]interface{}{
		"sender":    "SPAM",
		"body":      "win big",
		"timestamp": 1000,
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["ingested"])
}

func TestHandleSMSWebhookInvalidPayload(t *testing.T) {
	f := newServerFixture()

	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.pipeline.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleSMSWebhookMissingFields(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodPost, "/webhook/sms", map[string]interface{}{
		"sender": "M-PESA",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.pipeline.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPermissionWebhookAndQuery(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodPost, "/webhook/permissions", map[string]bool{
		"receiveSMS":        true,
		"readSMS":           true,
		"hasAllPermissions": true,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/permissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status["receiveSMS"])
	assert.True(t, status["readSMS"])
}

func TestHandleMessages(t *testing.T) {
	f := newServerFixture()
	f.store.On("Messages", mock.Anything).Return([]models.Message{
		{ID: "1000_aaaaaaaa", Sender: "M-PESA", Body: "Confirmed", Timestamp: 1000, Uploaded: true},
	})
	f.store.On("LastSyncTime", mock.Anything).Return(int64(1700000000000))

	rec := f.do(http.MethodGet, "/api/v1/messages", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages     []models.Message `json:"messages"`
		LastSyncTime int64            `json:"lastSyncTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "1000_aaaaaaaa", resp.Messages[0].ID)
	assert.Equal(t, int64(1700000000000), resp.LastSyncTime)
}

func TestHandleLogs(t *testing.T) {
	f := newServerFixture()
	f.store.On("UploadLogs", mock.Anything).Return([]models.UploadLog{
		{ID: "log-1", MessageID: "1000_aaaaaaaa", Success: true},
	})

	rec := f.do(http.MethodGet, "/api/v1/logs", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Logs []models.UploadLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	assert.True(t, resp.Logs[0].Success)
}

func TestHandleScan(t *testing.T) {
	f := newServerFixture()
	f.pipeline.On("ScanRecent", mock.Anything, false).Return(3)

	rec := f.do(http.MethodPost, "/api/v1/scan", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["ingested"])
}

func TestHandleSync(t *testing.T) {
	f := newServerFixture()
	f.syncer.On("Sync", mock.Anything).Return(models.SyncResult{Ingested: 2, Uploaded: 5, Failed: 1})

	rec := f.do(http.MethodPost, "/api/v1/sync", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result models.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.SyncResult{Ingested: 2, Uploaded: 5, Failed: 1}, result)
}

func TestHandleRetry(t *testing.T) {
	f := newServerFixture()
	f.syncer.On("RetryFailedUploads", mock.Anything).Return(models.SyncResult{Uploaded: 1})

	rec := f.do(http.MethodPost, "/api/v1/retry", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.syncer.AssertExpectations(t)
}

func TestHandleGetServerURL(t *testing.T) {
	f := newServerFixture()
	f.store.On("ServerURL", mock.Anything).Return("http://10.0.0.5:9000")

	rec := f.do(http.MethodGet, "/api/v1/config/server-url", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "http://10.0.0.5:9000", resp["url"])
}

func TestHandleSetServerURL(t *testing.T) {
	f := newServerFixture()
	f.store.On("SetServerURL", mock.Anything, "https://collector.example.com").Return(nil)

	rec := f.do(http.MethodPut, "/api/v1/config/server-url", map[string]string{
		"url": "  https://collector.example.com  ",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.store.AssertExpectations(t)
}

func TestHandleSetServerURLRejectsNonHTTP(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodPut, "/api/v1/config/server-url", map[string]string{
		"url": "ftp://collector.example.com",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.store.AssertNotCalled(t, "SetServerURL", mock.Anything, mock.Anything)
}

func TestHandleGetSenders(t *testing.T) {
	f := newServerFixture()
	f.store.On("AllowedSenders", mock.Anything).Return([]string{"M-PESA", "KCB"})

	rec := f.do(http.MethodGet, "/api/v1/config/senders", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Senders []string `json:"senders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"M-PESA", "KCB"}, resp.Senders)
}

func TestHandleAddSender(t *testing.T) {
	f := newServerFixture()
	f.store.On("AddAllowedSender", mock.Anything, "NCBA").Return(nil)
	f.store.On("AllowedSenders", mock.Anything).Return([]string{"M-PESA", "NCBA"})

	rec := f.do(http.MethodPost, "/api/v1/config/senders", map[string]string{"sender": "NCBA"})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.store.AssertExpectations(t)
}

func TestHandleAddSenderRejectsEmpty(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodPost, "/api/v1/config/senders", map[string]string{"sender": "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.store.AssertNotCalled(t, "AddAllowedSender", mock.Anything, mock.Anything)
}

func TestHandleRemoveSender(t *testing.T) {
	f := newServerFixture()
	f.store.On("RemoveAllowedSender", mock.Anything, "TALA").Return(nil)
	f.store.On("AllowedSenders", mock.Anything).Return([]string{"M-PESA"})

	rec := f.do(http.MethodDelete, "/api/v1/config/senders/TALA", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.store.AssertExpectations(t)
}

func TestHandleClearData(t *testing.T) {
	f := newServerFixture()
	f.store.On("ClearData", mock.Anything).Return(nil)

	rec := f.do(http.MethodDelete, "/api/v1/data", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	f.store.AssertExpectations(t)
}

func TestAccessLogCarriesTraceID(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	server := NewServer(&models.Config{}, &mockIngestor{}, &mockSyncRunner{}, &mockStateStore{}, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var accessLog *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Request handled" {
			accessLog = entry
			break
		}
	}
	require.NotNil(t, accessLog)
	assert.Contains(t, accessLog.Data, "traceId")
	assert.Equal(t, "/health", accessLog.Data["path"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture()

	rec := f.do(http.MethodGet, "/api/v1/sync", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
