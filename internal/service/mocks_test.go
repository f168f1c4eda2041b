package service

import (
	"context"
	"sync"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
	"smsrelay/pkg/gateway"

	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory stand-in for store.MessageStore with the same
// head-insert and capacity semantics.
type memStore struct {
	mu        sync.Mutex
	messages  []models.Message
	logs      []models.UploadLog
	senders   []string
	serverURL string
	lastSync  int64
	saveErr   error
}

func newMemStore(senders []string, serverURL string) *memStore {
	return &memStore{senders: senders, serverURL: serverURL}
}

func (s *memStore) Messages(ctx context.Context) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *memStore) SaveMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.messages = append([]models.Message{msg}, s.messages...)
	if len(s.messages) > constants.MaxStoredMessages {
		s.messages = s.messages[:constants.MaxStoredMessages]
	}
	return nil
}

func (s *memStore) UpdateMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i] = msg
			break
		}
	}
	return nil
}

func (s *memStore) AllowedSenders(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.senders...)
}

func (s *memStore) LastSyncTime(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *memStore) SetLastSyncTime(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = ts
	return nil
}

func (s *memStore) ServerURL(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverURL
}

func (s *memStore) AppendUploadLog(ctx context.Context, entry models.UploadLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append([]models.UploadLog{entry}, s.logs...)
	if len(s.logs) > constants.MaxUploadLogs {
		s.logs = s.logs[:constants.MaxUploadLogs]
	}
	return nil
}

func (s *memStore) uploadLogs() []models.UploadLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UploadLog, len(s.logs))
	copy(out, s.logs)
	return out
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) RecentMessages(ctx context.Context) ([]gateway.Message, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Message), args.Error(1)
}

func (m *mockGateway) Permissions(ctx context.Context) (gateway.PermissionStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(gateway.PermissionStatus), args.Error(1)
}

func permissionDenied() gateway.PermissionStatus {
	return gateway.PermissionStatus{}
}

type mockUploadClient struct {
	mock.Mock
}

func (m *mockUploadClient) Upload(ctx context.Context, msg models.Message) models.UploadResult {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.UploadResult)
}

type mockNotifier struct {
	mu            sync.Mutex
	notifications []string
}

func (n *mockNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, message)
}

func (n *mockNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notifications...)
}
