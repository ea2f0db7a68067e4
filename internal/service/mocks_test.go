package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"pushfanout/internal/model"
)

// =============================================================================
// MOCKS
// =============================================================================
//
// Each mock implements one repository or collaborator interface with
// overridable function fields, and records the calls tests assert on.

type mockUserRepository struct {
	getRecipientFn func(ctx context.Context, userID string) (*model.Recipient, error)
}

func (m *mockUserRepository) GetRecipient(ctx context.Context, userID string) (*model.Recipient, error) {
	if m.getRecipientFn != nil {
		return m.getRecipientFn(ctx, userID)
	}
	return nil, model.ErrUserNotFound
}

type mockProjectRepository struct {
	getByIDFn func(ctx context.Context, projectID int64) (*model.Project, error)
}

func (m *mockProjectRepository) GetByID(ctx context.Context, projectID int64) (*model.Project, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, projectID)
	}
	return nil, model.ErrProjectNotFound
}

type mockDeviceTokenRepository struct {
	upsertFn        func(ctx context.Context, userID, token string, deviceType model.DeviceType, deviceInfo string) (*model.DeviceToken, error)
	listActiveFn    func(ctx context.Context, userID string) ([]model.DeviceToken, error)
	deactivateFn    func(ctx context.Context, ids []string) (int64, error)
	deactivateAllFn func(ctx context.Context, userID string) (int64, error)
	deleteFn        func(ctx context.Context, userID, token string) (bool, error)

	deactivateCalls [][]string
}

func (m *mockDeviceTokenRepository) Upsert(ctx context.Context, userID, token string, deviceType model.DeviceType, deviceInfo string) (*model.DeviceToken, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, token, deviceType, deviceInfo)
	}
	return &model.DeviceToken{ID: "tok-1", UserID: userID, Token: token, DeviceType: deviceType, DeviceInfo: deviceInfo, IsActive: true}, nil
}

func (m *mockDeviceTokenRepository) ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockDeviceTokenRepository) Deactivate(ctx context.Context, ids []string) (int64, error) {
	m.deactivateCalls = append(m.deactivateCalls, ids)
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, ids)
	}
	return int64(len(ids)), nil
}

func (m *mockDeviceTokenRepository) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	if m.deactivateAllFn != nil {
		return m.deactivateAllFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockDeviceTokenRepository) Delete(ctx context.Context, userID, token string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, token)
	}
	return false, nil
}

type mockNotificationRepository struct {
	createFn       func(ctx context.Context, n *model.Notification) error
	updateStatusFn func(ctx context.Context, id string, status model.DeliveryStatus) (bool, error)
	listByUserFn   func(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	unreadCountFn  func(ctx context.Context, userID string) (int, error)

	created      []*model.Notification
	statusCalls  []model.DeliveryStatus
	listLimits   []int
	markReadArgs [][]string
}

func (m *mockNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	m.created = append(m.created, n)
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	return nil
}

func (m *mockNotificationRepository) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) (bool, error) {
	m.statusCalls = append(m.statusCalls, status)
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return true, nil
}

func (m *mockNotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	return nil, model.ErrNotificationNotFound
}

func (m *mockNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	m.listLimits = append(m.listLimits, limit)
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepository) MarkAsRead(ctx context.Context, userID string, ids []string) error {
	m.markReadArgs = append(m.markReadArgs, ids)
	return nil
}

func (m *mockNotificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if m.unreadCountFn != nil {
		return m.unreadCountFn(ctx, userID)
	}
	return 0, nil
}

// mockProvider is safe for concurrent use; the dispatcher calls it from
// several goroutines.
type mockProvider struct {
	name   string
	sendFn func(ctx context.Context, token string, msg model.PushMessage) (string, error)

	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	Token string
	Msg   model.PushMessage
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Send(ctx context.Context, token string, msg model.PushMessage) (string, error) {
	m.mu.Lock()
	m.sends = append(m.sends, sentMessage{Token: token, Msg: msg})
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, token, msg)
	}
	return "msg-" + token, nil
}

func (m *mockProvider) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

type mockPublisher struct {
	mu       sync.Mutex
	outcomes []model.DispatchOutcome
}

func (m *mockPublisher) PublishDispatched(ctx context.Context, outcome model.DispatchOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

// memoryTokenStore is an in-memory DeviceTokenRepository keyed by token value,
// so tests can assert on the final active flag of every token.
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.DeviceToken

	deactivateErr   error
	deactivatePanic bool
	deactivateCalls [][]string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]*model.DeviceToken)}
}

func (s *memoryTokenStore) Upsert(ctx context.Context, userID, token string, deviceType model.DeviceType, deviceInfo string) (*model.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	dt, ok := s.tokens[token]
	if !ok {
		dt = &model.DeviceToken{ID: "id-" + token, Token: token, CreatedAt: now}
		s.tokens[token] = dt
	}
	dt.UserID = userID
	dt.DeviceType = deviceType
	dt.DeviceInfo = deviceInfo
	dt.IsActive = true
	dt.LastUsed = now
	cp := *dt
	return &cp, nil
}

func (s *memoryTokenStore) ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeviceToken
	for _, dt := range s.tokens {
		if dt.UserID == userID && dt.IsActive {
			out = append(out, *dt)
		}
	}
	slices.SortFunc(out, func(a, b model.DeviceToken) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *memoryTokenStore) Deactivate(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	s.deactivateCalls = append(s.deactivateCalls, ids)
	s.mu.Unlock()
	if s.deactivatePanic {
		panic("token store exploded")
	}
	if s.deactivateErr != nil {
		return 0, s.deactivateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		for _, dt := range s.tokens {
			if dt.ID == id && dt.IsActive {
				dt.IsActive = false
				n++
			}
		}
	}
	return n, nil
}

func (s *memoryTokenStore) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, dt := range s.tokens {
		if dt.UserID == userID && dt.IsActive {
			dt.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *memoryTokenStore) Delete(ctx context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt, ok := s.tokens[token]
	if !ok || dt.UserID != userID {
		return false, nil
	}
	delete(s.tokens, token)
	return true, nil
}

func (s *memoryTokenStore) get(token string) model.DeviceToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tokens[token]
}

func (s *memoryTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
