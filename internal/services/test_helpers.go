package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
)

// FakeAccountRepository is an in-memory account store implementing
// AccountRepository, AccountSecurityRepository and ActivationCodeRepository.
// Any XFunc field that is set replaces the in-memory behaviour.
type FakeAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	security map[string]*models.AccountSecurityState
	codes    map[string]*models.ActivationCode

	GetByEmailFunc                      func(ctx context.Context, email string) (*models.Account, error)
	GetSecurityStateFunc                func(ctx context.Context, id string) (*models.AccountSecurityState, error)
	IncrementFailedAttemptsFunc         func(ctx context.Context, id, ip string, threshold int, lockUntil time.Time) (*models.AccountSecurityState, error)
	CompareAndIncrementCodeAttemptsFunc func(ctx context.Context, id string, issuedAt time.Time, expected int) (int, error)
}

func NewFakeAccountRepository() *FakeAccountRepository {
	return &FakeAccountRepository{
		accounts: make(map[string]*models.Account),
		security: make(map[string]*models.AccountSecurityState),
		codes:    make(map[string]*models.ActivationCode),
	}
}

// Seed stores account as-is and returns it.
func (f *FakeAccountRepository) Seed(account *models.Account) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Role == "" {
		account.Role = models.RoleUser
	}
	cp := *account
	f.accounts[account.ID] = &cp
	f.security[account.ID] = &models.AccountSecurityState{AccountID: account.ID}
	return account
}

func (f *FakeAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	f.mu.Lock()
	for _, a := range f.accounts {
		if a.Email == account.Email {
			f.mu.Unlock()
			return nil, models.ErrConflict
		}
	}
	f.mu.Unlock()
	return f.Seed(account), nil
}

func (f *FakeAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *FakeAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if f.GetByEmailFunc != nil {
		return f.GetByEmailFunc(ctx, email)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *FakeAccountRepository) Activate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.IsActive = true
	a.EmailVerified = true
	delete(f.codes, id)
	return nil
}

func (f *FakeAccountRepository) GetSecurityState(ctx context.Context, id string) (*models.AccountSecurityState, error) {
	if f.GetSecurityStateFunc != nil {
		return f.GetSecurityStateFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.security[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeAccountRepository) IncrementFailedAttempts(ctx context.Context, id, ip string, threshold int, lockUntil time.Time) (*models.AccountSecurityState, error) {
	if f.IncrementFailedAttemptsFunc != nil {
		return f.IncrementFailedAttemptsFunc(ctx, id, ip, threshold, lockUntil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.security[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.FailedAttemptCount++
	if s.FailedAttemptCount >= threshold {
		until := lockUntil
		s.LockedUntil = &until
	}
	if ip != "" {
		addr := ip
		s.LastKnownIP = &addr
	}
	cp := *s
	return &cp, nil
}

func (f *FakeAccountRepository) ResetFailedAttempts(ctx context.Context, id, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.security[id]
	if !ok {
		return models.ErrNotFound
	}
	s.FailedAttemptCount = 0
	s.LockedUntil = nil
	if ip != "" {
		addr := ip
		s.LastKnownIP = &addr
	}
	return nil
}

func (f *FakeAccountRepository) SaveActivationCode(ctx context.Context, id, code string, issuedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return models.ErrNotFound
	}
	f.codes[id] = &models.ActivationCode{AccountID: id, Code: code, IssuedAt: issuedAt}
	return nil
}

func (f *FakeAccountRepository) GetActivationCode(ctx context.Context, id string) (*models.ActivationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return nil, models.ErrNotFound
	}
	c, ok := f.codes[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *FakeAccountRepository) CompareAndIncrementCodeAttempts(ctx context.Context, id string, issuedAt time.Time, expected int) (int, error) {
	if f.CompareAndIncrementCodeAttemptsFunc != nil {
		return f.CompareAndIncrementCodeAttemptsFunc(ctx, id, issuedAt, expected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok || !c.IssuedAt.Equal(issuedAt) || c.AttemptCount != expected {
		return 0, models.ErrConflict
	}
	c.AttemptCount++
	return c.AttemptCount, nil
}

func (f *FakeAccountRepository) ClearActivationCode(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.codes, id)
	return nil
}

// DeliveredCode is one message captured by MockCodeNotifier
type DeliveredCode struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// MockCodeNotifier implements CodeNotifier for testing
type MockCodeNotifier struct {
	mu              sync.Mutex
	Delivered       []DeliveredCode
	DeliverCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
}

func (m *MockCodeNotifier) DeliverCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.DeliverCodeFunc != nil {
		if err := m.DeliverCodeFunc(ctx, email, code, expiresAt); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Delivered = append(m.Delivered, DeliveredCode{Email: email, Code: code, ExpiresAt: expiresAt})
	m.mu.Unlock()
	return nil
}

// Last returns the most recently delivered code
func (m *MockCodeNotifier) Last() DeliveredCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Delivered) == 0 {
		return DeliveredCode{}
	}
	return m.Delivered[len(m.Delivered)-1]
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc         func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
	RevokeAllUserTokensFunc func(ctx context.Context, userID string, revokedAt, expiresAt time.Time) error

	mu           sync.Mutex
	RevokedJTIs  []string
	RevokedUsers []string
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, expiresAt, reason)
	}
	m.mu.Lock()
	m.RevokedJTIs = append(m.RevokedJTIs, jti)
	m.mu.Unlock()
	return nil
}

func (m *MockTokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID string, revokedAt, expiresAt time.Time) error {
	if m.RevokeAllUserTokensFunc != nil {
		return m.RevokeAllUserTokensFunc(ctx, userID, revokedAt, expiresAt)
	}
	m.mu.Lock()
	m.RevokedUsers = append(m.RevokedUsers, userID)
	m.mu.Unlock()
	return nil
}

// RecordingAuditSink implements AuditSink by keeping every event in memory
type RecordingAuditSink struct {
	mu     sync.Mutex
	Events []models.AuditEvent
}

func (r *RecordingAuditSink) Record(ctx context.Context, event models.AuditEvent) {
	r.mu.Lock()
	r.Events = append(r.Events, event)
	r.mu.Unlock()
}

// Count returns how many events of category were recorded
func (r *RecordingAuditSink) Count(category string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Events {
		if e.Category == category {
			n++
		}
	}
	return n
}

// MockAuditEventRepository implements AuditEventRepository for testing
type MockAuditEventRepository struct {
	CreateFunc func(ctx context.Context, event *models.AuditEvent) error

	mu      sync.Mutex
	Created []models.AuditEvent
}

func (m *MockAuditEventRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, event); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Created = append(m.Created, *event)
	m.mu.Unlock()
	return nil
}

// CreatedCount returns how many events were persisted
func (m *MockAuditEventRepository) CreatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}

// MockCounterStore implements counter.Store with injectable behaviour
type MockCounterStore struct {
	GetFunc              func(ctx context.Context, key string) (int64, time.Time, error)
	IncrementWithTTLFunc func(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, time.Time, error)
	SetFunc              func(ctx context.Context, key string, value int64, ttl time.Duration) error
	DeleteFunc           func(ctx context.Context, key string) error
}

func (m *MockCounterStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return 0, time.Time{}, nil
}

func (m *MockCounterStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, time.Time, error) {
	if m.IncrementWithTTLFunc != nil {
		return m.IncrementWithTTLFunc(ctx, key, ttl, limit)
	}
	return 1, time.Time{}, nil
}

func (m *MockCounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

func (m *MockCounterStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}
