package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mashoras/activity-service/internal/core/ports"
)

// MockDedupStore implements ports.DedupStore in memory.
type MockDedupStore struct {
	mu    sync.Mutex
	marks map[string]bool

	MarkError error
}

var _ ports.DedupStore = (*MockDedupStore)(nil)

func NewMockDedupStore() *MockDedupStore {
	return &MockDedupStore{marks: make(map[string]bool)}
}

func (m *MockDedupStore) MarkIfAbsent(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkError != nil {
		return false, m.MarkError
	}
	if m.marks[key] {
		return false, nil
	}
	m.marks[key] = true
	return true, nil
}

// Keys returns the number of marked keys.
func (m *MockDedupStore) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}

// MockIdentityGateway implements ports.IdentityGateway with plain-text
// credentials kept in memory.
type MockIdentityGateway struct {
	mu       sync.Mutex
	accounts map[string]mockAccount
	nextUID  int

	SignUpError error
	SignInError error
	DeleteError error

	DeleteCalls []string
}

type mockAccount struct {
	uid      string
	password string
}

var _ ports.IdentityGateway = (*MockIdentityGateway)(nil)

func NewMockIdentityGateway() *MockIdentityGateway {
	return &MockIdentityGateway{accounts: make(map[string]mockAccount)}
}

// AddAccount registers credentials for test setup.
func (m *MockIdentityGateway) AddAccount(uid, email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = mockAccount{uid: uid, password: password}
}

func (m *MockIdentityGateway) SignUp(ctx context.Context, email, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SignUpError != nil {
		return "", m.SignUpError
	}
	if _, ok := m.accounts[email]; ok {
		return "", errors.New("email already in use")
	}
	m.nextUID++
	uid := fmt.Sprintf("uid-%d", m.nextUID)
	m.accounts[email] = mockAccount{uid: uid, password: password}
	return uid, nil
}

func (m *MockIdentityGateway) SignIn(ctx context.Context, email, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SignInError != nil {
		return "", m.SignInError
	}
	acc, ok := m.accounts[email]
	if !ok || acc.password != password {
		return "", errors.New("invalid credentials")
	}
	return acc.uid, nil
}

func (m *MockIdentityGateway) DeleteAccount(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, uid)
	if m.DeleteError != nil {
		return m.DeleteError
	}
	for email, acc := range m.accounts {
		if acc.uid == uid {
			delete(m.accounts, email)
		}
	}
	return nil
}

// MockTokenBlacklist implements ports.TokenBlacklist in memory.
type MockTokenBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration

	RevokeError error
	CheckError  error
}

var _ ports.TokenBlacklist = (*MockTokenBlacklist)(nil)

func NewMockTokenBlacklist() *MockTokenBlacklist {
	return &MockTokenBlacklist{revoked: make(map[string]time.Duration)}
}

func (m *MockTokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RevokeError != nil {
		return m.RevokeError
	}
	m.revoked[tokenID] = ttl
	return nil
}

func (m *MockTokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckError != nil {
		return false, m.CheckError
	}
	_, ok := m.revoked[tokenID]
	return ok, nil
}
