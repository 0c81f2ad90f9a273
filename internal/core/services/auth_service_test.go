package services_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/services"
	"github.com/mashoras/activity-service/test/mocks"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestAuthService_Login(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name        string
		email       string
		password    string
		setupMock   func(*mocks.MockIdentityGateway, *mocks.MockUserRepository)
		expectError bool
		checkErr    func(error) bool
		wantMessage string
	}{
		{
			name:     "valid_credentials",
			email:    "gar21456@uvg.edu.gt",
			password: "secret123",
			setupMock: func(g *mocks.MockIdentityGateway, u *mocks.MockUserRepository) {
				g.AddAccount("s1", "gar21456@uvg.edu.gt", "secret123")
				u.SeedUser(domain.User{UID: "s1", Role: domain.RoleStudent, Email: "gar21456@uvg.edu.gt"})
			},
		},
		{
			name:     "wrong_password",
			email:    "gar21456@uvg.edu.gt",
			password: "nope",
			setupMock: func(g *mocks.MockIdentityGateway, u *mocks.MockUserRepository) {
				g.AddAccount("s1", "gar21456@uvg.edu.gt", "secret123")
			},
			expectError: true,
			checkErr:    domain.IsAuth,
			wantMessage: "Correo o contraseña incorrectos",
		},
		{
			name:     "identity_provider_unreachable",
			email:    "gar21456@uvg.edu.gt",
			password: "secret123",
			setupMock: func(g *mocks.MockIdentityGateway, u *mocks.MockUserRepository) {
				g.SignInError = domain.NewRemoteError("sign in", errors.New("connection refused"))
			},
			expectError: true,
			checkErr:    domain.IsRemote,
		},
		{
			name:     "profile_missing",
			email:    "gar21456@uvg.edu.gt",
			password: "secret123",
			setupMock: func(g *mocks.MockIdentityGateway, u *mocks.MockUserRepository) {
				g.AddAccount("s1", "gar21456@uvg.edu.gt", "secret123")
			},
			expectError: true,
			checkErr:    domain.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			gateway := mocks.NewMockIdentityGateway()
			users := mocks.NewMockUserRepository()
			tt.setupMock(gateway, users)
			svc := services.NewAuthService(gateway, users, mocks.NewMockTokenBlacklist(), key, time.Hour, nil)

			// ACT
			token, user, err := svc.Login(context.Background(), tt.email, tt.password)

			// ASSERT
			if tt.expectError {
				if err == nil || !tt.checkErr(err) {
					t.Fatalf("unexpected error kind: %v", err)
				}
				if tt.wantMessage != "" && err.Error() != tt.wantMessage {
					t.Errorf("expected message %q, got %q", tt.wantMessage, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.UID != "s1" {
				t.Errorf("expected user s1, got %q", user.UID)
			}

			claims := &services.SessionClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
				return &key.PublicKey, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			if err != nil || !parsed.Valid {
				t.Fatalf("expected a valid token, got %v", err)
			}
			if claims.Subject != "s1" || claims.Role != string(domain.RoleStudent) || claims.ID == "" {
				t.Errorf("unexpected claims %+v", claims)
			}
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name        string
		expiresAt   time.Time
		setupMock   func(*mocks.MockTokenBlacklist)
		wantRevoked bool
		expectError bool
	}{
		{name: "valid_token", expiresAt: time.Now().Add(time.Hour), setupMock: func(*mocks.MockTokenBlacklist) {}, wantRevoked: true},
		{name: "already_expired", expiresAt: time.Now().Add(-time.Minute), setupMock: func(*mocks.MockTokenBlacklist) {}},
		{
			name:      "blacklist_unavailable",
			expiresAt: time.Now().Add(time.Hour),
			setupMock: func(m *mocks.MockTokenBlacklist) {
				m.RevokeError = errors.New("redis down")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// ARRANGE
			blacklist := mocks.NewMockTokenBlacklist()
			tt.setupMock(blacklist)
			svc := services.NewAuthService(mocks.NewMockIdentityGateway(), mocks.NewMockUserRepository(), blacklist, key, time.Hour, nil)

			// ACT
			err := svc.Logout(context.Background(), "token-1", tt.expiresAt)

			// ASSERT
			if tt.expectError {
				if !domain.IsRemote(err) {
					t.Errorf("expected RemoteError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			revoked, _ := blacklist.IsRevoked(context.Background(), "token-1")
			if revoked != tt.wantRevoked {
				t.Errorf("expected revoked=%v, got %v", tt.wantRevoked, revoked)
			}
		})
	}
}
