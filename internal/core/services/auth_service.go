package services

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	identity   ports.IdentityGateway
	users      ports.UserRepository
	blacklist  ports.TokenBlacklist
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
	log        *zap.Logger
}

func NewAuthService(
	identity ports.IdentityGateway,
	users ports.UserRepository,
	blacklist ports.TokenBlacklist,
	privateKey *rsa.PrivateKey,
	tokenTTL time.Duration,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		identity:   identity,
		users:      users,
		blacklist:  blacklist,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
		log:        log.Named("auth"),
	}
}

// Login verifies the credential pair and returns a signed session token
// together with the stored profile.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	uid, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		s.log.Info("sign in rejected", zap.String("email", email), zap.Error(err))
		if domain.IsRemote(err) {
			return "", nil, err
		}
		return "", nil, domain.NewAuthError(domain.ErrorMessage(err, "Error al iniciar sesión"))
	}

	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return "", nil, err
	}

	token, err := s.IssueToken(*user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs an RS256 session token for user.
func (s *AuthService) IssueToken(user domain.User) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// Logout revokes the token until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, tokenID, ttl); err != nil {
		return domain.NewRemoteError("revoke token", err)
	}
	return nil
}
