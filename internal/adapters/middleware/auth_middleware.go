package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
	"github.com/mashoras/activity-service/internal/core/services"
)

type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	blacklist ports.TokenBlacklist
	log       *zap.Logger
}

func NewAuthMiddleware(publicKey *rsa.PublicKey, blacklist ports.TokenBlacklist, log *zap.Logger) *AuthMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthMiddleware{
		publicKey: publicKey,
		blacklist: blacklist,
		log:       log.Named("auth_middleware"),
	}
}

type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"
	TokenKey  contextKey = "token"
)

// TokenInfo identifies the presented token so it can be revoked.
type TokenInfo struct {
	ID        string
	ExpiresAt time.Time
}

// Authenticate rejects requests without a valid, unrevoked bearer token and
// stores the caller in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := &services.SessionClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.publicKey, nil
		})
		if err != nil || !token.Valid {
			m.log.Debug("token rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if claims.Subject == "" {
			http.Error(w, "invalid token: missing user ID", http.StatusUnauthorized)
			return
		}
		if claims.Role == "" {
			http.Error(w, "invalid token: missing role", http.StatusUnauthorized)
			return
		}

		if m.blacklist != nil && claims.ID != "" {
			revoked, err := m.blacklist.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				m.log.Error("blacklist lookup failed", zap.Error(err))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if revoked {
				http.Error(w, "token revoked", http.StatusUnauthorized)
				return
			}
		}

		info := TokenInfo{ID: claims.ID}
		if claims.ExpiresAt != nil {
			info.ExpiresAt = claims.ExpiresAt.Time
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
		ctx = context.WithValue(ctx, RoleKey, domain.ParseRole(claims.Role))
		ctx = context.WithValue(ctx, TokenKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.log.Debug("role mismatch", zap.Any("required", roles), zap.String("role", string(role)))
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) domain.Role {
	role, _ := ctx.Value(RoleKey).(domain.Role)
	return role
}

func TokenFromContext(ctx context.Context) (TokenInfo, bool) {
	info, ok := ctx.Value(TokenKey).(TokenInfo)
	return info, ok
}

// SessionFromContext adapts the authenticated caller to ports.Session.
func SessionFromContext(ctx context.Context) ports.Session {
	return services.StaticSession(UserIDFromContext(ctx))
}
