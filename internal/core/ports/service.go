package ports

import (
	"context"
	"time"
)

// IdentityGateway authenticates credential pairs and returns stable user ids.
type IdentityGateway interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	// DeleteAccount removes the credentials for uid. Deleting a missing
	// account succeeds.
	DeleteAccount(ctx context.Context, uid string) error
}

// Session exposes the currently authenticated user, if any.
type Session interface {
	CurrentUserID() (string, bool)
}

// TokenBlacklist records revoked session tokens until they expire.
type TokenBlacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
