package identity

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

// Provider-style messages; domain.HumanMessage turns them into user text.
var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("weak password: must be at least 6 characters")
)

const minPasswordLength = 6

// Gateway stores bcrypt credentials in PostgreSQL and hands out stable uids.
type Gateway struct {
	db  *sql.DB
	cb  *gobreaker.CircuitBreaker
	log *zap.Logger
}

var _ ports.IdentityGateway = (*Gateway)(nil)

func NewGateway(db *sql.DB, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		db:  db,
		cb:  config.NewCircuitBreaker(config.BreakerPostgres, log),
		log: log.Named("identity"),
	}
}

func (g *Gateway) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}

	uid := uuid.NewString()
	var conflict bool
	_, err = g.cb.Execute(func() (interface{}, error) {
		_, err := g.db.ExecContext(ctx,
			`INSERT INTO credentials (uid, email, password_hash) VALUES ($1, $2, $3)`,
			uid, email, string(hash))
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			conflict = true
			return nil, nil
		}
		return nil, err
	})
	if conflict {
		return "", ErrEmailInUse
	}
	if err != nil {
		return "", domain.NewRemoteError("sign up", err)
	}
	g.log.Info("credentials created", zap.String("uid", uid))
	return uid, nil
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	var uid, hash string
	var missing bool
	_, err := g.cb.Execute(func() (interface{}, error) {
		err := g.db.QueryRowContext(ctx,
			`SELECT uid, password_hash FROM credentials WHERE email = $1`, email).Scan(&uid, &hash)
		if err == sql.ErrNoRows {
			missing = true
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return "", domain.NewRemoteError("sign in", err)
	}
	if missing {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return uid, nil
}

func (g *Gateway) DeleteAccount(ctx context.Context, uid string) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		_, err := g.db.ExecContext(ctx, `DELETE FROM credentials WHERE uid = $1`, uid)
		return nil, err
	})
	if err != nil {
		return domain.NewRemoteError("delete account", err)
	}
	g.log.Info("credentials deleted", zap.String("uid", uid))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
