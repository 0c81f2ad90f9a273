package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/feed"
	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

type UserRepository struct {
	db   *sql.DB
	cb   *gobreaker.CircuitBreaker
	feed *feed.Feed[[]domain.User]
	log  *zap.Logger
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *sql.DB, pingInterval time.Duration, log *zap.Logger) *UserRepository {
	if log == nil {
		log = zap.NewNop()
	}
	r := &UserRepository{
		db:  db,
		cb:  config.NewCircuitBreaker(config.BreakerPostgres, log),
		log: log.Named("user_repository"),
	}
	r.feed = feed.New("users", UsersChannel, r.listUsers, pingInterval, log)
	return r
}

func (r *UserRepository) Feed() *feed.Feed[[]domain.User] { return r.feed }

// WatchUser follows a single profile through the users feed. fn receives nil
// while the profile is missing.
func (r *UserRepository) WatchUser(ctx context.Context, uid string, fn func(*domain.User)) error {
	return r.feed.Subscribe(ctx, func(users []domain.User) {
		for i := range users {
			if users[i].UID == uid {
				u := users[i]
				fn(&u)
				return
			}
		}
		fn(nil)
	})
}

func (r *UserRepository) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	var u domain.User
	err := guard(r.cb, "get user", func() error {
		rec, err := scanUser(r.db.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE uid = $1`, uid))
		if err == sql.ErrNoRows {
			return domain.NewNotFoundError("user", uid)
		}
		if err != nil {
			return err
		}
		u = toUser(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	return guard(r.cb, "create user", func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO users (uid, nombre, apellido, email, rol, carrera, meta, avance,
				actividades_realizadas, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
			user.UID, user.Name, user.LastName, user.Email, string(user.Role), user.Career,
			user.HourGoal, pq.Array(dedupe(user.CompletedActivityIDs)), user.CreatedAt)
		return err
	})
}

func (r *UserRepository) UpdateHourGoal(ctx context.Context, uid string, goal int) error {
	return guard(r.cb, "update hour goal", func() error {
		res, err := r.db.ExecContext(ctx, `UPDATE users SET meta = $2 WHERE uid = $1`, uid, goal)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.NewNotFoundError("user", uid)
		}
		return nil
	})
}

// ListUsersByRole matches the decoding rule: any stored role other than the
// teacher value is a student.
func (r *UserRepository) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	if role == domain.RoleTeacher {
		return r.queryUsers(ctx, "list users", `SELECT `+userColumns+` FROM users WHERE rol = $1 ORDER BY uid`, string(domain.RoleTeacher))
	}
	return r.queryUsers(ctx, "list users", `SELECT `+userColumns+` FROM users WHERE rol <> $1 ORDER BY uid`, string(domain.RoleTeacher))
}

func (r *UserRepository) listUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, "list users", `SELECT `+userColumns+` FROM users ORDER BY uid`)
}

func (r *UserRepository) queryUsers(ctx context.Context, op, query string, args ...interface{}) ([]domain.User, error) {
	var users []domain.User
	err := guard(r.cb, op, func() error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		users = make([]domain.User, 0)
		for rows.Next() {
			rec, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, toUser(rec))
		}
		return rows.Err()
	})
	return users, err
}
