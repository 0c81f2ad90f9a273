package repository

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/mashoras/activity-service/internal/core/domain"
)

// Notification channels raised by the table triggers.
const (
	ActivitiesChannel = "activities_changed"
	UsersChannel      = "users_changed"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "migration source")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// guard runs fn through the breaker. Not-found and validation outcomes are
// returned as-is and do not count as breaker failures; everything else becomes
// a RemoteError.
func guard(cb *gobreaker.CircuitBreaker, op string, fn func() error) error {
	var domainErr error
	_, err := cb.Execute(func() (interface{}, error) {
		err := fn()
		if domain.IsNotFound(err) || domain.IsValidation(err) {
			domainErr = err
			return nil, nil
		}
		return nil, err
	})
	if domainErr != nil {
		return domainErr
	}
	if err != nil {
		return domain.NewRemoteError(op, err)
	}
	return nil
}
