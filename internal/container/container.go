package container

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/cache"
	"github.com/mashoras/activity-service/internal/adapters/handler"
	"github.com/mashoras/activity-service/internal/adapters/identity"
	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/adapters/repository"
	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/core/ports"
	"github.com/mashoras/activity-service/internal/core/services"
	"github.com/mashoras/activity-service/internal/logger"
)

func newLogger(cfg *config.Config) *zap.Logger {
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	zap.ReplaceGlobals(log)
	return log
}

func newDB(cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := repository.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("database ready")
	return db, nil
}

func newRedis(cfg *config.Config) (*redis.Client, error) {
	return cache.NewClient(context.Background(), cfg.RedisAddr, cfg.RedisPass)
}

func newActivityRepository(db *sql.DB, cfg *config.Config, log *zap.Logger) *repository.ActivityRepository {
	return repository.NewActivityRepository(db, cfg.FeedPingInterval, log)
}

func newUserRepository(db *sql.DB, cfg *config.Config, log *zap.Logger) *repository.UserRepository {
	return repository.NewUserRepository(db, cfg.FeedPingInterval, log)
}

func newTokenBlacklist(client *redis.Client) ports.TokenBlacklist {
	return cache.NewTokenBlacklist(client)
}

func newAuthService(
	gateway ports.IdentityGateway,
	users ports.UserRepository,
	blacklist ports.TokenBlacklist,
	cfg *config.Config,
	log *zap.Logger,
) *services.AuthService {
	return services.NewAuthService(gateway, users, blacklist, cfg.JWTPrivateKey, cfg.TokenTTL, log)
}

// newLiveController is the process-wide, anonymous controller that keeps the
// latest activity snapshot for listings and streams.
func newLiveController(repo ports.ActivityRepository, log *zap.Logger) *services.ActivitiesController {
	return services.NewActivitiesController(repo, nil, nil, log)
}

func newAuthMiddleware(cfg *config.Config, blacklist ports.TokenBlacklist, log *zap.Logger) *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(cfg.JWTPublicKey, blacklist, log)
}

func newHealthHandler(db *sql.DB, client *redis.Client, activities *repository.ActivityRepository) *handler.HealthHandler {
	return handler.NewHealthHandler(db, client, map[string]handler.ReadinessCheck{
		"activity_feed": activities.Feed().IsReady,
	})
}

type handlersIn struct {
	dig.In
	Auth         *handler.AuthHandler
	Registration *handler.RegistrationHandler
	Activities   *handler.ActivityHandler
	Profile      *handler.ProfileHandler
	Health       *handler.HealthHandler
}

func newHandlers(in handlersIn) handler.Handlers {
	return handler.Handlers{
		Auth:         in.Auth,
		Registration: in.Registration,
		Activities:   in.Activities,
		Profile:      in.Profile,
		Health:       in.Health,
	}
}

// New returns the API dependency container.
func New() (*dig.Container, error) {
	c := dig.New()

	providers := []struct {
		constructor interface{}
		opts        []dig.ProvideOption
	}{
		{constructor: config.Load},
		{constructor: newLogger},
		{constructor: newDB},
		{constructor: newRedis},
		{constructor: newActivityRepository},
		{constructor: newUserRepository},
		{constructor: func(r *repository.ActivityRepository) ports.ActivityRepository { return r }},
		{constructor: func(r *repository.UserRepository) ports.UserRepository { return r }},
		{constructor: identity.NewGateway, opts: []dig.ProvideOption{dig.As(new(ports.IdentityGateway))}},
		{constructor: newTokenBlacklist},
		{constructor: newAuthService},
		{constructor: services.NewRegistrationService},
		{constructor: services.NewProfileService},
		{constructor: newLiveController},
		{constructor: newAuthMiddleware},
		{constructor: handler.NewAuthHandler},
		{constructor: handler.NewRegistrationHandler},
		{constructor: handler.NewActivityHandler},
		{constructor: handler.NewProfileHandler},
		{constructor: newHealthHandler},
		{constructor: newHandlers},
	}
	for _, p := range providers {
		if err := c.Provide(p.constructor, p.opts...); err != nil {
			return nil, errors.Wrap(err, "failed to provide dependency")
		}
	}
	return c, nil
}
