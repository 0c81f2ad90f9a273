package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/feed"
	"github.com/mashoras/activity-service/internal/adapters/handler"
	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/adapters/repository"
	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/container"
	"github.com/mashoras/activity-service/internal/core/services"
)

type app struct {
	dig.In
	Config     *config.Config
	Log        *zap.Logger
	DB         *sql.DB
	Redis      *redis.Client
	Activities *repository.ActivityRepository
	Users      *repository.UserRepository
	Live       *services.ActivitiesController
	Handlers   handler.Handlers
	Auth       *middleware.AuthMiddleware
}

func main() {
	c, err := container.New()
	if err != nil {
		log.Fatalf("failed to build container: %v", err)
	}
	if err := c.Invoke(run); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run(a app) error {
	defer a.Log.Sync()
	defer a.DB.Close()
	defer a.Redis.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runFeed(ctx, a.Log, "activities", func(ctx context.Context) error {
		return a.Activities.Feed().Run(ctx, feed.NewPQListener(a.Config.DatabaseURL, a.Log))
	})
	go runFeed(ctx, a.Log, "users", func(ctx context.Context) error {
		return a.Users.Feed().Run(ctx, feed.NewPQListener(a.Config.DatabaseURL, a.Log))
	})

	a.Live.Start(ctx)
	defer a.Live.Stop()
	go keepLive(ctx, a.Log, a.Live)

	server := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           handler.NewRouter(a.Handlers, a.Auth, a.Config.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.Log.Info("starting server", zap.String("port", a.Config.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("received shutdown signal")
	case err := <-errChan:
		a.Log.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("error shutting down server", zap.Error(err))
	}
	a.Log.Info("shutdown complete")
	return nil
}

// runFeed keeps a change feed listening, restarting it after failures.
func runFeed(ctx context.Context, log *zap.Logger, name string, run func(context.Context) error) {
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn("change feed stopped, restarting", zap.String("feed", name), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// keepLive resubscribes the shared controller after its subscription fails.
// The controller itself never retries.
func keepLive(ctx context.Context, log *zap.Logger, live *services.ActivitiesController) {
	states, cancel := live.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-states:
			if s.Status != services.StatusError {
				continue
			}
			log.Warn("live activity state failed, resubscribing", zap.String("message", s.Message))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			live.Stop()
			live.Start(ctx)
		}
	}
}
