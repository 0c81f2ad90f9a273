package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/cache"
	"github.com/mashoras/activity-service/internal/adapters/feed"
	"github.com/mashoras/activity-service/internal/adapters/messaging"
	"github.com/mashoras/activity-service/internal/adapters/repository"
	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/core/services"
	"github.com/mashoras/activity-service/internal/logger"
	"github.com/mashoras/activity-service/internal/metrics"
)

func main() {
	cfg, err := config.LoadNotifierConfig()
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	logr := logger.New(cfg.LogLevel, cfg.LogFile).Named("notifier")
	defer logr.Sync()
	zap.ReplaceGlobals(logr)

	logr.Info("starting notification service")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPass)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	broker, err := messaging.NewRabbitMQBroker(cfg.RabbitMQURL, cfg.NotificationQueue, logr)
	if err != nil {
		logr.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer broker.Close()
	logr.Info("connected to RabbitMQ", zap.String("queue", cfg.NotificationQueue))

	activities := repository.NewActivityRepository(db, cfg.FeedPingInterval, logr)
	users := repository.NewUserRepository(db, cfg.FeedPingInterval, logr)
	supervisor := services.NewNotificationSupervisor(
		users,
		activities,
		cache.NewDedupStore(redisClient),
		broker,
		cfg.ReconcileInterval,
		logr,
	)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, httpStatus := "UP", http.StatusOK
		if !activities.Feed().IsHealthy() {
			status, httpStatus = "DOWN", http.StatusServiceUnavailable
		}
		writeStatus(w, httpStatus, status)
	})
	healthMux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		status, httpStatus := "UP", http.StatusOK
		if !activities.Feed().IsReady() || !supervisor.IsReady() || !broker.IsReady() {
			status, httpStatus = "DOWN", http.StatusServiceUnavailable
		}
		writeStatus(w, httpStatus, status)
	})
	healthMux.Handle("/metrics", metrics.Handler())

	healthServer := &http.Server{
		Addr:              ":" + cfg.NotifierPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logr.Info("starting health check server", zap.String("port", cfg.NotifierPort))
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("health server error", zap.Error(err))
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		if err := activities.Feed().Run(ctx, feed.NewPQListener(cfg.DatabaseURL, logr)); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()
	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("received shutdown signal")
	case err := <-errChan:
		logr.Error("fatal error, shutting down", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logr.Error("error shutting down health server", zap.Error(err))
	}
	supervisor.StopAll()
	logr.Info("shutdown complete")
}

func writeStatus(w http.ResponseWriter, httpStatus int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status,
		"component": "notifier",
	})
}
