package config

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker names.
const (
	BreakerPostgres = "PostgreSQL"
	BreakerRedis    = "Redis"
	BreakerRabbitMQ = "RabbitMQ"
)

// NewCircuitBreaker creates a circuit breaker with standard settings.
func NewCircuitBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}

	var timeout time.Duration
	switch name {
	case BreakerRedis:
		timeout = 5 * time.Second // matches the health check timeout
	case BreakerPostgres:
		timeout = 10 * time.Second
	default:
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Error("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
