package config

import "github.com/pkg/errors"

// LoadNotifierConfig reads what the notifier process needs: the database for
// the change feed, Redis for dedup and RabbitMQ for delivery. No keys.
func LoadNotifierConfig() (*Config, error) {
	cfg, _, err := loadCommon()
	if err != nil {
		return nil, err
	}
	if cfg.RabbitMQURL == "" {
		return nil, errors.New("MASHORAS_RABBITMQ_URL environment variable is required")
	}
	return cfg, nil
}
