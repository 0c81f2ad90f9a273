package config

import (
	"crypto/rsa"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is shared by the API and the notifier. Fields a process does not use
// keep their defaults.
type Config struct {
	JWTPrivateKey *rsa.PrivateKey
	JWTPublicKey  *rsa.PublicKey
	TokenTTL      time.Duration

	DatabaseURL string
	RedisAddr   string
	RedisPass   string
	RabbitMQURL string

	Port              string
	NotifierPort      string
	NotificationQueue string
	ReconcileInterval time.Duration
	FeedPingInterval  time.Duration
	AllowedOrigins    []string

	LogLevel string
	LogFile  string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("private_key_path", "/etc/certs/private.pem")
	v.SetDefault("public_key_path", "/etc/certs/public.pem")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("port", "8080")
	v.SetDefault("notifier_port", "8081")
	v.SetDefault("notification_queue", "notifications")
	v.SetDefault("reconcile_interval", 30*time.Second)
	v.SetDefault("feed_ping_interval", 90*time.Second)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("MASHORAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv("MASHORAS_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

// Load reads the API configuration. The database URL and both RSA keys are
// required.
func Load() (*Config, error) {
	cfg, v, err := loadCommon()
	if err != nil {
		return nil, err
	}

	cfg.JWTPrivateKey, err = loadPrivateKey(v.GetString("private_key_path"))
	if err != nil {
		return nil, errors.Wrap(err, "load private key")
	}
	cfg.JWTPublicKey, err = loadPublicKey(v.GetString("public_key_path"))
	if err != nil {
		return nil, errors.Wrap(err, "load public key")
	}
	return cfg, nil
}

func loadCommon() (*Config, *viper.Viper, error) {
	if err := loadDotEnv(); err != nil {
		return nil, nil, err
	}
	v := newViper()

	cfg := &Config{
		TokenTTL:          v.GetDuration("token_ttl"),
		DatabaseURL:       v.GetString("database_url"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPass:         v.GetString("redis_password"),
		RabbitMQURL:       v.GetString("rabbitmq_url"),
		Port:              v.GetString("port"),
		NotifierPort:      v.GetString("notifier_port"),
		NotificationQueue: v.GetString("notification_queue"),
		ReconcileInterval: v.GetDuration("reconcile_interval"),
		FeedPingInterval:  v.GetDuration("feed_ping_interval"),
		AllowedOrigins:    v.GetStringSlice("allowed_origins"),
		LogLevel:          v.GetString("log_level"),
		LogFile:           v.GetString("log_file"),
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("MASHORAS_DATABASE_URL environment variable is required")
	}
	return cfg, v, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPrivateKeyFromPEM(keyData)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(keyData)
}
