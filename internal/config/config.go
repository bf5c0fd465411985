package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"DEBUG"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"insecure-dev-secret"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PostgresConfig
	RedisConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	Host            string `env:"POSTGRES_HOST" envDefault:"db"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	Username        string `env:"POSTGRES_USERNAME" envDefault:"test"`
	Password        string `env:"POSTGRES_PASSWORD" envDefault:"test"`
	Database        string `env:"POSTGRES_DATABASE" envDefault:"test"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	MigrationsURL   string `env:"MIGRATIONS_URL" envDefault:"file://internal/repository/db/migrations"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}

// RedisConfig drives the bid rate limiter. An empty address disables
// rate limiting entirely.
type RedisConfig struct {
	RedisAddress  string `env:"REDIS_ADDRESS" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	BidRateLimit  int    `env:"BID_RATE_LIMIT" envDefault:"10"`
	BidRateWindow int    `env:"BID_RATE_WINDOW_SECONDS" envDefault:"3600"`
}
