package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the service configuration read from the environment.
type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port          int           `env:"PORT" envDefault:"8080"`
		Origin        string        `env:"ORIGIN" envDefault:"http://localhost:3000"`
		ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	}

	DynamoDB struct {
		TableName      string        `env:"TABLE_NAME,required,notEmpty"`
		EmailIndexName string        `env:"EMAIL_INDEX_NAME" envDefault:"GSI1"`
		ListIndexName  string        `env:"LIST_INDEX_NAME" envDefault:"GSI2"`
		Region         string        `env:"AWS_REGION"`
		Endpoint       string        `env:"DYNAMODB_ENDPOINT"` // DynamoDB Local, e.g. http://localhost:8000
		CreateTable    bool          `env:"DYNAMODB_CREATE_TABLE" envDefault:"false"`
		Timeout        time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	}

	Auth struct {
		JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	}

	Redis struct {
		Addr     string        `env:"REDIS_ADDR"` // cache disabled when empty
		Password string        `env:"REDIS_PASSWORD" envDefault:""`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		TTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	}

	RateLimit struct {
		RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
		Burst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	}

	Pagination struct {
		DefaultPageSize int `env:"DEFAULT_PAGE_SIZE" envDefault:"25"`
		MaxPageSize     int `env:"MAX_PAGE_SIZE" envDefault:"100"`
	}
}

// Load reads an optional .env file from the working directory and parses
// the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Pagination.DefaultPageSize < 1 {
		errs = append(errs, fmt.Errorf("DEFAULT_PAGE_SIZE must be positive"))
	}
	if c.Pagination.MaxPageSize < c.Pagination.DefaultPageSize {
		errs = append(errs, fmt.Errorf("MAX_PAGE_SIZE must not be below DEFAULT_PAGE_SIZE"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.DynamoDB.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
