package config

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/spf13/viper"
)

/* Config is read from an optional .env file (TOML) in the working directory
 * Environment variables override the file; every key has a default
 */

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	StoreBackend      string        `mapstructure:"STORE_BACKEND"`
	QueueBackend      string        `mapstructure:"QUEUE_BACKEND"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisPassword     string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int           `mapstructure:"REDIS_DB"`
	PostgresDSN       string        `mapstructure:"POSTGRES_DSN"`
	ProjectsFile      string        `mapstructure:"PROJECTS_FILE"`
	DeliveryTimeout   time.Duration `mapstructure:"DELIVERY_TIMEOUT"`
	RetryMaxAttempts  int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryDelay        time.Duration `mapstructure:"RETRY_DELAY"`
	RetryBackoff      string        `mapstructure:"RETRY_BACKOFF"`
	RetryMaxDelay     time.Duration `mapstructure:"RETRY_MAX_DELAY"`
	WorkerEnabled     bool          `mapstructure:"WORKER_ENABLED"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	LockTTL           time.Duration `mapstructure:"LOCK_TTL"`
}

var defaults = map[string]interface{}{
	"PORT":               "8080",
	"STORE_BACKEND":      BackendRedis,
	"QUEUE_BACKEND":      BackendRedis,
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"POSTGRES_DSN":       "",
	"PROJECTS_FILE":      "projects.yaml",
	"DELIVERY_TIMEOUT":   "10s",
	"RETRY_MAX_ATTEMPTS": 3,
	"RETRY_DELAY":        "2s",
	"RETRY_BACKOFF":      "fixed",
	"RETRY_MAX_DELAY":    "1m",
	"WORKER_ENABLED":     true,
	"WORKER_CONCURRENCY": 4,
	"LOCK_TTL":           "30s",
}

// GetConfig loads the configuration; a missing .env file is not an error
func GetConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}

// Validate rejects unknown backends and unusable budgets
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.StoreBackend, validation.Required, validation.In(BackendMemory, BackendRedis, BackendPostgres)),
		validation.Field(&c.QueueBackend, validation.Required, validation.In(BackendMemory, BackendRedis)),
		validation.Field(&c.RedisAddr, validation.When(c.usesRedis(), validation.Required)),
		validation.Field(&c.PostgresDSN, validation.When(c.StoreBackend == BackendPostgres, validation.Required)),
		validation.Field(&c.DeliveryTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RetryMaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryBackoff, validation.In("fixed", "exponential")),
		validation.Field(&c.WorkerConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.LockTTL, validation.Required, validation.Min(time.Millisecond)),
	)
}

// RetryPolicy returns the global retry policy
func (c *Config) RetryPolicy() webhook.RetryPolicy {
	return webhook.RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		Delay:       c.RetryDelay,
		Backoff:     webhook.NewBackoff(c.RetryBackoff),
		MaxDelay:    c.RetryMaxDelay,
	}
}

func (c *Config) usesRedis() bool {
	return c.StoreBackend == BackendRedis || c.QueueBackend == BackendRedis
}
