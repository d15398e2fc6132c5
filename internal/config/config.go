// Package config loads process configuration for the outbox services
// from the environment, following the envconfig conventions used
// throughout this repository's sibling services.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable this package reads.
const EnvPrefix = "OUTBOX"

// Config aggregates every process-level setting, grouped by concern.
type Config struct {
	App     AppConfig
	DB      DBConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Relay   RelayConfig
	Cleanup CleanupConfig
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	for _, group := range []any{&cfg.App, &cfg.DB, &cfg.GCP, &cfg.PubSub, &cfg.Relay, &cfg.Cleanup} {
		if err := envconfig.Process(EnvPrefix, group); err != nil {
			return nil, fmt.Errorf("outbox config: %w", err)
		}
	}

	return &cfg, nil
}

// AppConfig carries process-wide settings unrelated to any one component.
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Console  bool   `envconfig:"LOG_CONSOLE" default:"false"`
}

// DBConfig configures the Postgres connection pool shared by every component.
type DBConfig struct {
	DSN             string        `envconfig:"DB_DSN" required:"true"`
	Table           string        `envconfig:"DB_TABLE" default:"outbox"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	RetryCount      int           `envconfig:"DB_RETRY_COUNT" default:"3"`
}

// GCPConfig identifies the GCP project backing the Pub/Sub broker adapter.
type GCPConfig struct {
	ProjectID string `envconfig:"GCP_PROJECT_ID"`
}

// PubSubConfig configures the C6 broker publisher.
type PubSubConfig struct {
	DefaultTopic  string `envconfig:"PUBSUB_DEFAULT_TOPIC"`
	UseLoggingDev bool   `envconfig:"PUBSUB_LOGGING_ONLY" default:"false"`
}

// RelayConfig tunes the C5 relay worker.
type RelayConfig struct {
	BatchSize       int           `envconfig:"RELAY_BATCH_SIZE" default:"20"`
	PollInterval    time.Duration `envconfig:"RELAY_POLL_INTERVAL" default:"10s"`
	Workers         int           `envconfig:"RELAY_WORKERS" default:"1"`
	PartitionWindow time.Duration `envconfig:"RELAY_PARTITION_WINDOW" default:"0s"`
	HandlerTimeout  time.Duration `envconfig:"RELAY_HANDLER_TIMEOUT" default:"15s"`
	MaxAttempts     int           `envconfig:"RELAY_MAX_ATTEMPTS" default:"5"`
	PendingInterval time.Duration `envconfig:"RELAY_PENDING_INTERVAL" default:"30s"`
}

// CleanupConfig tunes the cmd/outbox-cleanup retention job when run in-process.
type CleanupConfig struct {
	Retention          time.Duration `envconfig:"CLEANUP_RETENTION" default:"720h"`
	IncludeQuarantined bool          `envconfig:"CLEANUP_INCLUDE_QUARANTINED" default:"true"`
	CheckEvery         time.Duration `envconfig:"CLEANUP_CHECK_EVERY" default:"1h"`
}
