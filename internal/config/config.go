package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port               string `env:"PORT" envDefault:"8081"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND" envDefault:"memory"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/crowdfund.db"`
	// Asset bank database used with the sqlite backend
	AssetDBPath string `env:"ASSET_DB_PATH" envDefault:"./data/assets.db"`

	// Identity the ledger holds donated funds under
	LedgerAccount string `env:"LEDGER_ACCOUNT" envDefault:"ledger"`
	// Mount the /dev/assets endpoints of the asset bank
	DevAssets bool `env:"DEV_ASSETS" envDefault:"true"`

	// AMQP; an empty URL disables event relaying
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"crowdfund"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"ledger_events"`

	// Event relay
	RelayBatchSize  int           `env:"RELAY_BATCH_SIZE" envDefault:"10"`
	RelayInterval   time.Duration `env:"RELAY_INTERVAL" envDefault:"10s"`
	RelayMaxRetries int           `env:"RELAY_MAX_RETRIES" envDefault:"5"`

	// Observability
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// RelayEnabled reports whether events should be published to a broker.
func (c *Config) RelayEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		for _, db := range []struct{ name, path string }{
			{"SQLite database", c.SQLiteDBPath},
			{"asset database", c.AssetDBPath},
		} {
			if db.path == "" {
				errors = append(errors, fmt.Sprintf("%s path cannot be empty when using sqlite backend", db.name))
				continue
			}
			dir := filepath.Dir(db.path)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create %s directory '%s': %v", db.name, dir, err))
					}
				}
			}
		}
		// The ledger calls the bank while holding its own write transaction.
		if c.AssetDBPath != "" && filepath.Clean(c.AssetDBPath) == filepath.Clean(c.SQLiteDBPath) {
			errors = append(errors, "asset database path must differ from the SQLite database path")
		}
	}

	if strings.TrimSpace(c.LedgerAccount) == "" {
		errors = append(errors, "ledger account cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		// The outbox only exists durably in SQLite.
		if c.DataBackend == BackendMemory {
			errors = append(errors, "AMQP relay requires the sqlite backend")
		}
	}

	if c.RelayBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid relay batch size %d: must be at least 1", c.RelayBatchSize))
	} else if c.RelayBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid relay batch size %d: must be at most 1000", c.RelayBatchSize))
	}

	if c.RelayInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid relay interval %v: must be at least 1 second", c.RelayInterval))
	} else if c.RelayInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid relay interval %v: must be at most 24 hours", c.RelayInterval))
	}

	if c.RelayMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid relay max retries %d: must be at least 1", c.RelayMaxRetries))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.OTelEndpoint != "" {
		if _, err := url.Parse(c.OTelEndpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid OTEL endpoint '%s': %v", c.OTelEndpoint, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
