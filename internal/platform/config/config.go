package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `yaml:"service_name"`
	HTTPPort     string   `yaml:"http_port"`
	Storage      string   `yaml:"storage"`
	PostgresDSN  string   `yaml:"postgres_dsn"`
	SQLitePath   string   `yaml:"sqlite_path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`

	SettlementURL        string        `yaml:"settlement_url"`
	SettlementMaxRetries uint64        `yaml:"settlement_max_retries"`
	OutboxPollInterval   time.Duration `yaml:"outbox_poll_interval"`
	IdempotencyTTL       time.Duration `yaml:"idempotency_ttl"`

	// RateLimitPerSecond throttles write requests per caller; zero disables it.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
	RequireContentCID  bool    `yaml:"require_content_cid"`
	// EmbeddedRelay runs the outbox relay inside the API process. The memory
	// driver always does, since no other process can read its outbox.
	EmbeddedRelay bool `yaml:"embedded_relay"`
}

func Default() Config {
	return Config{
		ServiceName:          "dataset-registry",
		HTTPPort:             "8080",
		Storage:              StorageMemory,
		SQLitePath:           "dataset-registry.db",
		KafkaBrokers:         []string{"localhost:9092"},
		SettlementMaxRetries: 3,
		OutboxPollInterval:   time.Second,
		IdempotencyTTL:       7 * 24 * time.Hour,
		RateLimitBurst:       10,
	}
}

// Load starts from Default, overlays the YAML file named by CONFIG_FILE when
// set, then applies environment variables, which always win.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if value := os.Getenv("SERVICE_NAME"); value != "" {
		cfg.ServiceName = value
	}
	if value := os.Getenv("HTTP_PORT"); value != "" {
		cfg.HTTPPort = value
	}
	if value := os.Getenv("STORAGE_DRIVER"); value != "" {
		cfg.Storage = strings.ToLower(strings.TrimSpace(value))
	}
	if value := os.Getenv("POSTGRES_DSN"); value != "" {
		cfg.PostgresDSN = value
	}
	if value := os.Getenv("SQLITE_PATH"); value != "" {
		cfg.SQLitePath = value
	}
	if value := os.Getenv("SETTLEMENT_URL"); value != "" {
		cfg.SettlementURL = value
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}

	var err error
	if cfg.OutboxPollInterval, err = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(os.Getenv("SETTLEMENT_MAX_RETRIES")); raw != "" {
		if cfg.SettlementMaxRetries, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return Config{}, fmt.Errorf("SETTLEMENT_MAX_RETRIES: %w", err)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_PER_SECOND")); raw != "" {
		if cfg.RateLimitPerSecond, err = strconv.ParseFloat(raw, 64); err != nil {
			return Config{}, fmt.Errorf("RATE_LIMIT_PER_SECOND: %w", err)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); raw != "" {
		if cfg.RateLimitBurst, err = strconv.Atoi(raw); err != nil {
			return Config{}, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
	}
	cfg.RequireContentCID = envBool("REQUIRE_CONTENT_CID", cfg.RequireContentCID)
	cfg.EmbeddedRelay = envBool("EMBEDDED_OUTBOX_RELAY", cfg.EmbeddedRelay)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("storage %q requires POSTGRES_DSN", c.Storage)
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("storage %q requires SQLITE_PATH", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
