package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the alert processor.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`

	// Rules maps a source type to its evaluation parameters. A source
	// absent from the map carries an empty rule set: no escalation, no
	// auto-close.
	Rules map[string]SourceRule `yaml:"rules"`
}

type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

type KafkaConfig struct {
	Brokers  []string       `yaml:"brokers"`
	Topic    string         `yaml:"topic"`
	Producer ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the Kafka writer pool.
type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

type StorageConfig struct {
	// Driver is postgres or sqlite.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RetentionConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs"`
	DeleteGraceMins  int `yaml:"delete_grace_mins"`
}

func (r RetentionConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSecs) * time.Second
}

func (r RetentionConfig) DeleteGrace() time.Duration {
	return time.Duration(r.DeleteGraceMins) * time.Minute
}

// SourceRule holds the per-source evaluation parameters. Zero values
// disable the corresponding behavior.
type SourceRule struct {
	WindowMins         int    `yaml:"window_mins"`
	EscalateIfCount    int    `yaml:"escalate_if_count"`
	AutoCloseAfterMins int    `yaml:"auto_close_after_mins"`
	AutoCloseIf        string `yaml:"auto_close_if"`
}

func (r SourceRule) Window() time.Duration {
	return time.Duration(r.WindowMins) * time.Minute
}

func (r SourceRule) AutoCloseAfter() time.Duration {
	return time.Duration(r.AutoCloseAfterMins) * time.Minute
}

// Escalates reports whether the rule carries a usable escalation threshold.
func (r SourceRule) Escalates() bool {
	return r.EscalateIfCount > 0 && r.WindowMins > 0
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:        ":4000",
			MaxBodySize: 1 << 20,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "alert-events",
			Producer: ProducerConfig{
				PoolSize:     4,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		Storage: StorageConfig{
			Driver: "postgres",
			DSN:    "postgres://localhost:5432/fleetwatch?sslmode=disable",
		},
		Retention: RetentionConfig{
			PollIntervalSecs: 5,
			DeleteGraceMins:  5,
		},
		Rules: map[string]SourceRule{
			"overspeed": {
				WindowMins:         10,
				EscalateIfCount:    3,
				AutoCloseAfterMins: 30,
			},
			"feedback_negative": {
				WindowMins:         30,
				EscalateIfCount:    3,
				AutoCloseAfterMins: 60,
			},
			"compliance": {
				AutoCloseIf:        "document_valid",
				AutoCloseAfterMins: 1440,
			},
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path yields defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("RETENTION_POLL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retention.PollIntervalSecs = n
		}
	}
}

// Validate rejects configurations the processor cannot run with.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if cfg.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "postgres", "postgresql", "sqlite":
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Retention.PollIntervalSecs <= 0 {
		return errors.New("retention.poll_interval_secs must be > 0")
	}
	if cfg.Retention.DeleteGraceMins <= 0 {
		return errors.New("retention.delete_grace_mins must be > 0")
	}
	for src, rule := range cfg.Rules {
		if rule.EscalateIfCount > 0 && rule.WindowMins <= 0 {
			return fmt.Errorf("rules.%s: escalate_if_count requires window_mins", src)
		}
	}
	return nil
}

// RuleFor resolves the rule set for a source type, falling back to the
// empty rule set when the source is unconfigured.
func (c *Config) RuleFor(sourceType string) SourceRule {
	if c.Rules == nil {
		return SourceRule{}
	}
	return c.Rules[sourceType]
}
