// Package config loads the reliability core's runtime configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrConfigPathIsEmpty is returned when no config path was supplied on the
// command line or via the CONFIG_PATH environment variable.
var ErrConfigPathIsEmpty = errors.New("config path is empty")

// Config is the top-level configuration document. Every section matches a
// table in the specification's "Configuration" section.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logger    LoggerConfig    `yaml:"logger"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Runner    RunnerConfig    `yaml:"runner"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Lock      LockConfig      `yaml:"lock"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"integration-events"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps" env-default:"50"`
	Burst int `yaml:"burst" env-default:"100"`
}

// LoggerConfig configures the stdout + rotating-file tee.
type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	FilePath   string `yaml:"file_path" env:"LOG_FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"28"`
}

// OutboxConfig matches the spec's "outbox" configuration table.
type OutboxConfig struct {
	BatchSize                  int     `yaml:"batch_size" env-default:"50"`
	MaxAttempts                int     `yaml:"max_attempts" env-default:"5"`
	BaseRetryDelaySeconds      int     `yaml:"base_retry_delay_seconds" env-default:"60"`
	RetryMultiplier            float64 `yaml:"retry_multiplier" env-default:"2.0"`
	MaxRetryDelaySeconds       int     `yaml:"max_retry_delay_seconds" env-default:"3600"`
	ProcessorIntervalSeconds   int     `yaml:"processor_interval_seconds" env-default:"30"`
	LockTimeoutSeconds         int     `yaml:"lock_timeout_seconds" env-default:"300"`
	DefaultGroup               string  `yaml:"default_group" env-default:"default"`
	MaxInProcessBytes          int     `yaml:"max_in_process_bytes" env-default:"50000"`
	RouteLargePayloadsExternal bool    `yaml:"route_large_payloads_external" env-default:"false"`
}

// RunnerConfig matches the spec's "runner" configuration table.
type RunnerConfig struct {
	MaxExecutionSeconds int     `yaml:"max_execution_seconds" env-default:"25"`
	MemoryLimitPercent  float64 `yaml:"memory_limit_percent" env-default:"0.8"`
}

// WorkflowConfig matches the spec's "workflow" configuration table.
type WorkflowConfig struct {
	MaxRetries         int `yaml:"max_retries" env-default:"3"`
	RescheduleInterval int `yaml:"reschedule_interval" env-default:"5"`
	ForkDelaySeconds   int `yaml:"fork_delay_seconds" env-default:"30"`
}

// LockConfig matches the spec's "lock" configuration table.
type LockConfig struct {
	DurationSeconds int `yaml:"duration_seconds" env-default:"30"`
	Retries         int `yaml:"retries" env-default:"10"`
	RetryIntervalMS int `yaml:"retry_interval_ms" env-default:"1000"`
}

// MustLoad loads config or panics; used from cmd/ wiring only.
func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path, applying env overrides on top, the way
// a cleanenv-based config loader layers env vars over YAML defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrConfigPathIsEmpty
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

func fetchConfigPath() string {
	var result string
	if !flag.Parsed() {
		flag.StringVar(&result, "config", "", "path to config file")
		flag.Parse()
	}
	if result == "" {
		result = os.Getenv("CONFIG_PATH")
	}
	return result
}

// DefaultPath resolves the config file path for a cmd/ binary: the
// CONFIG_PATH environment variable if set, otherwise the repo-relative
// default used in local dev and in the Docker image.
func DefaultPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}
