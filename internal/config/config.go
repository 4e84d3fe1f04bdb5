// Package config loads process configuration from DAGENGINE_* environment
// variables: a typed Config struct, a Load() that applies env overrides
// over defaults, and a Validate() that rejects nonsensical values
// before startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EngineConfig controls scheduler defaults.
type EngineConfig struct {
	CPUThreads      int
	DefaultDeadline time.Duration
	NodeTimeout     time.Duration
	ArtifactsDir    string
	Env             string // "dev", "test", "prod"
}

// RedisConfig holds Redis connection settings on Config. ioclient does
// not read it: each Adapter is configured from its registry endpoint
// entry alone.
type RedisConfig struct {
	Addr         string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	PoolSize     int
	MaxInflight  int
}

// LoggingConfig controls internal/logging.
type LoggingConfig struct {
	Level  string
	Format string
}

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Engine  EngineConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

// Load reads Config from the environment, falling back to defaults for any
// variable that is unset or fails to parse.
func Load() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			CPUThreads:      getEnvAsInt("DAGENGINE_CPU_THREADS", 8),
			DefaultDeadline: getEnvAsDuration("DAGENGINE_DEADLINE", 0),
			NodeTimeout:     getEnvAsDuration("DAGENGINE_NODE_TIMEOUT", 0),
			ArtifactsDir:    getEnv("DAGENGINE_ARTIFACTS_DIR", "./artifacts"),
			Env:             getEnv("DAGENGINE_ENV", "dev"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("DAGENGINE_REDIS_ADDR", "localhost:6379"),
			DialTimeout: getEnvAsDuration("DAGENGINE_REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout: getEnvAsDuration("DAGENGINE_REDIS_READ_TIMEOUT", time.Second),
			PoolSize:    getEnvAsInt("DAGENGINE_REDIS_POOL_SIZE", 10),
			MaxInflight: getEnvAsInt("DAGENGINE_REDIS_MAX_INFLIGHT", 64),
		},
		Logging: LoggingConfig{
			Level:  getEnv("DAGENGINE_LOG_LEVEL", "info"),
			Format: getEnv("DAGENGINE_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration combinations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.CPUThreads < 1 {
		return fmt.Errorf("config: cpu threads must be at least 1, got %d", c.Engine.CPUThreads)
	}

	switch c.Engine.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("config: invalid env %q", c.Engine.Env)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Logging.Format)
	}

	if c.Redis.PoolSize < 1 {
		return fmt.Errorf("config: redis pool size must be at least 1, got %d", c.Redis.PoolSize)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

