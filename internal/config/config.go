package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Sync     SyncConfig
	Server   ServerConfig
	Tracing  TracingConfig
	Log      LogConfig
}

type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ProviderConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond int
	RateBurst     int
}

type SyncConfig struct {
	PollIntervalMs int
	MaxRetries     int
	TokenRegistry  string
}

type ServerConfig struct {
	HealthPort int
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Provider: ProviderConfig{
			URL:           getEnv("PROVIDER_URL", "http://localhost:9000"),
			Timeout:       time.Duration(getEnvInt("PROVIDER_TIMEOUT_SEC", 30)) * time.Second,
			RatePerSecond: getEnvInt("PROVIDER_RPS", 10),
			RateBurst:     getEnvInt("PROVIDER_BURST", 5),
		},
		Sync: SyncConfig{
			PollIntervalMs: getEnvInt("SYNC_POLL_INTERVAL_MS", 1000),
			MaxRetries:     getEnvInt("SYNC_MAX_RETRIES", 3),
			TokenRegistry:  getEnv("TOKEN_REGISTRY_PATH", ""),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Provider.URL == "" {
		return fmt.Errorf("PROVIDER_URL is required")
	}
	if c.Provider.RatePerSecond <= 0 {
		return fmt.Errorf("PROVIDER_RPS must be positive")
	}
	if c.Sync.PollIntervalMs <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL_MS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
