// Package config provides configuration management for Scanloom.
// Settings are read from an optional YAML file first, then overridden by
// environment variables with the SCANLOOM_ prefix; everything has a
// sensible default.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Scanloom service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Interaction InteractionConfig `yaml:"interaction"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     `yaml:"port"`             // Server port (default: 7370)
	Host           string  `yaml:"host"`             // Server host (default: 127.0.0.1)
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`   // Requests per second (default: 50)
	RateLimitBurst int     `yaml:"rate_limit_burst"` // Burst size (default: 100)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory for sqlite (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Connection string when engine is postgres
}

// PersistenceConfig tunes the optimistic write pipeline.
type PersistenceConfig struct {
	WritesPerSecond float64 `yaml:"writes_per_second"` // Backend write throttle (default: 50)
	BreakerFailures int     `yaml:"breaker_failures"`  // Consecutive failures to trip (default: 3)
	BreakerTimeout  string  `yaml:"breaker_timeout"`   // Open-state duration (default: 30s)
}

// InteractionConfig contains editing defaults sent to clients.
type InteractionConfig struct {
	ClickThresholdPx float64 `yaml:"click_threshold_px"` // Pixel radius separating click from drag (default: 5)
	MeasurementUnit  string  `yaml:"measurement_unit"`   // Default unit for new measurements (default: m)
}

// LoadConfig loads configuration with defaults, then an optional YAML file
// named by SCANLOOM_CONFIG_FILE, then SCANLOOM_* environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("SCANLOOM_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           7370,
			Host:           "127.0.0.1",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Persistence: PersistenceConfig{
			WritesPerSecond: 50,
			BreakerFailures: 3,
			BreakerTimeout:  "30s",
		},
		Interaction: InteractionConfig{
			ClickThresholdPx: 5,
			MeasurementUnit:  "m",
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("SCANLOOM_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SCANLOOM_HOST", cfg.Server.Host)
	cfg.Server.RateLimitRPS = getEnvFloat("SCANLOOM_RATE_LIMIT_RPS", cfg.Server.RateLimitRPS)
	cfg.Server.RateLimitBurst = getEnvInt("SCANLOOM_RATE_LIMIT_BURST", cfg.Server.RateLimitBurst)

	cfg.Storage.Engine = getEnv("SCANLOOM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("SCANLOOM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("SCANLOOM_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Persistence.WritesPerSecond = getEnvFloat("SCANLOOM_WRITES_PER_SECOND", cfg.Persistence.WritesPerSecond)
	cfg.Persistence.BreakerFailures = getEnvInt("SCANLOOM_BREAKER_FAILURES", cfg.Persistence.BreakerFailures)
	cfg.Persistence.BreakerTimeout = getEnv("SCANLOOM_BREAKER_TIMEOUT", cfg.Persistence.BreakerTimeout)

	cfg.Interaction.ClickThresholdPx = getEnvFloat("SCANLOOM_CLICK_THRESHOLD_PX", cfg.Interaction.ClickThresholdPx)
	cfg.Interaction.MeasurementUnit = getEnv("SCANLOOM_MEASUREMENT_UNIT", cfg.Interaction.MeasurementUnit)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
