// Package config provides configuration for the session API server and the
// tracker client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the blogpulse configuration.
type Config struct {
	// Server settings
	HTTPPort    int    `yaml:"http_port"`
	DatabaseURL string `yaml:"database_url"`

	// Client settings
	APIURL            string        `yaml:"api_url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	BeaconGrace       time.Duration `yaml:"beacon_grace"`

	// Server-side expiry of sessions that stopped sending heartbeats
	StaleSessionTimeout time.Duration `yaml:"stale_session_timeout"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`

	// Requests per second allowed per client IP on /session routes
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// Live feed websocket settings
	WSPingInterval time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	WSReadTimeout  time.Duration `yaml:"ws_read_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:            8080,
		DatabaseURL:         "file:blogpulse.db?cache=shared&mode=rwc",
		APIURL:              "http://localhost:8080",
		HeartbeatInterval:   30 * time.Second,
		SessionTimeout:      30 * time.Minute,
		RequestTimeout:      10 * time.Second,
		BeaconGrace:         2 * time.Second,
		StaleSessionTimeout: 35 * time.Minute,
		SweepInterval:       time.Minute,
		RateLimitRPS:        20,
		WSPingInterval:      30 * time.Second,
		WSWriteTimeout:      10 * time.Second,
		WSReadTimeout:       60 * time.Second,
		LogLevel:            "info",
	}
}

// Load loads configuration from the optional YAML file named by CONFIG_FILE,
// then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.APIURL = getEnv("API_URL", cfg.APIURL)
	cfg.HeartbeatInterval = getEnvMs("HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	cfg.SessionTimeout = getEnvMs("SESSION_TIMEOUT_MS", cfg.SessionTimeout)
	cfg.RequestTimeout = getEnvMs("REQUEST_TIMEOUT_MS", cfg.RequestTimeout)
	cfg.BeaconGrace = getEnvMs("BEACON_GRACE_MS", cfg.BeaconGrace)
	cfg.StaleSessionTimeout = getEnvMs("STALE_SESSION_TIMEOUT_MS", cfg.StaleSessionTimeout)
	cfg.SweepInterval = getEnvMs("SWEEP_INTERVAL_MS", cfg.SweepInterval)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.WSPingInterval = getEnvMs("WS_PING_INTERVAL_MS", cfg.WSPingInterval)
	cfg.WSWriteTimeout = getEnvMs("WS_WRITE_TIMEOUT_MS", cfg.WSWriteTimeout)
	cfg.WSReadTimeout = getEnvMs("WS_READ_TIMEOUT_MS", cfg.WSReadTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvMs(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
