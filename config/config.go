// Package config loads process-level settings for the grantmesh server and
// agents. Values come from an optional YAML file, then GRANTMESH_* environment
// variables override them.
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

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRANTMESH_"

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Registry  RegistryConfig  `yaml:"registry"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
}

// ServerConfig configures the transport binding.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	EventBuffer int    `yaml:"event_buffer"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// RateLimitConfig bounds action calls per agent. PerSecond 0 disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// RedisConfig enables the Redis event sink when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// LedgerConfig enables the SQLite event ledger when Path is set.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig controls idle reaping. A zero ReapInterval leaves reaping
// to explicit triggers.
type RegistryConfig struct {
	ReapInterval  time.Duration `yaml:"reap_interval"`
	IdleThreshold time.Duration `yaml:"idle_threshold"`
}

// EvaluatorConfig configures the reference evaluator agent.
type EvaluatorConfig struct {
	Server       string        `yaml:"server"`
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			EventBuffer: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{Burst: 10},
		Redis:     RedisConfig{Channel: "grantmesh.events"},
		Registry: RegistryConfig{
			IdleThreshold: 30 * time.Minute,
		},
		Evaluator: EvaluatorConfig{
			Server:       "ws://localhost:8080/ws",
			Provider:     "static",
			PollInterval: 10 * time.Second,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GRANTMESH_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Server.Addr)
	num("EVENT_BUFFER", &c.Server.EventBuffer)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err))
		} else {
			c.RateLimit.PerSecond = f
		}
	}
	num("RATE_BURST", &c.RateLimit.Burst)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	str("REDIS_CHANNEL", &c.Redis.Channel)
	str("LEDGER_PATH", &c.Ledger.Path)
	dur("REAP_INTERVAL", &c.Registry.ReapInterval)
	dur("IDLE_THRESHOLD", &c.Registry.IdleThreshold)
	str("EVALUATOR_SERVER", &c.Evaluator.Server)
	str("EVALUATOR_PROVIDER", &c.Evaluator.Provider)
	str("EVALUATOR_MODEL", &c.Evaluator.Model)
	dur("EVALUATOR_POLL_INTERVAL", &c.Evaluator.PollInterval)

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.EventBuffer < 1 {
		errs = append(errs, errors.New("server.event_buffer must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.per_second must not be negative"))
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be positive when rate limiting is enabled"))
	}
	if c.Registry.ReapInterval < 0 || c.Registry.IdleThreshold < 0 {
		errs = append(errs, errors.New("registry durations must not be negative"))
	}
	switch c.Evaluator.Provider {
	case "static", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("evaluator.provider %q: want static, anthropic or openai", c.Evaluator.Provider))
	}
	return errors.Join(errs...)
}
