package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Registry.IdleThreshold)
	assert.Zero(t, cfg.Registry.ReapInterval)
	assert.Zero(t, cfg.RateLimit.PerSecond)
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grantmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9090"
log:
  level: debug
  format: json
rate_limit:
  per_second: 5
  burst: 2
redis:
  addr: localhost:6379
ledger:
  path: /tmp/grantmesh.db
registry:
  reap_interval: 1m
  idle_threshold: 10m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Server.EventBuffer)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 5.0, cfg.RateLimit.PerSecond, 0)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "grantmesh.events", cfg.Redis.Channel)
	assert.Equal(t, "/tmp/grantmesh.db", cfg.Ledger.Path)
	assert.Equal(t, time.Minute, cfg.Registry.ReapInterval)
	assert.Equal(t, 10*time.Minute, cfg.Registry.IdleThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"GRANTMESH_ADDR":          ":7000",
		"GRANTMESH_LOG_LEVEL":     "warn",
		"GRANTMESH_RATE_LIMIT":    "2.5",
		"GRANTMESH_RATE_BURST":    "4",
		"GRANTMESH_REDIS_DB":      "3",
		"GRANTMESH_REAP_INTERVAL": "45s",
		"GRANTMESH_LEDGER_PATH":   ":memory:",
	})))
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.InDelta(t, 2.5, cfg.RateLimit.PerSecond, 0)
	assert.Equal(t, 4, cfg.RateLimit.Burst)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 45*time.Second, cfg.Registry.ReapInterval)
	assert.Equal(t, ":memory:", cfg.Ledger.Path)
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"GRANTMESH_RATE_BURST":    "many",
		"GRANTMESH_REAP_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "GRANTMESH_RATE_BURST")
	assert.ErrorContains(t, err, "GRANTMESH_REAP_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, "server.addr"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative rate", func(c *Config) { c.RateLimit.PerSecond = -1 }, "per_second"},
		{"zero burst", func(c *Config) { c.RateLimit.PerSecond = 1; c.RateLimit.Burst = 0 }, "burst"},
		{"negative reap", func(c *Config) { c.Registry.ReapInterval = -time.Second }, "registry"},
		{"provider", func(c *Config) { c.Evaluator.Provider = "gemini" }, "evaluator.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
