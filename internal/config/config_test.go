package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigPath, "DB_URL", "REDIS_URL", "LOG_LEVEL", "ADMIN_JWT_SECRET", "SCHEMA_ID",
		"HEALTH_PORT", "ADMIN_PORT", "INGESTION_INTERVAL_SEC", "REVOCATION_INTERVAL_SEC",
	} {
		t.Setenv(key, "")
	}
	for name := range model.KnownChains {
		t.Setenv("CHAIN_"+strings.ToUpper(string(name))+"_ENDPOINT", "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "astral.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.RevocationInterval)
	assert.Equal(t, 100, cfg.Scheduler.SweepLimit)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.FetchTimeout)
	assert.Equal(t, int64(1672531200), cfg.Scheduler.HistoricalEpoch)
	assert.Equal(t, 100, cfg.Scheduler.ErrorRingSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.Factor)
	assert.Equal(t, 100, cfg.Source.RevokedPageSize)
	assert.Equal(t, 8080, cfg.Server.HealthPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Fallback.Enabled)
	assert.Empty(t, cfg.Chains)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
db:
  url: postgres://u:p@db:5432/astral
source:
  schema_id: "0xschema"
  requests_per_second: 2
chains:
  - name: Sepolia
    endpoint: https://sepolia.easscan.org/graphql
    burst: 9
  - name: base
    endpoint: https://base.easscan.org/graphql
    schema_id: "0xbase"
  - name: celo
scheduler:
  ingestion_interval: 15s
  sweep_disabled: true
retry:
  max_attempts: 5
fallback:
  enabled: true
  sqlite_path: /tmp/astral.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/astral", cfg.DB.URL)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.RevocationInterval, "unset keys keep defaults")
	assert.True(t, cfg.Scheduler.SweepDisabled)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Fallback.Enabled)

	require.Len(t, cfg.Chains, 3)
	assert.Equal(t, "base", cfg.Chains[0].Name)
	assert.Equal(t, "0xbase", cfg.Chains[0].SchemaID)
	assert.Equal(t, "celo", cfg.Chains[1].Name)
	sepolia := cfg.Chains[2]
	assert.Equal(t, "sepolia", sepolia.Name)
	assert.Equal(t, "0xschema", sepolia.SchemaID)
	assert.Equal(t, 2.0, sepolia.RequestsPerSecond)
	assert.Equal(t, 9, sepolia.Burst)
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "log:\n  level: debug\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
source:
  schema_id: "0xschema"
chains:
  - name: sepolia
    endpoint: https://from-file
server:
  health_port: 9000
`)
	t.Setenv("DB_URL", "postgres://env/astral")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	t.Setenv("HEALTH_PORT", "9100")
	t.Setenv("INGESTION_INTERVAL_SEC", "30")
	t.Setenv("REVOCATION_INTERVAL_SEC", "600")
	t.Setenv("CHAIN_SEPOLIA_ENDPOINT", "https://from-env")
	t.Setenv("CHAIN_OPTIMISM_ENDPOINT", "https://optimism-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/astral", cfg.DB.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "s3cret", cfg.Server.AdminJWTSecret)
	assert.Equal(t, 9100, cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.RevocationInterval)

	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, ChainConfig{
		Name: "optimism", Endpoint: "https://optimism-env", SchemaID: "0xschema",
		RequestsPerSecond: 5, Burst: 5,
	}, cfg.Chains[0])
	assert.Equal(t, "https://from-env", cfg.Chains[1].Endpoint)
}

func TestLoad_BadEnvInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEALTH_PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEALTH_PORT")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "scheduler: [not, a, map\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty db url", mutate: func(c *Config) { c.DB.URL = "" }, wantErr: "db.url"},
		{name: "statement timeout too long", mutate: func(c *Config) { c.DB.StatementTimeoutMS = 7200000 }, wantErr: "statement_timeout_ms"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log.level"},
		{name: "zero ingestion interval", mutate: func(c *Config) { c.Scheduler.IngestionInterval = 0 }, wantErr: "ingestion_interval"},
		{name: "zero revocation interval", mutate: func(c *Config) { c.Scheduler.RevocationInterval = 0 }, wantErr: "revocation_interval"},
		{name: "zero batch size", mutate: func(c *Config) { c.Scheduler.BatchSize = 0 }, wantErr: "batch_size"},
		{name: "negative epoch", mutate: func(c *Config) { c.Scheduler.HistoricalEpoch = -1 }, wantErr: "historical_epoch"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "shrinking factor", mutate: func(c *Config) { c.Retry.Factor = 0.5 }, wantErr: "retry.factor"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, wantErr: "sample_ratio"},
		{name: "fallback without path", mutate: func(c *Config) {
			c.Fallback.Enabled = true
			c.Fallback.SQLitePath = ""
		}, wantErr: "sqlite_path"},
		{name: "port out of range", mutate: func(c *Config) { c.Server.AdminPort = 70000 }, wantErr: "port 70000"},
		{name: "unknown chain", mutate: func(c *Config) {
			c.Chains = []ChainConfig{{Name: "dogechain", Endpoint: "http://x", SchemaID: "s"}}
		}, wantErr: `unknown chain "dogechain"`},
		{name: "duplicate chain", mutate: func(c *Config) {
			c.Chains = []ChainConfig{{Name: "base"}, {Name: "base"}}
		}, wantErr: "base configured twice"},
		{name: "endpoint without schema", mutate: func(c *Config) {
			c.Chains = []ChainConfig{{Name: "base", Endpoint: "http://x"}}
		}, wantErr: "no schema_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.DB.URL = ""
	cfg.Retry.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.url")
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestActiveChains(t *testing.T) {
	cfg := Default()
	cfg.Chains = []ChainConfig{
		{Name: "arbitrum", Endpoint: "https://arb", SchemaID: "s"},
		{Name: "celo"},
		{Name: "sepolia", Endpoint: "https://sep", SchemaID: "s"},
	}

	active, excluded := cfg.ActiveChains()
	require.Len(t, active, 2)
	assert.Equal(t, "arbitrum", active[0].Name)
	assert.Equal(t, "sepolia", active[1].Name)
	assert.Equal(t, []string{"celo"}, excluded)
}

func TestActiveChains_NoneConfigured(t *testing.T) {
	active, excluded := Default().ActiveChains()
	assert.Empty(t, active)
	assert.Empty(t, excluded)
}
