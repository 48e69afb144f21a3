package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "staffauth", cfg.ServiceName)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, 24*time.Hour, cfg.JWT.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	require.Equal(t, "@selco.com.br", cfg.Email.AllowedDomain)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, "test.connectivity", cfg.Kafka.Topics.Connectivity)
	require.Empty(t, cfg.Kafka.Brokers)
	require.Equal(t, "dev-only-insecure-secret", cfg.SigningSecret())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staffauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: prod
jwt:
  secret: from-file
  access_ttl: 15m
email:
  allowed_domain: "@empresa.com"
store:
  driver: Postgres
postgres:
  dsn: postgres://localhost/staffauth
kafka:
  brokers: [k1:9092]
`), 0o600))

	t.Setenv("STAFFAUTH_JWT_SECRET", "from-env")
	t.Setenv("STAFFAUTH_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STAFFAUTH_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "from-env", cfg.JWT.Secret)
	require.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	require.Equal(t, "@empresa.com", cfg.Email.AllowedDomain)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"secret outside dev", func(c *Config) { c.Env = "prod"; c.JWT.Secret = "" }},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"negative refresh ttl", func(c *Config) { c.JWT.RefreshTTL = -time.Hour }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }},
		{"empty queue", func(c *Config) { c.Notify.QueueSize = 0 }},
		{"no rate burst", func(c *Config) { c.Rate.Burst = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, base().Validate())
}
