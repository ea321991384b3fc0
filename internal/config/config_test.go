package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".seiql/mirrors", cfg.MirrorDir)
	assert.Equal(t, "sqlite", cfg.Registry.Driver)
	assert.Equal(t, ".seiql/registry.db", cfg.Registry.Path)
	assert.Equal(t, ".seiql/chain.json", cfg.Chain.StateFile)
	assert.Equal(t, 30*time.Second, cfg.Chain.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seiql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mirror_dir: /var/lib/seiql
registry:
  driver: postgres
  dsn: postgres://seiql@localhost/seiql
chain:
  timeout: 5s
log:
  level: DEBUG
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/seiql", cfg.MirrorDir)
	assert.Equal(t, "postgres", cfg.Registry.Driver)
	assert.Equal(t, "postgres://seiql@localhost/seiql", cfg.Registry.DSN)
	assert.Equal(t, 5*time.Second, cfg.Chain.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SEIQL_MIRROR_DIR", "/tmp/mirrors")
	t.Setenv("SEIQL_CHAIN_TIMEOUT", "2m")
	t.Setenv("SEIQL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mirrors", cfg.MirrorDir)
	assert.Equal(t, 2*time.Minute, cfg.Chain.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		MirrorDir: "mirrors",
		Registry:  RegistryConfig{Driver: "sqlite", Path: "registry.db"},
		Chain:     ChainConfig{Timeout: time.Second},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"postgres with dsn", func(c *Config) { c.Registry = RegistryConfig{Driver: "postgres", DSN: "postgres://x"} }, false},
		{"empty mirror dir", func(c *Config) { c.MirrorDir = "" }, true},
		{"unknown driver", func(c *Config) { c.Registry.Driver = "mysql" }, true},
		{"sqlite without path", func(c *Config) { c.Registry.Path = "" }, true},
		{"postgres without dsn", func(c *Config) { c.Registry = RegistryConfig{Driver: "postgres"} }, true},
		{"zero timeout", func(c *Config) { c.Chain.Timeout = 0 }, true},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, false)
	logger.Info("dropped")
	logger.Warn("kept", "table", "accounts")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"table":"accounts"`)

	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "error"}.SlogLevel(true))
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel(false))
}
