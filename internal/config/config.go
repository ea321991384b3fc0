// Package config loads seiql settings from defaults, an optional YAML file,
// and SEIQL_ environment variables, then checks them against an embedded
// CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SEIQL_MIRROR_DIR.
const EnvPrefix = "SEIQL"

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	MirrorDir string         `mapstructure:"mirror_dir" json:"mirror_dir"`
	Registry  RegistryConfig `mapstructure:"registry" json:"registry"`
	Chain     ChainConfig    `mapstructure:"chain" json:"chain"`
	Log       LogConfig      `mapstructure:"log" json:"log"`
}

// RegistryConfig selects the resolver backend.
type RegistryConfig struct {
	Driver string `mapstructure:"driver" json:"driver"`
	Path   string `mapstructure:"path" json:"path,omitempty"`
	DSN    string `mapstructure:"dsn" json:"dsn,omitempty"`
}

// ChainConfig configures the development chain.
type ChainConfig struct {
	// StateFile persists chain state between runs. Empty keeps it in memory.
	StateFile string        `mapstructure:"state_file" json:"state_file,omitempty"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mirror_dir", ".seiql/mirrors")
	v.SetDefault("registry.driver", "sqlite")
	v.SetDefault("registry.path", ".seiql/registry.db")
	v.SetDefault("registry.dsn", "")
	v.SetDefault("chain.state_file", ".seiql/chain.json")
	v.SetDefault("chain.timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Registry.Driver = strings.ToLower(strings.TrimSpace(cfg.Registry.Driver))
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps the configured level name. verbose forces debug.
func (c LogConfig) SlogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel(verbose)}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
