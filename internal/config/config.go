// Package config handles sysui configuration using Viper.
//
// Precedence: flags > SYSUI_* environment > config file > defaults.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wefram/sysui/internal/errors"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendVault  = "vault"
)

// EnvPrefix prefixes every environment override (SYSUI_API_URL...).
const EnvPrefix = "SYSUI"

var backends = []string{BackendMemory, BackendFile, BackendBolt, BackendRedis, BackendVault}

// Config holds the application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Locale    string          `mapstructure:"locale" yaml:"locale"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig locates the backend.
type APIConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig selects where the credential is persisted.
type StoreConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	Path        string        `mapstructure:"path" yaml:"path"`
	Key         string        `mapstructure:"key" yaml:"key"`
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
	Passphrase  string        `mapstructure:"passphrase" yaml:"passphrase"`
	Vault       VaultConfig   `mapstructure:"vault" yaml:"vault"`
}

// VaultConfig locates a HashiCorp Vault KV v2 engine for the vault backend.
type VaultConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Token     string `mapstructure:"token" yaml:"token"`
	Mount     string `mapstructure:"mount" yaml:"mount"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// DefaultDir returns ~/.sysui.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sysui"
	}
	return filepath.Join(home, ".sysui")
}

// NewViper returns a Viper instance with defaults, environment binding and
// the config file (if any) loaded. A missing default config file is not an
// error; a missing explicit one is.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.ErrCodeConfigRead, "failed to read config file", err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.NewConfigInvalidError("api.url", "must not be empty")
	}
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigInvalidError("api.url", "must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return errors.NewConfigInvalidError("api.timeout", "must be positive")
	}

	if !slices.Contains(backends, c.Store.Backend) {
		return errors.NewConfigInvalidError("store.backend", "must be one of "+strings.Join(backends, ", "))
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisURL == "" {
		return errors.NewConfigInvalidError("store.redis_url", "is required for the redis backend")
	}
	if c.Store.Backend == BackendVault && c.Store.Vault.Address == "" {
		return errors.NewConfigInvalidError("store.vault.address", "is required for the vault backend")
	}
	if c.Store.Key == "" {
		return errors.NewConfigInvalidError("store.key", "must not be empty")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.NewConfigInvalidError("log.format", "must be text or json")
	}
	return nil
}

// StorePath returns the file or database path for disk backends.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Backend {
	case BackendBolt:
		return filepath.Join(DefaultDir(), "credentials.db")
	default:
		return DefaultDir()
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Store.Passphrase != "" {
		c.Store.Passphrase = "********"
	}
	if c.Store.Vault.Token != "" {
		c.Store.Vault.Token = "********"
	}
	if c.Store.RedisURL != "" {
		if u, err := url.Parse(c.Store.RedisURL); err == nil && u.User != nil {
			u.User = url.User(u.User.Username())
			c.Store.RedisURL = u.String()
		}
	}
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:8000/api")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.key", "systemui.authorization")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_prefix", "sysui:")
	v.SetDefault("store.redis_ttl", time.Duration(0))
	v.SetDefault("store.passphrase", "")
	v.SetDefault("store.vault.address", "")
	v.SetDefault("store.vault.token", "")
	v.SetDefault("store.vault.mount", "secret")
	v.SetDefault("store.vault.namespace", "")
	v.SetDefault("store.vault.prefix", "sysui/")
	v.SetDefault("locale", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("metrics.textfile", "")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
