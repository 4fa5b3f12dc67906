// Package config provides configuration management for Tether.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version      int                `yaml:"version"`
	Home         string             `yaml:"home"`
	App          AppConfig          `yaml:"app"`
	Providers    ProvidersConfig    `yaml:"providers"`
	SessionCache SessionCacheConfig `yaml:"session_cache"`
	Vault        VaultConfig        `yaml:"vault"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Reads        ReadsConfig        `yaml:"reads"`
	Output       OutputConfig       `yaml:"output"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AppConfig is the metadata shown to wallets during connection consent.
type AppConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

// ProvidersConfig defines the wallet provider catalog.
type ProvidersConfig struct {
	Order    []string               `yaml:"order"`
	Injected InjectedProviderConfig `yaml:"injected"`
	Relay    RelayProviderConfig    `yaml:"relay"`
	Session  SessionProviderConfig  `yaml:"session"`
}

// InjectedProviderConfig defines the locally reachable wallet endpoint.
type InjectedProviderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// SessionMarkers are substrings of web3_clientVersion that identify an
	// injected wallet which is itself a session wallet.
	SessionMarkers []string `yaml:"session_markers"`
}

// RelayProviderConfig defines the relay-negotiated wallet connection.
type RelayProviderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	ProjectID string `yaml:"project_id"`
}

// SessionProviderConfig defines the smart-contract session wallet service.
type SessionProviderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	AppName        string `yaml:"app_name"`
	DefaultNetwork string `yaml:"default_network"`
}

// SessionCacheConfig defines where the last connected provider kind is kept.
type SessionCacheConfig struct {
	Backend string      `yaml:"backend"`
	File    string      `yaml:"file"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig defines the redis session cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// VaultConfig defines encryption of resume tokens at rest.
type VaultConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IdentityFile string `yaml:"identity_file"`
	UseKeyring   bool   `yaml:"use_keyring"`
}

// TransactionsConfig defines submission and confirmation settings.
type TransactionsConfig struct {
	// ConfirmationTimeoutSeconds bounds the receipt wait. Zero means unbounded.
	ConfirmationTimeoutSeconds int    `yaml:"confirmation_timeout_seconds"`
	PollIntervalMillis         int    `yaml:"poll_interval_ms"`
	DemoGasLimit               uint64 `yaml:"demo_gas_limit"`
	DemoTokenAddress           string `yaml:"demo_token_address"`
}

// ReadsConfig defines retry and throttling for idempotent reads.
type ReadsConfig struct {
	RetryAttempts      int     `yaml:"retry_attempts"`
	RatePerSecond      float64 `yaml:"rate_per_second"`
	Burst              int     `yaml:"burst"`
	BreakerFailures    uint32  `yaml:"breaker_failures"`
	BreakerOpenSeconds int     `yaml:"breaker_open_seconds"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tethererr.WithDetails(tethererr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, tethererr.WithCause(tethererr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks that the configuration can drive a provider catalog.
func (c *Config) Validate() error {
	if len(c.Providers.Order) == 0 {
		return invalid("providers.order", "at least one provider kind is required")
	}

	seen := make(map[string]bool, len(c.Providers.Order))
	for _, kind := range c.Providers.Order {
		switch kind {
		case "injected", "relay", "session":
		default:
			return invalid("providers.order", fmt.Sprintf("unknown kind %q", kind))
		}
		if seen[kind] {
			return invalid("providers.order", fmt.Sprintf("duplicate kind %q", kind))
		}
		seen[kind] = true
	}

	endpoints := map[string]struct {
		enabled bool
		raw     string
	}{
		"providers.injected.endpoint": {c.Providers.Injected.Enabled, c.Providers.Injected.Endpoint},
		"providers.relay.url":         {c.Providers.Relay.Enabled, c.Providers.Relay.URL},
		"providers.session.url":       {c.Providers.Session.Enabled, c.Providers.Session.URL},
	}
	for key, ep := range endpoints {
		if !ep.enabled {
			continue
		}
		if err := validateEndpoint(ep.raw); err != nil {
			return invalid(key, err.Error())
		}
	}

	switch c.SessionCache.Backend {
	case "file", "redis":
	default:
		return invalid("session_cache.backend", fmt.Sprintf("unsupported backend %q", c.SessionCache.Backend))
	}

	if c.Transactions.ConfirmationTimeoutSeconds < 0 {
		return invalid("transactions.confirmation_timeout_seconds", "must not be negative")
	}
	if c.Transactions.PollIntervalMillis <= 0 {
		return invalid("transactions.poll_interval_ms", "must be positive")
	}

	return nil
}

func invalid(key, reason string) error {
	return tethererr.WithDetails(tethererr.ErrConfigInvalid, map[string]string{
		"key":    key,
		"reason": reason,
	})
}

var (
	errUnsupportedScheme = errors.New("unsupported scheme")
	errMissingHost       = errors.New("missing host")
)

func validateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%w %q", errUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return errMissingHost
	}
	return nil
}

// GetHome returns the tether home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// ConfirmationTimeout returns the receipt wait bound, or zero when unbounded.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.Transactions.ConfirmationTimeoutSeconds) * time.Second
}

// PollInterval returns the receipt polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Transactions.PollIntervalMillis) * time.Millisecond
}

// DefaultHome returns the default tether home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tether"
	}
	return filepath.Join(home, ".tether")
}
