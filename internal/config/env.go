package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome                = "TETHER_HOME"
	EnvInjectedRPC         = "TETHER_INJECTED_RPC"
	EnvRelayURL            = "TETHER_RELAY_URL"
	EnvRelayProjectID      = "TETHER_RELAY_PROJECT_ID"
	EnvSessionURL          = "TETHER_SESSION_URL"
	EnvCacheBackend        = "TETHER_CACHE_BACKEND"
	EnvRedisAddr           = "TETHER_REDIS_ADDR"
	EnvRedisPassword       = "TETHER_REDIS_PASSWORD" // #nosec G101 -- false positive, this is a const name not a credential
	EnvConfirmationTimeout = "TETHER_CONFIRMATION_TIMEOUT"
	EnvOutputFormat        = "TETHER_OUTPUT_FORMAT"
	EnvVerbose             = "TETHER_VERBOSE"
	EnvLogLevel            = "TETHER_LOG_LEVEL"
	EnvNoColor             = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvInjectedRPC); v != "" {
		cfg.Providers.Injected.Endpoint = SanitizeURL(v)
	}

	if v := os.Getenv(EnvRelayURL); v != "" {
		cfg.Providers.Relay.URL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvRelayProjectID); v != "" {
		cfg.Providers.Relay.ProjectID = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSessionURL); v != "" {
		cfg.Providers.Session.URL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvCacheBackend); v != "" {
		cfg.SessionCache.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.SessionCache.Redis.Addr = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.SessionCache.Redis.Password = v
	}

	// TETHER_CONFIRMATION_TIMEOUT is in seconds; 0 disables the bound
	if v := os.Getenv(EnvConfirmationTimeout); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			cfg.Transactions.ConfirmationTimeoutSeconds = secs
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace and strips control characters and spaces
// left behind by copy-paste.
func SanitizeURL(raw string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}
