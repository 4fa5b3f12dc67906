package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/config"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.Defaults()
	cfg.Providers.Relay.ProjectID = "project-123"
	cfg.Providers.Order = []string{"relay", "injected"}
	cfg.Transactions.ConfirmationTimeoutSeconds = 90
	cfg.Output.Verbose = true

	require.NoError(t, config.Save(cfg, path))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, "project-123", loaded.Providers.Relay.ProjectID)
	assert.Equal(t, []string{"relay", "injected"}, loaded.Providers.Order)
	assert.Equal(t, 90*time.Second, loaded.ConfirmationTimeout())
	assert.True(t, loaded.Output.Verbose)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, tethererr.ErrConfigNotFound)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [unclosed"), 0o600))

	_, err := config.Load(path)
	require.ErrorIs(t, err, tethererr.ErrConfigInvalid)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transactions:\n  poll_interval_ms: 250\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, "polygon", cfg.Providers.Session.DefaultNetwork)
	assert.Equal(t, "file", cfg.SessionCache.Backend)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "~/.tether", cfg.Home)
	assert.Equal(t, []string{"injected", "relay", "session"}, cfg.Providers.Order)
	assert.True(t, cfg.Providers.Injected.Enabled)
	assert.Equal(t, []string{"sequence"}, cfg.Providers.Injected.SessionMarkers)
	assert.Equal(t, "polygon", cfg.Providers.Session.DefaultNetwork)
	assert.Equal(t, "file", cfg.SessionCache.Backend)
	assert.Equal(t, time.Duration(0), cfg.ConfirmationTimeout())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, uint64(0x55555), cfg.Transactions.DemoGasLimit)
	assert.Equal(t, config.DefaultDemoTokenAddress, cfg.Transactions.DemoTokenAddress)
	assert.Equal(t, "auto", cfg.Output.DefaultFormat)
	assert.Equal(t, "error", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"empty order", func(c *config.Config) { c.Providers.Order = nil }, "providers.order"},
		{"unknown kind", func(c *config.Config) { c.Providers.Order = []string{"ledger"} }, "providers.order"},
		{"duplicate kind", func(c *config.Config) { c.Providers.Order = []string{"relay", "relay"} }, "providers.order"},
		{"bad injected scheme", func(c *config.Config) { c.Providers.Injected.Endpoint = "ftp://x" }, "providers.injected.endpoint"},
		{"relay missing host", func(c *config.Config) { c.Providers.Relay.URL = "wss://" }, "providers.relay.url"},
		{"bad backend", func(c *config.Config) { c.SessionCache.Backend = "etcd" }, "session_cache.backend"},
		{"negative timeout", func(c *config.Config) { c.Transactions.ConfirmationTimeoutSeconds = -1 }, "transactions.confirmation_timeout_seconds"},
		{"zero poll", func(c *config.Config) { c.Transactions.PollIntervalMillis = 0 }, "transactions.poll_interval_ms"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, tethererr.ErrConfigInvalid)
			assert.Equal(t, tc.key, tethererr.DetailsOf(err)["key"])
		})
	}
}

func TestValidate_DisabledEndpointIgnored(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Providers.Relay.Enabled = false
	cfg.Providers.Relay.URL = ""
	require.NoError(t, cfg.Validate())
}

func TestPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("/home/u/.tether", "config.yaml"), config.Path("/home/u/.tether"))
}
