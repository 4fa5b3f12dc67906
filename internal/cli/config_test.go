package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/config"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

func TestConfigKeys_Unique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, k := range configKeys {
		assert.False(t, seen[k.name], "duplicate key %s", k.name)
		seen[k.name] = true
	}
}

func TestConfigKeys_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   string
		value string
	}{
		{"providers.injected.endpoint", "ws://127.0.0.1:9999"},
		{"providers.injected.enabled", "false"},
		{"providers.order", "relay,session"},
		{"session_cache.backend", "redis"},
		{"session_cache.redis.db", "3"},
		{"transactions.poll_interval_ms", "250"},
		{"output.default_format", "json"},
		{"logging.level", "debug"},
		{"vault.use_keyring", "true"},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()

			c := config.Defaults()
			k, err := lookupConfigKey(tc.key)
			require.NoError(t, err)
			require.NoError(t, k.set(c, tc.value))
			assert.Equal(t, tc.value, k.get(c))
		})
	}
}

func TestConfigKeys_RejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   string
		value string
	}{
		{"session_cache.backend", "memcached"},
		{"output.default_format", "yaml"},
		{"output.color", "sometimes"},
		{"logging.level", "trace"},
		{"vault.enabled", "maybe"},
		{"session_cache.redis.db", "two"},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Parallel()

			k, err := lookupConfigKey(tc.key)
			require.NoError(t, err)
			require.ErrorIs(t, k.set(config.Defaults(), tc.value), tethererr.ErrInvalidInput)
		})
	}
}

func TestLookupConfigKey_Unknown(t *testing.T) {
	t.Parallel()

	_, err := lookupConfigKey("networks.eth.rpc")
	require.ErrorIs(t, err, tethererr.ErrNotFound)
}

func TestMask(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(not configured)", mask(""))
	assert.Equal(t, "***...", mask("abc"))
	assert.Equal(t, "abcd...", mask("abcdefgh"))
}

func TestConfigCommands(t *testing.T) {
	t.Setenv(config.EnvCacheBackend, "")
	home := t.TempDir()
	path := config.Path(home)

	res := runCLI(t, "", "--home", home, "config", "init")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, path)
	require.FileExists(t, path)

	res = runCLI(t, "", "--home", home, "config", "init")
	require.ErrorIs(t, res.err, tethererr.ErrGeneral)

	res = runCLI(t, "", "--home", home, "config", "init", "--force")
	require.NoError(t, res.err)

	res = runCLI(t, "", "--home", home, "config", "set", "providers.relay.project_id", "secret-project")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "secr...")

	res = runCLI(t, "", "--home", home, "config", "get", "providers.relay.project_id")
	require.NoError(t, res.err)
	assert.Equal(t, "secret-project\n", res.stdout)

	res = runCLI(t, "", "--home", home, "-o", "json", "config", "show")
	require.NoError(t, res.err)
	var shown map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &shown))
	assert.Equal(t, "secr...", shown["providers.relay.project_id"])
	assert.Equal(t, filepath.Join(home, "session.json"), shown["session_cache.file"])

	res = runCLI(t, "", "--home", home, "-o", "text", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "KEY")
	assert.Contains(t, res.stdout, "providers.injected.endpoint")
}

func TestConfigSet_InvalidLeavesFileUnchanged(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, runCLI(t, "", "--home", home, "config", "init").err)

	before, err := os.ReadFile(config.Path(home))
	require.NoError(t, err)

	res := runCLI(t, "", "--home", home, "config", "set", "transactions.poll_interval_ms", "0")
	require.ErrorIs(t, res.err, tethererr.ErrConfigInvalid)

	after, err := os.ReadFile(config.Path(home))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfigSet_IgnoresEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.EnvRelayURL, "wss://override.example")

	res := runCLI(t, "", "--home", home, "config", "set", "logging.level", "debug")
	require.NoError(t, res.err)

	saved, err := config.Load(config.Path(home))
	require.NoError(t, err)
	assert.Equal(t, "debug", saved.Logging.Level)
	assert.Equal(t, config.DefaultRelayURL, saved.Providers.Relay.URL)
}
