package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/output"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify tether configuration settings.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at <home>/config.yaml.

An existing file is kept unless --force is given.`,
	Example: `  tether config init
  tether --home /tmp/tether config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display every configuration key with its effective value.

Effective values include environment overrides. Secrets are masked.`,
	Example: `  tether config show
  tether config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long:  `Print one effective configuration value by its dotted key.`,
	Example: `  tether config get providers.injected.endpoint
  tether config get session_cache.backend`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set one configuration value by its dotted key and save the file.

The file is validated before it is written, so an invalid value leaves it
unchanged. Environment overrides are not written back.`,
	Example: `  tether config set session_cache.backend redis
  tether config set providers.relay.project_id abc123
  tether config set logging.level debug`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = "config"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	enrichParentLong(configCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configKey binds a dotted key to a field of the configuration.
type configKey struct {
	name   string
	secret bool
	get    func(*config.Config) string
	set    func(*config.Config, string) error
}

func stringKey(name string, field func(*config.Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func secretKey(name string, field func(*config.Config) *string) configKey {
	k := stringKey(name, field)
	k.secret = true
	return k
}

func boolKey(name string, field func(*config.Config) *bool) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return badValue(name, v, "true or false")
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(*config.Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return badValue(name, v, "an integer")
			}
			*field(c) = n
			return nil
		},
	}
}

func choiceKey(name string, valid []string, field func(*config.Config) *string) configKey {
	k := stringKey(name, field)
	k.set = func(c *config.Config, v string) error {
		if !slices.Contains(valid, v) {
			return badValue(name, v, strings.Join(valid, ", "))
		}
		*field(c) = v
		return nil
	}
	return k
}

func badValue(key, value, valid string) error {
	return tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{
		"key":   key,
		"value": value,
		"valid": valid,
	})
}

// configKeys lists every key that config get and set understand, in display order.
//
//nolint:gochecknoglobals // Static key table
var configKeys = []configKey{
	stringKey("home", func(c *config.Config) *string { return &c.Home }),
	stringKey("app.name", func(c *config.Config) *string { return &c.App.Name }),
	stringKey("app.description", func(c *config.Config) *string { return &c.App.Description }),
	stringKey("app.url", func(c *config.Config) *string { return &c.App.URL }),
	{
		name: "providers.order",
		get:  func(c *config.Config) string { return strings.Join(c.Providers.Order, ",") },
		set: func(c *config.Config, v string) error {
			c.Providers.Order = strings.Split(v, ",")
			return nil
		},
	},
	boolKey("providers.injected.enabled", func(c *config.Config) *bool { return &c.Providers.Injected.Enabled }),
	stringKey("providers.injected.endpoint", func(c *config.Config) *string { return &c.Providers.Injected.Endpoint }),
	boolKey("providers.relay.enabled", func(c *config.Config) *bool { return &c.Providers.Relay.Enabled }),
	stringKey("providers.relay.url", func(c *config.Config) *string { return &c.Providers.Relay.URL }),
	secretKey("providers.relay.project_id", func(c *config.Config) *string { return &c.Providers.Relay.ProjectID }),
	boolKey("providers.session.enabled", func(c *config.Config) *bool { return &c.Providers.Session.Enabled }),
	stringKey("providers.session.url", func(c *config.Config) *string { return &c.Providers.Session.URL }),
	stringKey("providers.session.app_name", func(c *config.Config) *string { return &c.Providers.Session.AppName }),
	stringKey("providers.session.default_network", func(c *config.Config) *string { return &c.Providers.Session.DefaultNetwork }),
	choiceKey("session_cache.backend", []string{"file", "redis"}, func(c *config.Config) *string { return &c.SessionCache.Backend }),
	stringKey("session_cache.file", func(c *config.Config) *string { return &c.SessionCache.File }),
	stringKey("session_cache.redis.addr", func(c *config.Config) *string { return &c.SessionCache.Redis.Addr }),
	secretKey("session_cache.redis.password", func(c *config.Config) *string { return &c.SessionCache.Redis.Password }),
	intKey("session_cache.redis.db", func(c *config.Config) *int { return &c.SessionCache.Redis.DB }),
	stringKey("session_cache.redis.key", func(c *config.Config) *string { return &c.SessionCache.Redis.Key }),
	boolKey("vault.enabled", func(c *config.Config) *bool { return &c.Vault.Enabled }),
	stringKey("vault.identity_file", func(c *config.Config) *string { return &c.Vault.IdentityFile }),
	boolKey("vault.use_keyring", func(c *config.Config) *bool { return &c.Vault.UseKeyring }),
	intKey("transactions.confirmation_timeout_seconds", func(c *config.Config) *int {
		return &c.Transactions.ConfirmationTimeoutSeconds
	}),
	intKey("transactions.poll_interval_ms", func(c *config.Config) *int { return &c.Transactions.PollIntervalMillis }),
	stringKey("transactions.demo_token_address", func(c *config.Config) *string { return &c.Transactions.DemoTokenAddress }),
	intKey("reads.retry_attempts", func(c *config.Config) *int { return &c.Reads.RetryAttempts }),
	intKey("reads.burst", func(c *config.Config) *int { return &c.Reads.Burst }),
	choiceKey("output.default_format", []string{"auto", "text", "json"}, func(c *config.Config) *string {
		return &c.Output.DefaultFormat
	}),
	choiceKey("output.color", []string{"auto", "always", "never"}, func(c *config.Config) *string { return &c.Output.Color }),
	boolKey("output.verbose", func(c *config.Config) *bool { return &c.Output.Verbose }),
	choiceKey("logging.level", []string{"off", "error", "debug"}, func(c *config.Config) *string { return &c.Logging.Level }),
	stringKey("logging.file", func(c *config.Config) *string { return &c.Logging.File }),
}

func lookupConfigKey(name string) (configKey, error) {
	for _, k := range configKeys {
		if k.name == name {
			return k, nil
		}
	}
	return configKey{}, tethererr.WithSuggestion(
		tethererr.WithDetails(tethererr.ErrNotFound, map[string]string{"key": name}),
		"Run 'tether config show' to list the keys",
	)
}

// mask hides all but the first four characters of a secret.
func mask(v string) string {
	switch {
	case v == "":
		return "(not configured)"
	case len(v) >= 4:
		return v[:4] + "..."
	default:
		return "***..."
	}
}

func (k configKey) display(c *config.Config) string {
	v := k.get(c)
	if k.secret {
		return mask(v)
	}
	return v
}

func completeConfigKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.name
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return tethererr.WithSuggestion(
			tethererr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cfg.Home
	relocate(defaultCfg, cfg.Home)

	if err := config.Save(defaultCfg, configPath); err != nil {
		return tethererr.Wrap(err, "writing config file")
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - providers.injected.endpoint: Your local wallet's RPC endpoint")
	outln(w, "  - providers.relay.project_id: Your relay project id")
	outln(w, "  - session_cache.backend: Where the session is remembered (file/redis)")
	outln(w, "  - logging.level: Log level (off/error/debug)")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	if formatter.Format() == output.FormatJSON {
		values := make(map[string]string, len(configKeys))
		for _, k := range configKeys {
			values[k.name] = k.display(cfg)
		}
		return writeJSON(w, values)
	}

	table := output.NewTable("KEY", "VALUE")
	for _, k := range configKeys {
		table.AddRow(k.name, k.display(cfg))
	}
	return table.Render(w)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	k, err := lookupConfigKey(args[0])
	if err != nil {
		return err
	}
	outln(cmd.OutOrStdout(), k.get(cfg))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	k, err := lookupConfigKey(args[0])
	if err != nil {
		return err
	}

	// Start from the file, not the effective config, so environment
	// overrides stay out of it.
	configPath := config.Path(cfg.Home)
	fileCfg, err := config.Load(configPath)
	if err != nil {
		if !tethererr.Is(err, tethererr.ErrConfigNotFound) {
			return err
		}
		fileCfg = config.Defaults()
		fileCfg.Home = cfg.Home
		relocate(fileCfg, cfg.Home)
	}

	if err := k.set(fileCfg, args[1]); err != nil {
		return err
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(fileCfg, configPath); err != nil {
		return tethererr.Wrap(err, "saving config")
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", k.name, k.display(fileCfg))
	return nil
}
