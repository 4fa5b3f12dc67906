// Package cli implements the tether command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and released by cleanup once the command returns.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/version"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	providerName string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext

	// buildInfo is set by Execute
	buildInfo version.Build
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Connect to a user wallet and drive it from the terminal",
	Long: `Tether gives an application one handle to a user-controlled Ethereum wallet.

The wallet can be a local injected wallet, a wallet paired through a relay,
or a smart-contract session wallet. Once connected, the same commands read
chain state, sign messages and typed data, and send and await transactions.

The last connected provider is remembered and restored silently on the next
run, so one 'tether connect' is enough until 'tether disconnect'.`,
	Example: `  tether connect injected
  tether sign message --demo
  tether send native --to 0x... --amount 0.01`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
}

// Execute runs the root command with the given build information. An
// interrupt cancels the running command; pending waits stop and the
// session stays cached.
func Execute(info version.Build) error {
	buildInfo = info
	rootCmd.Version = info.String()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		formatErr(err)
	}
	return err
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return tethererr.ExitCode(err)
}

// formatErr prints err to stderr in the active output format.
func formatErr(err error) {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		if !tethererr.Is(err, tethererr.ErrConfigNotFound) {
			return err
		}
		cfg = config.Defaults()
		cfg.Home = home
		relocate(cfg, home)
	}

	config.ApplyEnvironment(cfg)

	// Flags win over file and environment
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}

	w := io.Writer(os.Stdout)
	if cmd != nil {
		w = cmd.OutOrStdout()
	}
	formatter = output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), w)

	cmdCtx = NewCommandContext(cfg, logger, formatter)
	return nil
}

// relocate moves the default per-user paths under home.
func relocate(c *config.Config, home string) {
	c.SessionCache.File = filepath.Join(home, "session.json")
	c.Vault.IdentityFile = filepath.Join(home, "identity.age")
	c.Logging.File = filepath.Join(home, "tether.log")
}

// cleanup releases resources. It runs after the command even when the
// command failed.
func cleanup() {
	if cmdCtx != nil {
		cmdCtx.Close()
		cmdCtx = nil
	}
	if logger != nil {
		_ = logger.Close()
		logger = nil
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the command context.
func Context() *CommandContext {
	return cmdCtx
}

// out is a helper for CLI output.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "tether data directory (default: ~/.tether)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "provider kind to connect with: injected, relay, session")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "chain", Title: "Chain Reads:"},
		&cobra.Group{ID: "actions", Title: "Signing & Transactions:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)
	rootCmd.SetVersionTemplate("tether {{.Version}}\n")
}
