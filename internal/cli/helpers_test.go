package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/wallettest"
)

// cliResult is the captured outcome of one command line.
type cliResult struct {
	stdout string
	stderr string
	err    error
}

// saveGlobals snapshots CLI globals and returns a restore function.
func saveGlobals(t *testing.T) func() {
	t.Helper()

	origHome, origFormat, origVerbose, origProvider := homeDir, outputFormat, verbose, providerName
	origCfg, origLogger, origFormatter, origCtx := cfg, logger, formatter, cmdCtx
	origTerminal, origPrompt := stdinIsTerminal, promptProviderFn

	return func() {
		homeDir, outputFormat, verbose, providerName = origHome, origFormat, origVerbose, origProvider
		cfg, logger, formatter, cmdCtx = origCfg, origLogger, origFormatter, origCtx
		stdinIsTerminal, promptProviderFn = origTerminal, origPrompt
	}
}

// resetFlags puts every flag in the tree back to its default so one
// command line does not leak into the next.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		cmd.Flags().VisitAll(reset)
		cmd.PersistentFlags().VisitAll(reset)
	})
}

// runCLI executes one command line against the real command tree.
func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()

	restore := saveGlobals(t)
	t.Cleanup(restore)
	resetFlags()
	t.Cleanup(resetFlags)
	stdinIsTerminal = func() bool { return false }

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	cleanup()
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// fakeWallet starts a fake wallet and points every provider kind at it.
// It returns the wallet and a fresh home directory.
func fakeWallet(t *testing.T, opts ...wallettest.Option) (*wallettest.Wallet, string) {
	t.Helper()

	w := wallettest.New(t, opts...)
	t.Setenv(config.EnvInjectedRPC, w.URL())
	t.Setenv(config.EnvRelayURL, w.URL())
	t.Setenv(config.EnvSessionURL, w.URL())
	t.Setenv(config.EnvHome, "")
	t.Setenv(config.EnvCacheBackend, "")
	return w, t.TempDir()
}
