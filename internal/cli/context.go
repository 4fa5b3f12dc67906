package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/app"
	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/output"
)

// appOptions are appended to every app the CLI builds. Tests use it to
// swap the keyring.
//
//nolint:gochecknoglobals // Test seam for the app graph
var appOptions []app.Option

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics

	app *app.App
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(c *config.Config, log *config.Logger, fmtr *output.Formatter) *CommandContext {
	return &CommandContext{
		Cfg:     c,
		Log:     log,
		Fmt:     fmtr,
		Metrics: metrics.New(),
	}
}

// GetCmdContext returns the context initialized for cmd.
func GetCmdContext(_ *cobra.Command) *CommandContext {
	return cmdCtx
}

// App builds the application on first use and restores the cached
// session. Later calls return the same app.
func (c *CommandContext) App(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}

	opts := append([]app.Option{
		app.WithLogger(c.Log),
		app.WithMetrics(c.Metrics),
	}, appOptions...)

	a, err := app.New(ctx, c.Cfg, opts...)
	if err != nil {
		return nil, err
	}
	if s := a.Start(ctx); s != nil {
		c.Log.Debug("resumed %s session", s.Kind)
	}
	c.app = a
	return a, nil
}

// Close releases the app's local connection. The cached session survives.
func (c *CommandContext) Close() {
	if c.app != nil {
		_ = c.app.Close()
		c.app = nil
	}
}
