package cli

import (
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Dump this process's metrics",
	Long: `Print the Prometheus metrics collected by this process in text exposition
format.

Metrics live only as long as the process. A single command shows the session
restore; inside 'tether shell' the 'metrics' action shows everything the
shell has done.`,
	Example: `  tether metrics
  printf 'connect injected\nchainId\nmetrics\n' | tether shell`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	metricsCmd.GroupID = "config"
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	// Starting the app records the session restore attempt.
	if _, err := cc.App(cmd.Context()); err != nil {
		return err
	}
	return cc.Metrics.WriteText(cmd.OutOrStdout())
}
