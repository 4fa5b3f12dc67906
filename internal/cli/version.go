package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the build version, commit and toolchain.

With --check the latest published release is looked up and compared.`,
	Example: `  tether version
  tether version --check -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	versionCheck bool

	// versionClient is replaced in tests.
	versionClient = version.NewClient()
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.GroupID = "config"
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}

type versionView struct {
	version.Build

	Latest string `json:"latest,omitempty"`
	Newer  bool   `json:"updateAvailable,omitempty"`
	URL    string `json:"releaseUrl,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	v := versionView{Build: buildInfo}

	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, 20*time.Second)
		defer cancel()

		check, err := versionClient.CheckLatest(ctx, buildInfo.Version)
		if err != nil {
			cc.Log.Error("version check: %v", err)
			if !cc.Fmt.IsJSON() {
				output.Warn(cmd.ErrOrStderr(), "Could not check for updates: %v", err)
			}
		} else {
			v.Latest, v.Newer, v.URL = check.Latest, check.Newer, check.URL
		}
	}

	fields := output.Fields{
		{Label: "Version", Value: v.Version},
		{Label: "Commit", Value: v.Commit},
		{Label: "Built", Value: v.Date},
		{Label: "Go", Value: v.Go},
		{Label: "Platform", Value: v.OS + "/" + v.Arch},
	}
	if v.Latest != "" {
		fields = append(fields, output.Field{Label: "Latest", Value: v.Latest})
	}
	if err := cc.Fmt.Result(v, fields); err != nil {
		return err
	}
	if v.Newer && !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "A newer release is available: %s", v.URL)
	}
	return nil
}
