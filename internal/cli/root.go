// Package cli implements the runway command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/tui"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "runway",
		Short: "Release a Cargo workspace: tag it, publish it, bundle it and ship it",
		Long: `Runway releases every member of a Cargo workspace at one version.

A release commits and tags the version on a release branch, publishes the
packages in dependency order, builds platform installers natively or in a
build container, and attaches them to a GitHub release. If any step fails
the git changes and the draft GitHub release are rolled back.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			tui.ConfigureColorProfile(tui.IsStdoutTTY(), noColor || os.Getenv("NO_COLOR") != "")
		},
	}

	rootCmd.PersistentFlags().StringP("cwd", "C", "", "Run as if runway was started in this directory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newReleaseCmd(),
		newPlanCmd(),
		newValidateCmd(),
		newRollbackCmd(),
		newStatusCmd(),
		newBundleCmd(),
		newCleanupCmd(),
		newDoctorCmd(),
	)

	return rootCmd
}
