package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
)

// newCleanupCmd creates the cleanup command
func newCleanupCmd() *cobra.Command {
	var (
		yes           bool
		githubRelease string
	)

	cmd := &cobra.Command{
		Use:   "cleanup <version>",
		Short: "Delete the tag, release branch and GitHub release of a version",
		Long: `Delete every trace of a release so the version can be released again:
the local and remote tag, the local and remote release branch, and the
GitHub release tagged with it. A saved release state for the version is
discarded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return helpers.Run(cmd, func(ctx *runtime.Context) error {
				return runCleanup(ctx, args[0], githubRelease, yes)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().StringVar(&githubRelease, "github-release", "", "Also delete the GitHub release in owner/repo")

	return cmd
}

func runCleanup(ctx *runtime.Context, rawVersion, githubRelease string, yes bool) error {
	version, err := release.NormalizeVersion(rawVersion)
	if err != nil {
		return err
	}

	ok, err := tui.ConfirmOrSkip(yes, fmt.Sprintf("Delete the tag, branch and GitHub release of v%s?", version))
	if err != nil {
		if errors.Is(err, tui.ErrInteractiveDisabled) {
			return fmt.Errorf("%w; pass --yes to clean up without confirmation", err)
		}
		return err
	}
	if !ok {
		return nil
	}

	manager, err := ctx.ReleaseManager()
	if err != nil {
		return err
	}
	if err := manager.CleanupExistingTag(ctx.Context, version); err != nil {
		return err
	}
	if err := manager.CleanupExistingBranch(ctx.Context, version); err != nil {
		return err
	}

	_, _, configured := ctx.Config.GitHubRepo()
	if githubRelease != "" || configured {
		gh, _, err := ctx.GitHubReleases(githubRelease)
		if err != nil {
			return err
		}
		if err := gh.CleanupExistingRelease(ctx.Context, version); err != nil {
			return err
		}
	}

	store := ctx.Store()
	if st, err := store.Load(); err == nil && st.Version == version {
		if err := store.Clear(); err != nil {
			return err
		}
		ctx.Splog.Debug("Discarded saved release state")
	}
	ctx.Splog.Success("Cleaned up v%s", version)
	return nil
}
