package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
)

// newRollbackCmd creates the rollback command
func newRollbackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the last unfinished release",
		Long: `Undo the last unfinished release using the state saved in .runway/.

The release tag and the release branch are deleted locally and on the
remote, and the main branch is checked out again. History is not rewritten.
A draft GitHub release left by the run is deleted. Published GitHub releases
and packages already uploaded to the registry are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Run(cmd, func(ctx *runtime.Context) error {
				return runRollback(ctx, yes)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func runRollback(ctx *runtime.Context, yes bool) error {
	store := ctx.Store()
	st, err := store.Load()
	if errors.Is(err, runwayerrors.ErrNoReleaseState) {
		ctx.Splog.Info("No release to roll back")
		return nil
	}
	if err != nil {
		return err
	}
	if !st.NeedsRollback() {
		ctx.Splog.Info("Release v%s (%s) left nothing to roll back", st.Version, st.Phase)
		return store.Clear()
	}

	ok, err := tui.ConfirmOrSkip(yes, fmt.Sprintf("Roll back release v%s (%s)?", st.Version, st.Phase))
	if err != nil {
		if errors.Is(err, tui.ErrInteractiveDisabled) {
			return fmt.Errorf("%w; pass --yes to roll back without confirmation", err)
		}
		return err
	}
	if !ok {
		return nil
	}

	var errs []error
	if gh := st.GitHub; gh != nil && gh.ReleaseID != 0 {
		if gh.Draft {
			if err := deleteDraft(ctx, gh.Owner+"/"+gh.Repo, gh.ReleaseID); err != nil {
				errs = append(errs, err)
			} else {
				ctx.Splog.Info("Deleted draft GitHub release %d", gh.ReleaseID)
				st.GitHub = nil
			}
		} else {
			ctx.Splog.Warn("GitHub release %s is already published; delete it by hand if needed", gh.HTMLURL)
			st.GitHub = nil
		}
	}

	if !st.Git.IsZero() {
		manager, err := ctx.ReleaseManager()
		if err != nil {
			return err
		}
		manager.RestoreState(st.Git)
		result, err := manager.Rollback(ctx.Context)
		if err != nil {
			errs = append(errs, err)
		} else {
			ctx.Splog.Page(release.FormatRollback(result))
			if result.Success {
				st.Git = release.State{}
			} else {
				errs = append(errs, runwayerrors.Errorf(runwayerrors.KindGit, "rollback of v%s completed with errors", st.Version))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		if saveErr := store.Save(st); saveErr != nil {
			ctx.Splog.Warn("Could not save release state: %v", saveErr)
		}
		return err
	}
	ctx.Splog.Success("Rolled back release v%s", st.Version)
	return store.Clear()
}

func deleteDraft(ctx *runtime.Context, ownerRepo string, id int64) error {
	gh, _, err := ctx.GitHubReleases(ownerRepo)
	if err != nil {
		return err
	}
	draft, err := gh.VerifyIsDraft(ctx.Context, id)
	if err != nil {
		return err
	}
	if !draft {
		ctx.Splog.Debug("GitHub release %d is gone or no longer a draft", id)
		return nil
	}
	return gh.DeleteRelease(ctx.Context, id)
}
