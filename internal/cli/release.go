package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/orchestrator"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
)

type releaseOptions struct {
	noPush        bool
	formats       string
	publish       bool
	dryRun        bool
	githubRelease string
	noGitHub      bool
	yes           bool
	skipBundle    bool
	nativeOnly    bool
}

// newReleaseCmd creates the release command
func newReleaseCmd() *cobra.Command {
	var opts releaseOptions

	cmd := &cobra.Command{
		Use:   "release <version>",
		Short: "Release every workspace member at version",
		Long: `Release every workspace member at version.

A dirty working tree is saved as a WIP commit, a feature branch is merged
into main, and the release branch v<version> is created from main, tagged and
pushed with its tags. Packages are then published with cargo in dependency
order and bundled into the formats declared under
[package.metadata.runway.bundle]. With a GitHub repository configured, or
--github-release owner/repo, the artifacts are attached to a draft release
that is published once every upload succeeded.

Any failure after the git release deletes the release tag and branch, locally
and on the remote, along with the draft GitHub release. History on main is
never rewritten. A merge conflict with the remote is kept for manual
resolution instead.`,
		Example: `  runway release 1.4.0
  runway release 1.4.0 --publish --formats deb,rpm
  runway release 2.0.0-rc.1 --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return helpers.Run(cmd, func(ctx *runtime.Context) error {
				return runRelease(ctx, args[0], opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.noPush, "no-push", false, "Create the release locally without pushing")
	cmd.Flags().StringVar(&opts.formats, "formats", "", "Comma-separated formats to build, overriding each package's bundle.formats")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish packages to the crate registry")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show what would happen without changing anything")
	cmd.Flags().StringVar(&opts.githubRelease, "github-release", "", "Create a GitHub release in owner/repo")
	cmd.Flags().BoolVar(&opts.noGitHub, "no-github-release", false, "Skip the GitHub release even when one is configured")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&opts.skipBundle, "skip-bundle", false, "Do not build installers")
	cmd.Flags().BoolVar(&opts.nativeOnly, "native-only", false, "Skip formats that need the build container")
	_ = cmd.RegisterFlagCompletionFunc("formats", helpers.CompleteFormats)
	cmd.MarkFlagsMutuallyExclusive("github-release", "no-github-release")

	return cmd
}

func runRelease(ctx *runtime.Context, rawVersion string, opts releaseOptions) error {
	version, err := release.NormalizeVersion(rawVersion)
	if err != nil {
		return err
	}

	formats, err := platform.ParseFormats(opts.formats)
	if err != nil {
		return runwayerrors.New(runwayerrors.KindCLI, "parse --formats", err)
	}
	if len(formats) == 0 {
		if formats, err = ctx.Config.Formats(); err != nil {
			return err
		}
	}

	if !opts.dryRun {
		ok, err := tui.ConfirmOrSkip(opts.yes, fmt.Sprintf("Release v%s from %s?", version, ctx.Root))
		if errors.Is(err, tui.ErrInteractiveDisabled) {
			return fmt.Errorf("%w; pass --yes to release without confirmation", err)
		}
		if err != nil {
			return err
		}
		if !ok {
			ctx.Splog.Info("Release canceled")
			return nil
		}
	}

	manager, err := ctx.ReleaseManager()
	if err != nil {
		return err
	}
	deps := orchestrator.Deps{
		Root:      ctx.Root,
		Release:   manager,
		Store:     ctx.Store(),
		Bundlers:  ctx.Bundlers(),
		Builder:   ctx.BinaryBuilder(),
		Container: ctx.ContainerBuilder(),
		OutDir:    ctx.OutDir(),
		Splog:     ctx.Splog,
	}
	if opts.publish {
		deps.Publisher = ctx.Publisher(opts.dryRun)
	}

	_, _, configured := ctx.Config.GitHubRepo()
	wantGitHub := !opts.noGitHub && (opts.githubRelease != "" || configured)
	if wantGitHub {
		gh, info, err := ctx.GitHubReleases(opts.githubRelease)
		switch {
		case err == nil:
			deps.GitHub = gh
			deps.GitHubOwner, deps.GitHubRepo = info.Owner, info.Repo
		case opts.dryRun:
			ctx.Splog.Warn("GitHub release unavailable: %v", err)
		default:
			return err
		}
	}

	req := orchestrator.Request{
		Version:       version,
		Push:          !opts.noPush,
		Formats:       formats,
		Publish:       opts.publish,
		SkipBundle:    opts.skipBundle,
		NativeOnly:    opts.nativeOnly,
		Build:         true,
		GitHubRelease: wantGitHub,
		DryRun:        opts.dryRun,
	}

	report, err := runWithProgress(ctx, fmt.Sprintf("Releasing v%s", version), deps, req)
	if err != nil {
		return err
	}
	ctx.Splog.Page(orchestrator.FormatReport(report))
	if report.DryRun {
		ctx.Splog.Tip("Run without --dry-run to release v%s", version)
	} else {
		ctx.Splog.Success("Released v%s", version)
	}
	return nil
}
