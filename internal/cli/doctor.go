package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/workspace"
)

// newDoctorCmd creates the doctor command
func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can release the workspace",
		Long: `Run diagnostic checks on the tools and repository a release needs.

The doctor command checks:
  - Environment: git, cargo, the container runtime and GitHub credentials
  - Bundling: the packaging tool behind every format the workspace builds
  - Repository: working tree state, the release remote and any unfinished release`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Run(cmd, runDoctor)
		},
	}
	return cmd
}

// formatTools names the host tool each natively built format shells out to.
// AppImage is absent because linuxdeploy is downloaded on demand.
var formatTools = map[platform.Format]string{
	platform.Deb:       "dpkg-deb",
	platform.RPM:       "rpmbuild",
	platform.NSIS:      "makensis",
	platform.DMG:       "hdiutil",
	platform.Universal: "lipo",
	platform.App:       "codesign",
}

type diagnosis struct {
	warnings []string
	errors   []string
}

func (d *diagnosis) warn(ctx *runtime.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.warnings = append(d.warnings, msg)
	ctx.Splog.Warn("  ⚠️  %s", msg)
}

func (d *diagnosis) fail(ctx *runtime.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.errors = append(d.errors, msg)
	ctx.Splog.Warn("  ❌ %s", msg)
}

func (d *diagnosis) ok(ctx *runtime.Context, format string, args ...any) {
	ctx.Splog.Info("  ✅ "+format, args...)
}

func runDoctor(ctx *runtime.Context) error {
	splog := ctx.Splog
	d := &diagnosis{}

	splog.Info("Running runway doctor...")
	splog.Newline()

	splog.Info("Environment:")
	formats := checkEnvironment(ctx, d)
	splog.Newline()

	splog.Info("Bundling (%s host):", platform.Detect())
	checkBundling(ctx, d, formats)
	splog.Newline()

	splog.Info("Repository:")
	checkRepository(ctx, d)
	splog.Newline()

	if len(d.errors) > 0 {
		splog.Warn("Doctor found %d error(s) and %d warning(s).", len(d.errors), len(d.warnings))
		return runwayerrors.Errorf(runwayerrors.KindGeneric, "doctor found %d error(s)", len(d.errors))
	}
	if len(d.warnings) > 0 {
		splog.Info("Doctor found %d warning(s). Releases may skip the affected steps.", len(d.warnings))
		return nil
	}
	splog.Success("All checks passed.")
	return nil
}

// checkEnvironment returns the formats the workspace builds
func checkEnvironment(ctx *runtime.Context, d *diagnosis) []platform.Format {
	if path, err := ctx.Runner.LookPath("git"); err != nil {
		d.fail(ctx, "git is not installed or not in PATH")
	} else {
		d.ok(ctx, "git (%s)", path)
	}
	if path, err := ctx.Runner.LookPath("cargo"); err != nil {
		d.fail(ctx, "cargo is not installed or not in PATH; install Rust from https://rustup.rs")
	} else {
		d.ok(ctx, "cargo (%s)", path)
	}

	formats := workspaceFormats(ctx, d)

	_, container := platform.Classify(formats, platform.Detect())
	if _, err := ctx.Runner.LookPath("docker"); err != nil {
		if len(container) > 0 {
			d.warn(ctx, "docker is not installed; %s will be skipped", strings.Join(platform.Strings(container), ", "))
		} else {
			ctx.Splog.Info("  ➖ docker not installed (not needed on this host)")
		}
	} else {
		d.ok(ctx, "docker")
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		d.ok(ctx, "GitHub token from GITHUB_TOKEN")
	} else if os.Getenv("GH_TOKEN") != "" {
		d.ok(ctx, "GitHub token from GH_TOKEN")
	} else if _, err := ctx.Runner.LookPath("gh"); err == nil {
		d.ok(ctx, "GitHub CLI available for authentication")
	} else {
		d.warn(ctx, "no GitHub credentials; set GITHUB_TOKEN or install gh to create GitHub releases")
	}
	return formats
}

func workspaceFormats(ctx *runtime.Context, d *diagnosis) []platform.Format {
	if global, err := ctx.Config.Formats(); err == nil && len(global) > 0 {
		return global
	}
	ws, err := workspace.Analyze(ctx.Root)
	if err != nil {
		d.fail(ctx, "workspace: %v", err)
		return nil
	}
	seen := map[platform.Format]bool{}
	var formats []platform.Format
	for _, name := range ws.Names() {
		pkg := ws.Packages[name]
		if pkg.Bundle == nil {
			continue
		}
		for _, s := range pkg.Bundle.Formats {
			f, err := platform.ParseFormat(s)
			if err != nil {
				d.warn(ctx, "%s: %v", name, err)
				continue
			}
			if !seen[f] {
				seen[f] = true
				formats = append(formats, f)
			}
		}
	}
	return platform.Sorted(formats)
}

func checkBundling(ctx *runtime.Context, d *diagnosis, formats []platform.Format) {
	if len(formats) == 0 {
		ctx.Splog.Info("  ➖ no package declares bundle formats")
		return
	}
	host := platform.Detect()
	for _, f := range formats {
		switch {
		case platform.IsNative(f, host):
			tool, ok := formatTools[f]
			if !ok {
				d.ok(ctx, "%s", f)
				continue
			}
			if _, err := procexec.Require(ctx.Runner, tool, ""); err != nil {
				d.warn(ctx, "%s needs %s, which is not installed", f, tool)
			} else {
				d.ok(ctx, "%s (%s)", f, tool)
			}
		case platform.ContainerCapable(f):
			d.ok(ctx, "%s (build container)", f)
		default:
			d.warn(ctx, "%s needs a darwin host and will be skipped", f)
		}
	}
}

func checkRepository(ctx *runtime.Context, d *diagnosis) {
	manager, err := ctx.ReleaseManager()
	if err != nil {
		d.fail(ctx, "not a git repository: %v", err)
		return
	}
	stats, err := manager.Stats(ctx.Context)
	if err != nil {
		d.fail(ctx, "read repository: %v", err)
		return
	}
	switch {
	case stats.Detached:
		d.warn(ctx, "HEAD is detached; check out a branch before releasing")
	case !stats.Clean:
		d.warn(ctx, "working tree on %s has uncommitted changes", stats.Branch)
	default:
		d.ok(ctx, "on %s with a clean working tree", stats.Branch)
	}

	remote := ctx.Config.Release().Remote
	if repo, err := ctx.Repo(); err == nil {
		if exists, _ := repo.RemoteExists(ctx.Context, remote); exists {
			d.ok(ctx, "remote %s configured", remote)
		} else {
			d.warn(ctx, "remote %s is not configured; releases need --no-push", remote)
		}
	}

	st, err := ctx.Store().Load()
	switch {
	case errors.Is(err, runwayerrors.ErrNoReleaseState):
		d.ok(ctx, "no unfinished release")
	case err != nil:
		d.warn(ctx, "release state unreadable: %v", err)
	case st.NeedsRollback():
		d.fail(ctx, "release v%s did not finish; run 'runway rollback' first", st.Version)
	default:
		d.ok(ctx, "last release v%s finished", st.Version)
	}
}
