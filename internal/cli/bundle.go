package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/orchestrator"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/runtime"
)

// newBundleCmd creates the bundle command
func newBundleCmd() *cobra.Command {
	var (
		packages   []string
		formats    string
		nativeOnly bool
		outDir     string
		build      bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Build installers for the current version without releasing",
		Long: `Build installers for the workspace's current version without touching git.

Formats native to this host are built directly; linux formats on other hosts
go through the build container, which runs 'runway bundle --native-only'
itself. Release binaries must already be built with cargo build --release
unless --build is passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Run(cmd, func(ctx *runtime.Context) error {
				fmts, err := platform.ParseFormats(formats)
				if err != nil {
					return runwayerrors.New(runwayerrors.KindCLI, "parse --formats", err)
				}
				if len(fmts) == 0 {
					if fmts, err = ctx.Config.Formats(); err != nil {
						return err
					}
				}

				out := ctx.OutDir()
				if outDir != "" {
					out = outDir
					if !filepath.IsAbs(out) {
						out = filepath.Join(ctx.Root, out)
					}
				}

				deps := orchestrator.Deps{
					Root:     ctx.Root,
					Bundlers: ctx.Bundlers(),
					Builder:  ctx.BinaryBuilder(),
					OutDir:   out,
					Splog:    ctx.Splog,
				}
				if !nativeOnly {
					deps.Container = ctx.ContainerBuilder()
				}
				report, err := orchestrator.New(deps).Bundle(ctx.Context, orchestrator.BundleRequest{
					Packages:   packages,
					Formats:    fmts,
					NativeOnly: nativeOnly,
					Build:      build,
					DryRun:     dryRun,
				})
				if err != nil {
					return err
				}
				ctx.Splog.Page(orchestrator.FormatReport(report))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&packages, "package", "p", nil, "Bundle only this package (repeatable)")
	cmd.Flags().StringVar(&formats, "formats", "", "Comma-separated formats to build, overriding each package's bundle.formats")
	cmd.Flags().BoolVar(&nativeOnly, "native-only", false, "Skip formats that need the build container")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory, relative to the workspace root (default target)")
	cmd.Flags().BoolVar(&build, "build", false, "Run cargo build --release for each package before bundling")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be built")

	_ = cmd.RegisterFlagCompletionFunc("package", helpers.CompletePackages)
	_ = cmd.RegisterFlagCompletionFunc("formats", helpers.CompleteFormats)

	return cmd
}
