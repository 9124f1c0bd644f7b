package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

type dmgBundler struct {
	opts Options
}

func (b *dmgBundler) Format() platform.Format {
	return platform.DMG
}

// Bundle stages a fresh .app next to an /Applications link and images it.
// The app is built into a private staging directory so a concurrent app
// bundler never sees a half-written bundle.
func (b *dmgBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	hdiutil, err := procexec.Require(b.opts.Runner, "hdiutil", "hdiutil ships with macOS; dmg images can only be built on a macOS host")
	if err != nil {
		return nil, err
	}

	outDir := spec.bundleDir(platform.DMG)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fsErr("create dmg directory", outDir, err)
	}
	staging, err := os.MkdirTemp(outDir, ".staging-")
	if err != nil {
		return nil, fsErr("create dmg staging directory", outDir, err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	app := &appBundler{opts: b.opts}
	if _, err := app.build(ctx, spec, staging); err != nil {
		return nil, err
	}
	if err := os.Symlink("/Applications", filepath.Join(staging, "Applications")); err != nil {
		return nil, fsErr("link Applications", staging, err)
	}

	output := filepath.Join(outDir, fmt.Sprintf("%s_%s.dmg", spec.ProductName, spec.Version))
	b.opts.Splog.Info("Creating %s", filepath.Base(output))
	if _, err := b.opts.Runner.Run(ctx, procexec.Command{
		Name: hdiutil,
		Args: []string{"create", "-volname", spec.ProductName, "-srcfolder", staging, "-ov", "-format", "UDZO", output},
	}); err != nil {
		return nil, toolErr("hdiutil", err)
	}
	if err := expectArtifact(output); err != nil {
		return nil, err
	}
	return absAll([]string{output}), nil
}
