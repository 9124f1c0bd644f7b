package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

const (
	intelTriple = "x86_64-apple-darwin"
	armTriple   = "aarch64-apple-darwin"
)

type universalBundler struct {
	opts Options
}

func (b *universalBundler) Format() platform.Format {
	return platform.Universal
}

// Bundle merges the x86_64 and aarch64 builds of every workspace binary into
// target/universal/release. A binary missing for one architecture is skipped;
// producing nothing at all is an error.
func (b *universalBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	lipo, err := procexec.Require(b.opts.Runner, "lipo", "install the Xcode command line tools (xcode-select --install)")
	if err != nil {
		return nil, err
	}

	targetRoot := filepath.Dir(spec.TargetDir)
	intelDir := filepath.Join(targetRoot, intelTriple, "release")
	armDir := filepath.Join(targetRoot, armTriple, "release")
	outDir := filepath.Join(targetRoot, "universal", "release")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fsErr("create universal directory", outDir, err)
	}

	bins := spec.WorkspaceBinaries
	if len(bins) == 0 {
		bins = spec.Binaries
	}

	var produced []string
	for _, name := range bins {
		intel := filepath.Join(intelDir, name)
		arm := filepath.Join(armDir, name)
		if !exists(intel) {
			b.opts.Splog.Warn("Skipping %s: x86_64 binary not found at %s", name, intel)
			continue
		}
		if !exists(arm) {
			b.opts.Splog.Warn("Skipping %s: aarch64 binary not found at %s", name, arm)
			continue
		}

		out := filepath.Join(outDir, name)
		if _, err := b.opts.Runner.Run(ctx, procexec.Command{
			Name: lipo,
			Args: []string{"-create", intel, arm, "-output", out},
		}); err != nil {
			return nil, toolErr("lipo", fmt.Errorf("%s: %w", name, err))
		}

		info, err := b.opts.Runner.Run(ctx, procexec.Command{Name: lipo, Args: []string{"-info", out}})
		if err != nil {
			return nil, toolErr("lipo", fmt.Errorf("verify %s: %w", name, err))
		}
		if !strings.Contains(string(info), "x86_64") || !strings.Contains(string(info), "arm64") {
			return nil, runwayerrors.Errorf(runwayerrors.KindBundler, "universal binary %s is missing an architecture: %s",
				name, strings.TrimSpace(string(info)))
		}
		b.opts.Splog.Debug("%s: %s", name, strings.TrimSpace(string(info)))
		produced = append(produced, out)
	}

	if len(produced) == 0 {
		return nil, runwayerrors.New(runwayerrors.KindBundler, "create universal binaries",
			fmt.Errorf("%w: no binary was built for both %s and %s", runwayerrors.ErrArtifactMissing, intelTriple, armTriple))
	}
	return absAll(produced), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
