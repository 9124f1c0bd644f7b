package bundler

import (
	"context"
	"fmt"
	"slices"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// CargoBuilder compiles the release binaries bundlers package
type CargoBuilder struct {
	runner procexec.Runner
	root   string
	splog  *tui.Splog
}

// NewCargoBuilder creates a builder for the workspace at root
func NewCargoBuilder(runner procexec.Runner, root string, splog *tui.Splog) *CargoBuilder {
	return &CargoBuilder{runner: runner, root: root, splog: splog}
}

// Build runs 'cargo build --release -p pkg' for the host target. A universal
// binary also needs both darwin targets, so those are built when formats
// include it.
func (c *CargoBuilder) Build(ctx context.Context, pkg string, formats []platform.Format) error {
	cargo, err := procexec.Require(c.runner, "cargo", "install Rust from https://rustup.rs")
	if err != nil {
		return err
	}

	targets := []string{""}
	if slices.Contains(formats, platform.Universal) {
		targets = append(targets, intelTriple, armTriple)
	}
	for _, target := range targets {
		args := []string{"build", "--release", "-p", pkg}
		label := "host"
		if target != "" {
			args = append(args, "--target", target)
			label = target
		}
		c.splog.Info("Building %s release binaries (%s)", pkg, label)
		if _, err := c.runner.Run(ctx, procexec.Command{Name: cargo, Args: args, Dir: c.root}); err != nil {
			return toolErr("cargo build", fmt.Errorf("%s for %s: %w", pkg, label, err))
		}
	}
	return nil
}
