package orchestrator

import (
	"context"
	"fmt"
	"time"

	"runway.dev/runway/internal/bundler"
	"runway.dev/runway/internal/container"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/graph"
	"runway.dev/runway/internal/manifest"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/state"
	"runway.dev/runway/internal/workspace"
)

// BundleRequest builds installers without releasing
type BundleRequest struct {
	// Packages limits bundling to the named members. Empty means every
	// member with bundle metadata.
	Packages   []string
	Formats    []platform.Format
	NativeOnly bool
	// Build compiles release binaries first instead of expecting them in
	// target/release
	Build  bool
	DryRun bool
}

// Bundle builds installers for the workspace's current version in publish
// order. It touches neither git nor the persisted release state; this is
// what runs inside the build container.
func (o *Orchestrator) Bundle(ctx context.Context, req BundleRequest) (*Report, error) {
	start := time.Now()
	ws, err := workspace.Analyze(o.deps.Root)
	if err != nil {
		return nil, err
	}
	if ws.Version == "" {
		return nil, runwayerrors.Errorf(runwayerrors.KindWorkspace, "workspace has no version to bundle")
	}
	g, err := graph.New(ws)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, name := range req.Packages {
		pkg, ok := ws.Package(name)
		if !ok {
			return nil, runwayerrors.Errorf(runwayerrors.KindCLI, "package %q is not a workspace member", name)
		}
		if pkg.Bundle == nil && len(req.Formats) == 0 {
			return nil, runwayerrors.Errorf(runwayerrors.KindCLI,
				"%s has no [package.metadata.runway.bundle]; pass --formats to bundle it anyway", name)
		}
		wanted[name] = true
	}

	r := &run{
		o:     o,
		req:   Request{Version: ws.Version, Formats: req.Formats, NativeOnly: req.NativeOnly, Build: req.Build, DryRun: req.DryRun},
		ws:    ws,
		graph: g,
		st:    state.New(ws.Version),
		report: &Report{
			Version:   ws.Version,
			Plan:      g.Plan(),
			Artifacts: map[string][]string{},
			DryRun:    req.DryRun,
		},
	}
	for tier, names := range r.report.Plan {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pkg, _ := ws.Package(name)
			if (len(wanted) > 0 && !wanted[name]) || (len(wanted) == 0 && pkg.Bundle == nil) {
				continue
			}
			paths, err := r.bundle(ctx, tier, name)
			if err != nil {
				return nil, err
			}
			if len(paths) > 0 {
				r.report.Artifacts[name] = paths
			}
		}
	}
	r.report.Duration = time.Since(start)
	return r.report, nil
}

// formatsFor returns the formats to build for pkg: the request override or
// the package's bundle.formats
func (r *run) formatsFor(pkg *manifest.Package) ([]platform.Format, error) {
	if len(r.req.Formats) > 0 {
		return r.req.Formats, nil
	}
	if pkg.Bundle == nil {
		return nil, nil
	}
	var formats []platform.Format
	for _, s := range pkg.Bundle.Formats {
		f, err := platform.ParseFormat(s)
		if err != nil {
			return nil, fmt.Errorf("%s: bundle.formats: %w", pkg.Name, err)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

func (r *run) skip(pkg string, f platform.Format, reason string) {
	r.report.Skipped = append(r.report.Skipped, fmt.Sprintf("%s: %s (%s)", pkg, f, reason))
	r.o.deps.Splog.Warn("Skipping %s for %s: %s", f, pkg, reason)
}

// bundle builds every format of one package. Native formats run
// concurrently; the rest go through the build container one job at a time.
func (r *run) bundle(ctx context.Context, tier int, name string) ([]string, error) {
	d := r.o.deps
	pkg, _ := r.ws.Package(name)
	formats, err := r.formatsFor(pkg)
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		d.Splog.Debug("%s declares bundle metadata but no formats", name)
		return nil, nil
	}

	native, delegated := platform.Classify(formats, d.Host)
	var containerFormats []platform.Format
	for _, f := range delegated {
		switch {
		case !platform.ContainerCapable(f):
			r.skip(name, f, "needs a "+f.Family()+" host")
		case r.req.NativeOnly || d.Container == nil:
			r.skip(name, f, "not native to "+d.Host.String())
		default:
			containerFormats = append(containerFormats, f)
		}
	}

	arch, err := platform.ArchFor(d.Host.Arch)
	if err != nil {
		return nil, err
	}
	spec := bundler.SpecFor(pkg, r.ws, r.req.Version, d.OutDir, d.Host.Arch)

	build := r.req.Build && len(pkg.Binaries) > 0
	if r.req.DryRun {
		d.Splog.Info("Would bundle %s (tier %d): native %v, container %v for %s",
			name, tier, platform.Strings(native), platform.Strings(containerFormats), arch.Rust)
		if build {
			d.Splog.Info("Would build %s with cargo build --release first", name)
		}
		return nil, nil
	}

	var artifacts []string
	if build && len(native) > 0 {
		if d.Builder == nil {
			return nil, runwayerrors.Errorf(runwayerrors.KindBundler, "no binary builder configured for %s", name)
		}
		if err := d.Builder.Build(ctx, name, native); err != nil {
			return nil, err
		}
	}
	if len(native) > 0 {
		bundlers := make([]bundler.Bundler, 0, len(native))
		for _, f := range native {
			b, err := d.Bundlers(f)
			if err != nil {
				return nil, err
			}
			bundlers = append(bundlers, b)
		}
		d.Splog.Info("Bundling %s natively: %v", name, platform.Strings(native))
		results, err := bundler.Run(ctx, bundlers, spec)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, bundler.Artifacts(results)...)
	}

	if len(containerFormats) > 0 {
		paths, err := d.Container.Run(ctx, container.Request{Package: name, Formats: containerFormats, Build: build})
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, paths...)
	}

	if err := container.VerifyArtifacts(artifacts); err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		d.Splog.Success("Built %s", a)
	}
	return artifacts, nil
}
