package container

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"runway.dev/runway/internal/bundler"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// CleanupTimeout bounds 'docker rm -f' when a guard is released
const CleanupTimeout = 5 * time.Second

// NamePrefix starts every bundling container name
const NamePrefix = "runway-bundle-"

// cargoHomeDir holds crates fetched for an offline container, under OutDir
const cargoHomeDir = ".cargo-home"

// Request is one containerized bundling job
type Request struct {
	Package string
	Formats []platform.Format
	// Build compiles the package's release binaries inside the container
	// before bundling
	Build bool
}

// Run bundles req.Formats for one package inside the builder container and
// returns the host paths of the produced artifacts
func (b *Builder) Run(ctx context.Context, req Request) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range req.Formats {
		if !platform.ContainerCapable(f) {
			return nil, runwayerrors.New(runwayerrors.KindContainer, "bundle in container",
				fmt.Errorf("%w: %s needs a %s host", runwayerrors.ErrContainerRun, f, f.Family()))
		}
	}
	if len(req.Formats) == 0 {
		return nil, nil
	}
	if err := b.cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	if b.image == "" {
		if _, err := b.EnsureImage(ctx); err != nil {
			return nil, err
		}
	}

	env, err := b.prepareOffline(ctx, req)
	if err != nil {
		return nil, err
	}

	name := NamePrefix + uuid.NewString()
	guard := NewGuard(b.runner, name, b.splog)
	defer func() {
		r := recover()
		guard.Release()
		if r != nil {
			panic(r)
		}
	}()

	started := time.Now()
	formats := strings.Join(platform.Strings(req.Formats), ",")
	b.splog.Info("Bundling %s (%s) in container %s", req.Package, formats, name)

	out, err := b.runner.Run(ctx, procexec.Command{Name: "docker", Args: b.runArgs(name, req, formats, env)})
	if err != nil {
		msg := err.Error()
		if b.oomKilled(ctx, name) {
			msg += "; the container ran out of memory, raise container.memory in .runway.yaml"
		}
		b.splog.Debug("container output:\n%s", out)
		return nil, runwayerrors.New(runwayerrors.KindContainer, "bundle "+req.Package+" in container",
			fmt.Errorf("%w: %s", runwayerrors.ErrContainerRun, msg))
	}

	var artifacts []string
	for _, f := range req.Formats {
		found, err := b.collect(f, started)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, runwayerrors.New(runwayerrors.KindContainer, "collect "+string(f)+" artifacts",
				fmt.Errorf("%w: container finished without producing a %s package", runwayerrors.ErrArtifactMissing, f))
		}
		artifacts = append(artifacts, found...)
	}
	return artifacts, nil
}

// prepareOffline fetches on the host what the container would otherwise
// download, when the container has no network. Returns extra docker run
// arguments.
func (b *Builder) prepareOffline(ctx context.Context, req Request) ([]string, error) {
	if b.cfg.Limits.Network {
		return nil, nil
	}
	outDir := filepath.Join(b.cfg.Root, b.cfg.OutDir)
	if slices.Contains(req.Formats, platform.AppImage) {
		tools := b.cfg.Tools
		if tools.Runner == nil {
			tools.Runner = b.runner
		}
		if tools.Splog == nil {
			tools.Splog = b.splog
		}
		if _, err := bundler.FetchLinuxdeploy(ctx, tools, outDir, b.arch); err != nil {
			return nil, runwayerrors.New(runwayerrors.KindContainer, "prefetch linuxdeploy for the offline container", err)
		}
	}
	if !req.Build {
		return nil, nil
	}

	cargo, err := procexec.Require(b.runner, "cargo", "install Rust from https://rustup.rs")
	if err != nil {
		return nil, err
	}
	cargoHome := filepath.Join(outDir, cargoHomeDir)
	b.splog.Info("Fetching crates for the offline container...")
	if _, err := b.runner.Run(ctx, procexec.Command{
		Name: cargo,
		Args: []string{"fetch"},
		Dir:  b.cfg.Root,
		Env:  []string{"CARGO_HOME=" + cargoHome},
	}); err != nil {
		return nil, runwayerrors.New(runwayerrors.KindContainer, "cargo fetch for the offline container", err)
	}
	return []string{
		"-e", "CARGO_HOME=" + path.Join("/workspace", filepath.ToSlash(b.cfg.OutDir), cargoHomeDir),
		"-e", "CARGO_NET_OFFLINE=true",
	}, nil
}

func (b *Builder) runArgs(name string, req Request, formats string, env []string) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
	}
	args = append(args, b.cfg.Limits.Args()...)
	args = append(args,
		"-v", b.cfg.Root+":/workspace:rw",
		"-w", "/workspace",
	)
	args = append(args, env...)
	// Files written through the bind mount must stay owned by the caller
	if runtime.GOOS != "windows" {
		args = append(args, "--user", strconv.Itoa(b.uid)+":"+strconv.Itoa(b.gid))
	}
	args = append(args,
		b.image,
		"runway", "bundle",
		"--package", req.Package,
		"--formats", formats,
		"--out-dir", b.cfg.OutDir,
		"--native-only",
	)
	if req.Build {
		args = append(args, "--build")
	}
	return args
}

func (b *Builder) oomKilled(ctx context.Context, name string) bool {
	inspectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
	defer cancel()
	out, err := b.runner.Run(inspectCtx, procexec.Command{
		Name: "docker",
		Args: []string{"inspect", name, "--format", "{{.State.OOMKilled}}"},
	})
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// collect lists artifacts of format f written since the run started
func (b *Builder) collect(f platform.Format, since time.Time) ([]string, error) {
	dir := filepath.Join(b.cfg.Root, b.cfg.OutDir, "bundle", string(f))
	matches, err := doublestar.Glob(os.DirFS(dir), platform.ArtifactPattern(f))
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "list artifacts", dir, err)
	}
	// Container clocks may drift slightly from the host
	cutoff := since.Add(-2 * time.Second)
	var found []string
	for _, m := range matches {
		path := filepath.Join(dir, m)
		info, err := os.Stat(path)
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		found = append(found, path)
	}
	sort.Strings(found)
	return found, nil
}

// Guard owns one container's lifetime. Release removes it with a bounded
// 'docker rm -f'; failures are logged, never returned.
type Guard struct {
	runner  procexec.Runner
	name    string
	splog   *tui.Splog
	timeout time.Duration
	once    sync.Once
}

// NewGuard creates a guard for the named container
func NewGuard(runner procexec.Runner, name string, splog *tui.Splog) *Guard {
	return &Guard{runner: runner, name: name, splog: splog, timeout: CleanupTimeout}
}

// Name returns the guarded container name
func (g *Guard) Name() string {
	return g.name
}

// Release removes the container. Safe to call more than once.
func (g *Guard) Release() {
	g.once.Do(g.release)
}

func (g *Guard) release() {
	proc, err := g.runner.Start(context.Background(), procexec.Command{
		Name: "docker",
		Args: []string{"rm", "-f", g.name},
	})
	if err != nil {
		g.splog.Warn("Failed to clean up container %s: %v", g.name, err)
		return
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			g.splog.Debug("docker rm -f %s: %v", g.name, err)
		}
	case <-timer.C:
		_ = proc.Kill()
		<-done
		g.splog.Warn("Timed out cleaning up container %s after %s; the docker daemon may be down", g.name, g.timeout)
	}
}
