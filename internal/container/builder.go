// Package container builds installers for formats the host cannot produce
// natively by running runway itself inside a locked-down docker container.
package container

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"runway.dev/runway/internal/bundler"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

const (
	// DaemonTimeout bounds the docker info probe
	DaemonTimeout = 5 * time.Second
	// BuildTimeout bounds a builder image build
	BuildTimeout = 30 * time.Minute
	// RecipeLabel carries the Dockerfile hash on the builder image
	RecipeLabel = "runway.recipe"

	defaultDockerfile = ".devcontainer/Dockerfile"
	defaultImageName  = "runway"
)

// Config configures a Builder
type Config struct {
	// Root is the workspace root mounted at /workspace
	Root string
	// ImageName is the image repository prefix; the tag is
	// <ImageName>-release-builder:<hash12>
	ImageName string
	// Dockerfile is relative to Root
	Dockerfile string
	Limits     Limits
	// OutDir is the bundle output directory relative to Root
	OutDir string
	// Tools downloads packaging tools on the host for a container without
	// network. Runner and Splog default to the builder's.
	Tools bundler.Options
}

// Builder runs bundling inside a container. Run is serialized so at most
// one container exists at a time.
type Builder struct {
	runner procexec.Runner
	cfg    Config
	splog  *tui.Splog

	mu    sync.Mutex
	image string
	// uid and gid are overridable in tests
	uid, gid int
	// arch is the GOARCH of the containers docker runs
	arch string
}

// NewBuilder creates a Builder for the workspace at cfg.Root
func NewBuilder(runner procexec.Runner, cfg Config, splog *tui.Splog) *Builder {
	if cfg.ImageName == "" {
		cfg.ImageName = defaultImageName
	}
	if cfg.Dockerfile == "" {
		cfg.Dockerfile = defaultDockerfile
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "target"
	}
	if cfg.Limits.Memory == "" {
		cfg.Limits = DetectLimits()
	}
	return &Builder{
		runner: runner,
		cfg:    cfg,
		splog:  splog,
		arch:   runtime.GOARCH,
		uid:    os.Getuid(),
		gid:    os.Getgid(),
	}
}

// Image returns the image tag resolved by EnsureImage, or "" before that
func (b *Builder) Image() string {
	return b.image
}

// installHint is the platform-specific advice for a missing daemon
func installHint(goos string) string {
	switch goos {
	case "darwin":
		return "Start Docker Desktop from Applications or Spotlight"
	case "windows":
		return "Start Docker Desktop from the Start menu"
	default:
		return "Start the Docker daemon: sudo systemctl start docker"
	}
}

// EnsureDaemon probes 'docker info' with a five second bound
func (b *Builder) EnsureDaemon(ctx context.Context) error {
	if _, err := procexec.Require(b.runner, "docker", "install Docker from https://docs.docker.com/get-docker/"); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, DaemonTimeout)
	defer cancel()

	if _, err := b.runner.Run(probeCtx, procexec.Command{Name: "docker", Args: []string{"info"}}); err != nil {
		reason := "docker daemon is not responding"
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() != nil {
			reason = fmt.Sprintf("docker info timed out after %s", DaemonTimeout)
		}
		return runwayerrors.New(runwayerrors.KindContainer, "check docker daemon",
			fmt.Errorf("%w: %s (%s): %v", runwayerrors.ErrDaemonUnavailable, reason, installHint(runtime.GOOS), err))
	}
	return nil
}

// RecipeHash returns the hex SHA-256 of the builder Dockerfile
func (b *Builder) RecipeHash() (string, error) {
	path := filepath.Join(b.cfg.Root, b.cfg.Dockerfile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", runwayerrors.NewWithPath(runwayerrors.KindContainer, "read builder recipe", path,
				fmt.Errorf("%w: no Dockerfile; container builds need one at %s", runwayerrors.ErrImageBuild, b.cfg.Dockerfile))
		}
		return "", runwayerrors.NewWithPath(runwayerrors.KindIO, "read builder recipe", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ImageTag returns the content-addressed tag for a recipe hash
func (b *Builder) ImageTag(hash string) string {
	short := hash
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s-release-builder:%s", b.cfg.ImageName, short)
}

// EnsureImage builds the builder image unless one for the current
// Dockerfile already exists. Returns the image tag.
func (b *Builder) EnsureImage(ctx context.Context) (string, error) {
	hash, err := b.RecipeHash()
	if err != nil {
		return "", err
	}
	tag := b.ImageTag(hash)

	if _, err := b.runner.Run(ctx, procexec.Command{Name: "docker", Args: []string{"image", "inspect", tag}}); err == nil {
		b.splog.Debug("builder image %s is up to date", tag)
		b.image = tag
		return tag, nil
	}

	b.splog.Info("Building %s (this may take a few minutes)...", tag)
	buildCtx, cancel := context.WithTimeout(ctx, BuildTimeout)
	defer cancel()

	dockerfile := filepath.Join(b.cfg.Root, b.cfg.Dockerfile)
	args := []string{
		"build",
		"--label", RecipeLabel + "=" + hash,
		"-t", tag,
		"-f", dockerfile,
		filepath.Dir(dockerfile),
	}
	if _, err := b.runner.Run(buildCtx, procexec.Command{Name: "docker", Args: args}); err != nil {
		reason := err.Error()
		if buildCtx.Err() != nil {
			reason = fmt.Sprintf("timed out after %s", BuildTimeout)
		}
		return "", runwayerrors.New(runwayerrors.KindContainer, "build builder image",
			fmt.Errorf("%w: %s: %s", runwayerrors.ErrImageBuild, tag, strings.TrimSpace(reason)))
	}
	b.image = tag
	return tag, nil
}
