package bundler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

const linuxdeployBaseURL = "https://github.com/linuxdeploy/linuxdeploy/releases/download/continuous"

type appImageBundler struct {
	opts Options
}

func (b *appImageBundler) Format() platform.Format {
	return platform.AppImage
}

func (b *appImageBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	arch, err := platform.ArchFor(spec.Arch)
	if err != nil {
		return nil, err
	}
	outDir := spec.bundleDir(platform.AppImage)
	toolsDir := filepath.Join(outDir, ".tools")
	if err := os.MkdirAll(toolsDir, 0755); err != nil {
		return nil, fsErr("create tools directory", toolsDir, err)
	}

	linuxdeploy, err := b.ensureLinuxdeploy(ctx, toolsDir, arch.AppImage)
	if err != nil {
		return nil, err
	}

	appDir := filepath.Join(outDir, spec.ProductName+".AppDir")
	if err := os.RemoveAll(appDir); err != nil {
		return nil, fsErr("remove old AppDir", appDir, err)
	}
	binDir := filepath.Join(appDir, "usr", "bin")
	for _, dir := range []string{binDir, filepath.Join(appDir, "usr", "lib")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fsErr("create AppDir", dir, err)
		}
	}
	if err := copyBinaries(spec, spec.Binaries, binDir); err != nil {
		return nil, err
	}

	desktopPath := filepath.Join(appDir, spec.ProductName+".desktop")
	if err := os.WriteFile(desktopPath, []byte(desktopEntry(spec, spec.ProductName)), 0644); err != nil {
		return nil, fsErr("write desktop file", desktopPath, err)
	}

	if icon := spec.firstIcon(".png"); icon != "" {
		iconName := spec.ProductName + ".png"
		if err := copyFile(icon, filepath.Join(appDir, iconName), 0644); err != nil {
			return nil, fsErr("copy icon", icon, err)
		}
		if err := os.Symlink(iconName, filepath.Join(appDir, ".DirIcon")); err != nil {
			return nil, fsErr("link .DirIcon", appDir, err)
		}
	}

	output := filepath.Join(outDir, fmt.Sprintf("%s-%s-%s.AppImage", spec.ProductName, spec.Version, arch.AppImage))
	b.opts.Splog.Info("Building AppImage for %s", spec.ProductName)
	_, err = b.opts.Runner.Run(ctx, procexec.Command{
		Name: linuxdeploy,
		Args: []string{"--appdir", appDir, "--output", "appimage"},
		Dir:  outDir,
		Env:  []string{"OUTPUT=" + output, "ARCH=" + arch.AppImage},
	})
	if err != nil {
		return nil, toolErr("linuxdeploy", err)
	}
	if err := expectArtifact(output); err != nil {
		return nil, err
	}
	if err := os.Chmod(output, 0755); err != nil {
		return nil, fsErr("mark AppImage executable", output, err)
	}
	return absAll([]string{output}), nil
}

// ensureLinuxdeploy prefers a cached download, then a linuxdeploy on PATH,
// and downloads only when neither exists
func (b *appImageBundler) ensureLinuxdeploy(ctx context.Context, toolsDir, arch string) (string, error) {
	path := filepath.Join(toolsDir, linuxdeployName(arch))
	if _, err := os.Stat(path); err == nil {
		b.opts.Splog.Debug("linuxdeploy already cached at %s", path)
		return path, nil
	}
	if found, err := b.opts.Runner.LookPath("linuxdeploy"); err == nil {
		b.opts.Splog.Debug("Using linuxdeploy from %s", found)
		return found, nil
	}
	return downloadLinuxdeploy(ctx, b.opts, toolsDir, arch)
}

func linuxdeployName(arch string) string {
	return fmt.Sprintf("linuxdeploy-%s.AppImage", arch)
}

// LinuxdeployPath is where the AppImage bundler caches linuxdeploy under outDir
func LinuxdeployPath(outDir, goarch string) (string, error) {
	arch, err := platform.ArchFor(goarch)
	if err != nil {
		return "", err
	}
	return filepath.Join(outDir, "bundle", string(platform.AppImage), ".tools", linuxdeployName(arch.AppImage)), nil
}

// FetchLinuxdeploy downloads linuxdeploy into the AppImage tool cache under
// outDir unless it is already there. A bundler running later against the same
// outDir, for example inside a container without network access, finds it
// without downloading.
func FetchLinuxdeploy(ctx context.Context, opts Options, outDir, goarch string) (string, error) {
	path, err := LinuxdeployPath(outDir, goarch)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.LinuxdeployBaseURL == "" {
		opts.LinuxdeployBaseURL = linuxdeployBaseURL
	}
	arch, _ := platform.ArchFor(goarch)
	toolsDir := filepath.Dir(path)
	if err := os.MkdirAll(toolsDir, 0755); err != nil {
		return "", fsErr("create tools directory", toolsDir, err)
	}
	return downloadLinuxdeploy(ctx, opts, toolsDir, arch.AppImage)
}

func downloadLinuxdeploy(ctx context.Context, opts Options, toolsDir, arch string) (string, error) {
	name := linuxdeployName(arch)
	path := filepath.Join(toolsDir, name)
	url := opts.LinuxdeployBaseURL + "/" + name
	opts.Splog.Info("Downloading linuxdeploy for %s...", arch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", toolErr("download linuxdeploy", err)
	}
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return "", toolErr("download linuxdeploy", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", toolErr("download linuxdeploy", fmt.Errorf("%w: GET %s: %s", runwayerrors.ErrToolNotFound, url, resp.Status))
	}

	// Download to a temp name so an interrupted transfer never poisons the cache
	tmp, err := os.CreateTemp(toolsDir, name+".*.part")
	if err != nil {
		return "", fsErr("create download", toolsDir, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", toolErr("download linuxdeploy", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fsErr("write linuxdeploy", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0755); err != nil {
		return "", fsErr("mark linuxdeploy executable", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fsErr("install linuxdeploy", path, err)
	}
	return path, nil
}
