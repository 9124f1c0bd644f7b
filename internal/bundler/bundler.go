// Package bundler turns built workspace binaries into platform installers.
//
// Each format has a Bundler. Bundlers shell out to the packaging tool of
// their platform through procexec, write under <out>/bundle/<format>/ and
// return absolute artifact paths.
package bundler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/manifest"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/internal/workspace"
)

// Bundler produces one installer format
type Bundler interface {
	Format() platform.Format
	Bundle(ctx context.Context, spec Spec) ([]string, error)
}

// Spec is everything a bundler needs to package one workspace member
type Spec struct {
	Package     string
	Version     string
	ProductName string
	Identifier  string
	Description string
	Publisher   string
	Copyright   string
	License     string
	Categories  []string
	// Icons are absolute paths
	Icons      []string
	Binaries   []string
	MainBinary string
	// Arch is a GOARCH value
	Arch string
	// TargetDir holds the built release binaries (target/release)
	TargetDir string
	// OutDir is the project output directory; artifacts land in OutDir/bundle/<format>
	OutDir string
	// WorkspaceBinaries lists every bin target, used for universal binaries
	WorkspaceBinaries []string
}

// Signing configures optional code signing
type Signing struct {
	// Identity is the macOS codesign identity
	Identity string
	// WindowsCert and WindowsKey enable osslsigncode for NSIS installers
	WindowsCert  string
	WindowsKey   string
	TimestampURL string
}

// Options are shared by every bundler
type Options struct {
	Runner procexec.Runner
	Splog  *tui.Splog
	// HTTPClient downloads packaging tools; nil means http.DefaultClient
	HTTPClient *http.Client
	// LinuxdeployBaseURL overrides the linuxdeploy release location
	LinuxdeployBaseURL string
	Signing            Signing
}

// New returns the bundler for format f
func New(f platform.Format, opts Options) (Bundler, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.LinuxdeployBaseURL == "" {
		opts.LinuxdeployBaseURL = linuxdeployBaseURL
	}
	switch f {
	case platform.AppImage:
		return &appImageBundler{opts: opts}, nil
	case platform.Deb:
		return &debBundler{opts: opts}, nil
	case platform.RPM:
		return &rpmBundler{opts: opts}, nil
	case platform.App:
		return &appBundler{opts: opts}, nil
	case platform.DMG:
		return &dmgBundler{opts: opts}, nil
	case platform.NSIS:
		return &nsisBundler{opts: opts}, nil
	case platform.Universal:
		return &universalBundler{opts: opts}, nil
	}
	return nil, runwayerrors.Errorf(runwayerrors.KindCLI, "no bundler for format %q", f)
}

// SpecFor derives a Spec from a package's bundle metadata. version overrides
// the manifest version when set.
func SpecFor(pkg *manifest.Package, ws *workspace.Workspace, version, outDir, arch string) Spec {
	spec := Spec{
		Package:           pkg.Name,
		Version:           pkg.Version,
		ProductName:       pkg.Name,
		Description:       pkg.Description,
		License:           pkg.License,
		Binaries:          append([]string(nil), pkg.Binaries...),
		Arch:              arch,
		TargetDir:         filepath.Join(ws.TargetDir(), "release"),
		OutDir:            outDir,
		WorkspaceBinaries: ws.Binaries(),
	}
	if version != "" {
		spec.Version = version
	}
	if meta := pkg.Bundle; meta != nil {
		if meta.ProductName != "" {
			spec.ProductName = meta.ProductName
		}
		if meta.Description != "" {
			spec.Description = meta.Description
		}
		spec.Identifier = meta.Identifier
		spec.Publisher = meta.Publisher
		spec.Copyright = meta.Copyright
		spec.Categories = append([]string(nil), meta.Categories...)
		spec.MainBinary = meta.MainBinary
		for _, icon := range meta.Icons {
			if !filepath.IsAbs(icon) {
				icon = filepath.Join(pkg.Dir, icon)
			}
			spec.Icons = append(spec.Icons, icon)
		}
	}
	if spec.MainBinary == "" && len(spec.Binaries) > 0 {
		spec.MainBinary = spec.Binaries[0]
		for _, b := range spec.Binaries {
			if b == pkg.Name {
				spec.MainBinary = b
			}
		}
	}
	if spec.Identifier == "" {
		spec.Identifier = "com." + sanitize(spec.Package)
	}
	return spec
}

// Run bundles every format concurrently. Results are keyed by format; the
// first failure cancels the rest.
func Run(ctx context.Context, bundlers []Bundler, spec Spec) (map[platform.Format][]string, error) {
	results := make(map[platform.Format][]string, len(bundlers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bundlers {
		g.Go(func() error {
			paths, err := b.Bundle(gctx, spec)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Format(), err)
			}
			mu.Lock()
			results[b.Format()] = paths
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Artifacts flattens Run results in display order
func Artifacts(results map[platform.Format][]string) []string {
	formats := make([]platform.Format, 0, len(results))
	for f := range results {
		formats = append(formats, f)
	}
	var paths []string
	for _, f := range platform.Sorted(formats) {
		paths = append(paths, results[f]...)
	}
	return paths
}

func (s Spec) bundleDir(f platform.Format) string {
	return filepath.Join(s.OutDir, "bundle", string(f))
}

// binaryPath resolves a built binary, failing with a build hint when absent
func (s Spec) binaryPath(name string) (string, error) {
	path := filepath.Join(s.TargetDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", runwayerrors.NewWithPath(runwayerrors.KindBundler, "find binary", path,
			fmt.Errorf("%w: %s is not built; run 'cargo build --release'", runwayerrors.ErrArtifactMissing, name))
	}
	return path, nil
}

func (s Spec) firstIcon(ext string) string {
	for _, icon := range s.Icons {
		if strings.EqualFold(filepath.Ext(icon), ext) {
			return icon
		}
	}
	return ""
}

func sanitize(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", "-", "_", "-").Replace(name))
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, mode)
}

// copyBinaries copies names from the target dir into dir at 0755
func copyBinaries(spec Spec, names []string, dir string) error {
	for _, name := range names {
		src, err := spec.binaryPath(name)
		if err != nil {
			return err
		}
		if err := copyFile(src, filepath.Join(dir, name), 0755); err != nil {
			return runwayerrors.NewWithPath(runwayerrors.KindIO, "copy binary", src, err)
		}
	}
	return nil
}

func fsErr(op, path string, err error) error {
	return runwayerrors.NewWithPath(runwayerrors.KindIO, op, path, err)
}

func toolErr(tool string, err error) error {
	return runwayerrors.New(runwayerrors.KindBundler, tool, err)
}

// expectArtifact fails when a tool exited cleanly without writing path
func expectArtifact(path string) error {
	if _, err := os.Stat(path); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindBundler, "collect artifact", path, runwayerrors.ErrArtifactMissing)
	}
	return nil
}

func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
