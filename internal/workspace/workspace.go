// Package workspace discovers the members of a Cargo workspace and the
// internal dependency edges between them.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/manifest"
)

// Workspace is the immutable result of analyzing a workspace root
type Workspace struct {
	Root string
	// Version is the shared release version: [workspace.package] version,
	// or the version every member agrees on. Empty when members disagree.
	Version  string
	Packages map[string]*manifest.Package
	Internal map[string]map[string]struct{}
}

// Analyze reads the manifest at root and every member it declares
func Analyze(root string) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "resolve workspace root", root, err)
	}
	rootManifest, err := manifest.ReadRoot(filepath.Join(absRoot, manifest.FileName))
	if err != nil {
		return nil, err
	}
	if !rootManifest.IsWorkspace() && rootManifest.Package == nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "analyze workspace", rootManifest.Path,
			errors.New("manifest has neither [workspace] nor [package]"))
	}

	ws := &Workspace{
		Root:     absRoot,
		Packages: map[string]*manifest.Package{},
		Internal: map[string]map[string]struct{}{},
	}

	add := func(pkg *manifest.Package) error {
		if existing, ok := ws.Packages[pkg.Name]; ok {
			return runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "analyze workspace", pkg.ManifestPath,
				fmt.Errorf("%w %q (also declared in %s)", runwayerrors.ErrDuplicatePackage, pkg.Name, existing.ManifestPath))
		}
		ws.Packages[pkg.Name] = pkg
		return nil
	}

	if rootManifest.Package != nil {
		if err := add(rootManifest.Package); err != nil {
			return nil, err
		}
	}

	memberDirs, err := expandMembers(absRoot, rootManifest.Members, rootManifest.Exclude)
	if err != nil {
		return nil, err
	}
	for _, dir := range memberDirs {
		if dir == absRoot {
			continue
		}
		pkg, err := manifest.Read(filepath.Join(dir, manifest.FileName), rootManifest.Inherited)
		if err != nil {
			return nil, err
		}
		if err := add(pkg); err != nil {
			return nil, err
		}
	}

	for name, pkg := range ws.Packages {
		deps := map[string]struct{}{}
		for _, dep := range pkg.Dependencies {
			if isInternal(ws, pkg, dep) {
				deps[dep.Name] = struct{}{}
			}
		}
		ws.Internal[name] = deps
	}

	ws.Version = sharedVersion(rootManifest, ws.Packages)
	return ws, nil
}

// isInternal applies the path-and-name rule. A registry dependency that happens
// to share a workspace package name is external.
func isInternal(ws *Workspace, pkg *manifest.Package, dep manifest.Dependency) bool {
	if !dep.IsLocal() || dep.Kind == manifest.KindDev || dep.Name == pkg.Name {
		return false
	}
	_, ok := ws.Packages[dep.Name]
	return ok
}

func expandMembers(root string, members, exclude []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := map[string]bool{}
	var dirs []string

	for _, pattern := range members {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		literal := !strings.ContainsAny(pattern, "*?[{")

		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "expand member glob", pattern, err)
		}
		if literal && len(matches) == 0 {
			return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "expand member", filepath.Join(root, pattern), fs.ErrNotExist)
		}
		sort.Strings(matches)

		for _, m := range matches {
			excluded, err := matchesAny(exclude, m)
			if err != nil {
				return nil, err
			}
			if excluded {
				continue
			}
			dir := filepath.Join(root, filepath.FromSlash(m))
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err != nil {
				if literal {
					return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "read member", filepath.Join(dir, manifest.FileName), err)
				}
				continue
			}
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}

func matchesAny(patterns []string, path string) (bool, error) {
	for _, p := range patterns {
		p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		ok, err := doublestar.Match(p, path)
		if err != nil {
			return false, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "expand exclude glob", p, err)
		}
		if ok || strings.HasPrefix(path, p+"/") {
			return true, nil
		}
	}
	return false, nil
}

func sharedVersion(root *manifest.Root, pkgs map[string]*manifest.Package) string {
	if root.Inherited != nil && root.Inherited.Version != "" {
		return root.Inherited.Version
	}
	version := ""
	for _, pkg := range pkgs {
		switch {
		case version == "":
			version = pkg.Version
		case pkg.Version != version:
			return ""
		}
	}
	return version
}

// Names returns every package name in ascending order
func (w *Workspace) Names() []string {
	names := make([]string, 0, len(w.Packages))
	for name := range w.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package returns the named package
func (w *Workspace) Package(name string) (*manifest.Package, bool) {
	pkg, ok := w.Packages[name]
	return pkg, ok
}

// InternalDependencies returns the sorted internal dependencies of a package
func (w *Workspace) InternalDependencies(name string) []string {
	deps := make([]string, 0, len(w.Internal[name]))
	for dep := range w.Internal[name] {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// Binaries returns every bin target across the workspace, sorted and deduplicated
func (w *Workspace) Binaries() []string {
	seen := map[string]bool{}
	var bins []string
	for _, pkg := range w.Packages {
		for _, b := range pkg.Binaries {
			if !seen[b] {
				seen[b] = true
				bins = append(bins, b)
			}
		}
	}
	sort.Strings(bins)
	return bins
}

// TargetDir returns the cargo target directory for the workspace
func (w *Workspace) TargetDir() string {
	if dir := os.Getenv("CARGO_TARGET_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(w.Root, "target")
}

// FindRoot walks up from start to the directory Cargo treats as the
// workspace root: the nearest ancestor whose manifest declares [workspace],
// or else the nearest directory with a Cargo.toml.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", runwayerrors.NewWithPath(runwayerrors.KindIO, "resolve workspace root", start, err)
	}

	nearest := ""
	for {
		path := filepath.Join(dir, "Cargo.toml")
		if _, err := os.Stat(path); err == nil {
			if nearest == "" {
				nearest = dir
			}
			if root, err := manifest.ReadRoot(path); err == nil && root.IsWorkspace() {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if nearest == "" {
		return "", runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "find workspace", start,
			errors.New("no Cargo.toml in this directory or any parent"))
	}
	return nearest, nil
}
