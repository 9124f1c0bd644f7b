// Package manifest reads Cargo.toml package manifests.
//
// Only the parts runway needs are decoded: package name and version, the three
// dependency tables (plus target-specific ones), bin targets, workspace
// membership, and the [package.metadata.runway.bundle] table.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	runwayerrors "runway.dev/runway/internal/errors"
)

// FileName is the manifest file name
const FileName = "Cargo.toml"

// DependencyKind is the table a dependency was declared in
type DependencyKind int

const (
	KindNormal DependencyKind = iota
	KindBuild
	KindDev
)

func (k DependencyKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// Dependency is one declared dependency.
// Path is absolute and empty unless the declaration carried a local path.
type Dependency struct {
	Name     string
	Alias    string
	Version  string
	Path     string
	Kind     DependencyKind
	Optional bool
}

// IsLocal reports whether the dependency carries a local path marker
func (d Dependency) IsLocal() bool {
	return d.Path != ""
}

// BundleMetadata is the [package.metadata.runway.bundle] table
type BundleMetadata struct {
	ProductName string   `toml:"product-name"`
	Identifier  string   `toml:"identifier"`
	Description string   `toml:"description"`
	Categories  []string `toml:"categories"`
	Icons       []string `toml:"icons"`
	Formats     []string `toml:"formats"`
	MainBinary  string   `toml:"main-binary"`
	Publisher   string   `toml:"publisher"`
	Copyright   string   `toml:"copyright"`
}

// Package is a parsed member manifest
type Package struct {
	Name         string
	Version      string
	Description  string
	License      string
	ManifestPath string
	Dir          string
	Dependencies []Dependency
	Binaries     []string
	Bundle       *BundleMetadata
	Publish      bool
}

// Inherited holds the [workspace.package] and [workspace.dependencies] values
// that members may pull in with `workspace = true`.
type Inherited struct {
	Version      string
	Description  string
	License      string
	Dependencies map[string]Dependency
}

// Root is a parsed workspace root manifest
type Root struct {
	Path      string
	Dir       string
	Members   []string
	Exclude   []string
	Inherited *Inherited
	// Package is set when the root manifest also declares a [package]
	Package *Package
}

// IsWorkspace reports whether the root declares a [workspace] table
func (r *Root) IsWorkspace() bool {
	return r.Inherited != nil
}

type cargoFile struct {
	Package           *cargoPackage          `toml:"package"`
	Workspace         *cargoWorkspace        `toml:"workspace"`
	Dependencies      map[string]any         `toml:"dependencies"`
	DevDependencies   map[string]any         `toml:"dev-dependencies"`
	BuildDependencies map[string]any         `toml:"build-dependencies"`
	Target            map[string]cargoTarget `toml:"target"`
	Bin               []cargoBin             `toml:"bin"`
}

type cargoPackage struct {
	Name        string `toml:"name"`
	Version     any    `toml:"version"`
	Description any    `toml:"description"`
	License     any    `toml:"license"`
	Publish     any    `toml:"publish"`
	Metadata    struct {
		Runway struct {
			Bundle *BundleMetadata `toml:"bundle"`
		} `toml:"runway"`
	} `toml:"metadata"`
}

type cargoWorkspace struct {
	Members      []string       `toml:"members"`
	Exclude      []string       `toml:"exclude"`
	Package      map[string]any `toml:"package"`
	Dependencies map[string]any `toml:"dependencies"`
}

type cargoTarget struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

type depTable struct {
	deps map[string]any
	kind DependencyKind
}

type cargoBin struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

func decode(path string) (*cargoFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "read manifest", path, err)
	}
	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "parse manifest", path, err)
	}
	return &cargo, nil
}

// ReadRoot reads a workspace root manifest
func ReadRoot(path string) (*Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "resolve path", path, err)
	}
	cargo, err := decode(abs)
	if err != nil {
		return nil, err
	}

	root := &Root{Path: abs, Dir: filepath.Dir(abs)}
	if cargo.Workspace != nil {
		root.Members = cargo.Workspace.Members
		root.Exclude = cargo.Workspace.Exclude
		inh, err := inheritedFrom(cargo.Workspace, root.Dir)
		if err != nil {
			return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "parse [workspace]", abs, err)
		}
		root.Inherited = inh
	}
	if cargo.Package != nil {
		pkg, err := build(cargo, abs, root.Inherited)
		if err != nil {
			return nil, err
		}
		root.Package = pkg
	}
	return root, nil
}

// Read reads a member manifest. inh may be nil for standalone packages.
func Read(path string, inh *Inherited) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "resolve path", path, err)
	}
	cargo, err := decode(abs)
	if err != nil {
		return nil, err
	}
	if cargo.Package == nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "parse manifest", abs, fmt.Errorf("missing [package] table"))
	}
	return build(cargo, abs, inh)
}

func inheritedFrom(ws *cargoWorkspace, dir string) (*Inherited, error) {
	inh := &Inherited{Dependencies: map[string]Dependency{}}
	if v, ok := ws.Package["version"].(string); ok {
		inh.Version = v
	}
	if v, ok := ws.Package["description"].(string); ok {
		inh.Description = v
	}
	if v, ok := ws.Package["license"].(string); ok {
		inh.License = v
	}
	for name, raw := range ws.Dependencies {
		dep, err := parseDependency(name, raw, KindNormal, dir, nil)
		if err != nil {
			return nil, err
		}
		inh.Dependencies[name] = dep
	}
	return inh, nil
}

func build(cargo *cargoFile, path string, inh *Inherited) (*Package, error) {
	dir := filepath.Dir(path)
	fail := func(err error) error {
		return runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "parse manifest", path, err)
	}

	if cargo.Package.Name == "" {
		return nil, fail(fmt.Errorf("package name is empty"))
	}

	version, err := inheritString(cargo.Package.Version, "version", inh, func(i *Inherited) string { return i.Version })
	if err != nil {
		return nil, fail(err)
	}
	description, err := inheritString(cargo.Package.Description, "description", inh, func(i *Inherited) string { return i.Description })
	if err != nil {
		return nil, fail(err)
	}
	license, err := inheritString(cargo.Package.License, "license", inh, func(i *Inherited) string { return i.License })
	if err != nil {
		return nil, fail(err)
	}

	pkg := &Package{
		Name:         cargo.Package.Name,
		Version:      version,
		Description:  description,
		License:      license,
		ManifestPath: path,
		Dir:          dir,
		Bundle:       cargo.Package.Metadata.Runway.Bundle,
		Publish:      publishable(cargo.Package.Publish),
	}

	tables := []depTable{
		{cargo.Dependencies, KindNormal},
		{cargo.BuildDependencies, KindBuild},
		{cargo.DevDependencies, KindDev},
	}
	for _, t := range cargo.Target {
		tables = append(tables,
			depTable{t.Dependencies, KindNormal},
			depTable{t.BuildDependencies, KindBuild},
			depTable{t.DevDependencies, KindDev},
		)
	}
	for _, t := range tables {
		for name, raw := range t.deps {
			dep, err := parseDependency(name, raw, t.kind, dir, inh)
			if err != nil {
				return nil, fail(err)
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}
	}
	sort.Slice(pkg.Dependencies, func(i, j int) bool {
		a, b := pkg.Dependencies[i], pkg.Dependencies[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Kind < b.Kind
	})

	pkg.Binaries = binaries(cargo, pkg.Name, dir)
	return pkg, nil
}

// inheritString resolves a field that is either a plain string or { workspace = true }
func inheritString(raw any, field string, inh *Inherited, get func(*Inherited) string) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any:
		if ws, _ := v["workspace"].(bool); ws {
			if inh == nil {
				return "", fmt.Errorf("%s.workspace = true outside a workspace", field)
			}
			value := get(inh)
			if value == "" {
				return "", fmt.Errorf("%s.workspace = true but [workspace.package] has no %s", field, field)
			}
			return value, nil
		}
	}
	return "", fmt.Errorf("unsupported %s value %v", field, raw)
}

func parseDependency(alias string, raw any, kind DependencyKind, dir string, inh *Inherited) (Dependency, error) {
	dep := Dependency{Name: alias, Alias: alias, Kind: kind}
	switch v := raw.(type) {
	case string:
		dep.Version = v
		return dep, nil
	case map[string]any:
		if ws, _ := v["workspace"].(bool); ws {
			if inh == nil {
				return dep, fmt.Errorf("dependency %q uses workspace = true outside a workspace", alias)
			}
			shared, ok := inh.Dependencies[alias]
			if !ok {
				return dep, fmt.Errorf("dependency %q not found in [workspace.dependencies]", alias)
			}
			dep.Name = shared.Name
			dep.Version = shared.Version
			dep.Path = shared.Path
			dep.Optional = shared.Optional
		}
		if name, ok := v["package"].(string); ok && name != "" {
			dep.Name = name
		}
		if version, ok := v["version"].(string); ok {
			dep.Version = version
		}
		if p, ok := v["path"].(string); ok && p != "" {
			dep.Path = filepath.Clean(filepath.Join(dir, p))
		}
		if optional, ok := v["optional"].(bool); ok {
			dep.Optional = optional
		}
		return dep, nil
	default:
		return dep, fmt.Errorf("dependency %q has unsupported declaration %v", alias, raw)
	}
}

func binaries(cargo *cargoFile, name, dir string) []string {
	var bins []string
	for _, b := range cargo.Bin {
		if b.Name != "" {
			bins = append(bins, b.Name)
		}
	}
	if len(bins) == 0 {
		if _, err := os.Stat(filepath.Join(dir, "src", "main.rs")); err == nil {
			bins = append(bins, name)
		}
	}
	sort.Strings(bins)
	return bins
}

// publish = false or publish = [] opts a package out of registry publishing
func publishable(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case []any:
		return len(v) > 0
	default:
		return true
	}
}
