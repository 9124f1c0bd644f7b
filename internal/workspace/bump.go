package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"sort"

	"golang.org/x/mod/semver"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/manifest"
)

// VersionUpdate summarizes one rewrite of the workspace manifests
type VersionUpdate struct {
	Previous string
	Version  string
	// Packages counts members whose own version line changed; members
	// inheriting the workspace version are not counted
	Packages     int
	Dependencies int
	// Files are the manifests that changed
	Files []string
}

// VersionUpdater sets a release version across the workspace: the
// [workspace.package] version, every member version that is not inherited,
// and the version requirement of every internal path dependency.
//
// Update is all or nothing. Restore puts back the manifests of the last
// successful Update.
type VersionUpdater struct {
	ws     *Workspace
	edited []*manifest.Editor
}

// NewVersionUpdater creates an updater for ws
func NewVersionUpdater(ws *Workspace) *VersionUpdater {
	return &VersionUpdater{ws: ws}
}

// Update rewrites the manifests to version. Moving to a lower version than
// the workspace declares is refused.
func (u *VersionUpdater) Update(version string) (*VersionUpdate, error) {
	if !semver.IsValid("v" + version) {
		return nil, runwayerrors.Errorf(runwayerrors.KindWorkspace, "invalid version %q", version)
	}
	prev := u.ws.Version
	if prev != "" && semver.IsValid("v"+prev) && semver.Compare("v"+version, "v"+prev) < 0 {
		return nil, runwayerrors.Errorf(runwayerrors.KindWorkspace,
			"version %s is lower than the workspace version %s", version, prev)
	}

	internal := func(name string) bool {
		_, ok := u.ws.Packages[name]
		return ok
	}
	res := &VersionUpdate{Previous: prev, Version: version}

	var editors []*manifest.Editor
	for _, path := range u.manifests() {
		ed, err := manifest.OpenEditor(path)
		if err != nil {
			return nil, err
		}
		if path == u.rootManifest() {
			ed.SetWorkspaceVersion(version)
		}
		if ed.SetPackageVersion(version) {
			res.Packages++
		}
		n, err := ed.SetDependencyVersions(internal, version)
		if err != nil {
			return nil, err
		}
		res.Dependencies += n
		if ed.Changed() {
			editors = append(editors, ed)
		}
	}

	var saved []*manifest.Editor
	for _, ed := range editors {
		if err := ed.Save(); err != nil {
			return nil, errors.Join(err, restoreAll(saved))
		}
		saved = append(saved, ed)
		res.Files = append(res.Files, ed.Path())
	}
	u.edited = saved
	return res, nil
}

// Stage runs Update and returns the changed files
func (u *VersionUpdater) Stage(_ context.Context, version string) ([]string, error) {
	res, err := u.Update(version)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

// Restore writes back the manifests changed by the last Update
func (u *VersionUpdater) Restore() error {
	err := restoreAll(u.edited)
	u.edited = nil
	return err
}

func restoreAll(editors []*manifest.Editor) error {
	var errs []error
	for _, ed := range editors {
		errs = append(errs, ed.Restore())
	}
	return errors.Join(errs...)
}

func (u *VersionUpdater) rootManifest() string {
	return filepath.Join(u.ws.Root, manifest.FileName)
}

// manifests lists the root manifest followed by every member manifest
func (u *VersionUpdater) manifests() []string {
	root := u.rootManifest()
	paths := []string{root}
	var members []string
	for _, pkg := range u.ws.Packages {
		if pkg.ManifestPath != root {
			members = append(members, pkg.ManifestPath)
		}
	}
	sort.Strings(members)
	return append(paths, members...)
}
