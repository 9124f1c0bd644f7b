// Package github publishes release artifacts as GitHub releases.
//
// Releases are created as drafts, artifacts are uploaded, and the draft is
// published last, so a failed run never exposes a half-populated release.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/mod/semver"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/tui"
)

// Config selects the repository and release presentation
type Config struct {
	Owner string
	Repo  string
	// PrereleaseForZero marks 0.x versions as prereleases
	PrereleaseForZero bool
	Notes             string
}

// Release is a created GitHub release
type Release struct {
	ID         int64
	Tag        string
	HTMLURL    string
	Draft      bool
	Prerelease bool
}

// ReleaseManager creates, populates and removes releases in one repository
type ReleaseManager struct {
	client *github.Client
	cfg    Config
	splog  *tui.Splog
}

// NewReleaseManager wraps an authenticated client
func NewReleaseManager(client *github.Client, cfg Config, splog *tui.Splog) *ReleaseManager {
	if splog == nil {
		splog = tui.NewSplog()
	}
	return &ReleaseManager{client: client, cfg: cfg, splog: splog}
}

func tagName(version string) string {
	return "v" + strings.TrimPrefix(version, "v")
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func apiErr(op string, err error) error {
	return runwayerrors.New(runwayerrors.KindGeneric, op, err)
}

// CreateRelease creates a draft release for version pointing at commit
func (m *ReleaseManager) CreateRelease(ctx context.Context, version, commit string) (*Release, error) {
	tag := tagName(version)
	sv := "v" + strings.TrimPrefix(version, "v")
	prerelease := semver.Prerelease(sv) != "" || (m.cfg.PrereleaseForZero && semver.Major(sv) == "v0")

	body := m.cfg.Notes
	if body == "" {
		body = fmt.Sprintf("Release version %s", strings.TrimPrefix(version, "v"))
	}
	req := &github.RepositoryRelease{
		TagName:    github.String(tag),
		Name:       github.String("Release " + strings.TrimPrefix(version, "v")),
		Body:       github.String(body),
		Draft:      github.Bool(true),
		Prerelease: github.Bool(prerelease),
	}
	if commit != "" {
		req.TargetCommitish = github.String(commit)
	}

	rel, _, err := m.client.Repositories.CreateRelease(ctx, m.cfg.Owner, m.cfg.Repo, req)
	if err != nil {
		return nil, apiErr("create GitHub release", err)
	}
	m.splog.Info("Created draft release %s", rel.GetHTMLURL())
	return &Release{
		ID:         rel.GetID(),
		Tag:        rel.GetTagName(),
		HTMLURL:    rel.GetHTMLURL(),
		Draft:      rel.GetDraft(),
		Prerelease: rel.GetPrerelease(),
	}, nil
}

// DeleteRelease removes a release; a release that is already gone is not an error
func (m *ReleaseManager) DeleteRelease(ctx context.Context, id int64) error {
	resp, err := m.client.Repositories.DeleteRelease(ctx, m.cfg.Owner, m.cfg.Repo, id)
	if err != nil && !isNotFound(resp, err) {
		return apiErr("delete GitHub release", err)
	}
	return nil
}

// releaseByTag returns nil when no release carries the tag
func (m *ReleaseManager) releaseByTag(ctx context.Context, version string) (*github.RepositoryRelease, error) {
	rel, resp, err := m.client.Repositories.GetReleaseByTag(ctx, m.cfg.Owner, m.cfg.Repo, tagName(version))
	if err != nil {
		if isNotFound(resp, err) {
			return nil, nil
		}
		return nil, apiErr("get GitHub release", err)
	}
	return rel, nil
}

// ReleaseExists reports whether a release is tagged with version
func (m *ReleaseManager) ReleaseExists(ctx context.Context, version string) (bool, error) {
	rel, err := m.releaseByTag(ctx, version)
	return rel != nil, err
}

// CleanupExistingRelease deletes the release tagged with version, if any
func (m *ReleaseManager) CleanupExistingRelease(ctx context.Context, version string) error {
	rel, err := m.releaseByTag(ctx, version)
	if err != nil || rel == nil {
		return err
	}
	m.splog.Info("Deleting existing GitHub release %s", rel.GetTagName())
	return m.DeleteRelease(ctx, rel.GetID())
}

// PublishDraft makes a draft release public
func (m *ReleaseManager) PublishDraft(ctx context.Context, id int64) error {
	if _, _, err := m.client.Repositories.EditRelease(ctx, m.cfg.Owner, m.cfg.Repo, id, &github.RepositoryRelease{
		Draft: github.Bool(false),
	}); err != nil {
		return apiErr("publish GitHub release", err)
	}
	return nil
}

// VerifyIsDraft reports whether the release still exists as a draft
func (m *ReleaseManager) VerifyIsDraft(ctx context.Context, id int64) (bool, error) {
	rel, resp, err := m.client.Repositories.GetRelease(ctx, m.cfg.Owner, m.cfg.Repo, id)
	if err != nil {
		if isNotFound(resp, err) {
			return false, nil
		}
		return false, apiErr("get GitHub release", err)
	}
	return rel.GetDraft(), nil
}

// AssetNames lists the assets already attached to the release for version
func (m *ReleaseManager) AssetNames(ctx context.Context, version string) (map[string]bool, error) {
	names := map[string]bool{}
	rel, err := m.releaseByTag(ctx, version)
	if err != nil || rel == nil {
		return names, err
	}
	for _, a := range rel.Assets {
		names[a.GetName()] = true
	}
	return names, nil
}

// UploadArtifacts attaches every file in paths to release id and returns the
// download URLs. Assets that already exist are skipped so uploads can be retried.
func (m *ReleaseManager) UploadArtifacts(ctx context.Context, id int64, version string, paths []string) ([]string, error) {
	existing, err := m.AssetNames(ctx, version)
	if err != nil {
		return nil, err
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var urls []string
	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			m.splog.Warn("Skipping non-file artifact: %s", path)
			continue
		}
		name := filepath.Base(path)
		if existing[name] {
			m.splog.Info("  %s already uploaded", name)
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return urls, runwayerrors.NewWithPath(runwayerrors.KindIO, "open artifact", path, err)
		}
		asset, _, err := m.client.Repositories.UploadReleaseAsset(ctx, m.cfg.Owner, m.cfg.Repo, id,
			&github.UploadOptions{Name: name, Label: AssetLabel(name)}, f)
		_ = f.Close()
		if err != nil {
			return urls, apiErr("upload "+name, err)
		}
		m.splog.Info("  Uploaded %s (%d bytes)", name, asset.GetSize())
		urls = append(urls, asset.GetBrowserDownloadURL())
	}
	return urls, nil
}

// AssetLabel describes an artifact by platform and architecture
func AssetLabel(filename string) string {
	lower := strings.ToLower(filename)
	arch := "multi-arch"
	switch {
	case strings.Contains(lower, "aarch64") || strings.Contains(lower, "arm64"):
		arch = "ARM64"
	case strings.Contains(lower, "x86_64") || strings.Contains(lower, "amd64") || strings.Contains(lower, "x64"):
		arch = "x86_64"
	}

	kind := "Binary"
	switch {
	case strings.HasSuffix(lower, ".deb"):
		kind = "Debian/Ubuntu"
	case strings.HasSuffix(lower, ".rpm"):
		kind = "RedHat/Fedora"
	case strings.HasSuffix(lower, ".dmg"):
		kind = "macOS"
	case strings.HasSuffix(lower, ".exe"):
		kind = "Windows"
	case strings.HasSuffix(lower, ".appimage"):
		kind = "Linux AppImage"
	}
	return fmt.Sprintf("%s (%s)", kind, arch)
}
