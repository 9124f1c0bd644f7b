package github_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	gogithub "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/github"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// fakeReleases is an in-memory releases API for one repository
type fakeReleases struct {
	mu       sync.Mutex
	nextID   int64
	releases map[int64]*gogithub.RepositoryRelease
	created  []*gogithub.RepositoryRelease
	uploads  map[string]string
}

func newFakeServer(t *testing.T) (*fakeReleases, *gogithub.Client) {
	t.Helper()
	f := &fakeReleases{nextID: 100, releases: map[int64]*gogithub.RepositoryRelease{}, uploads: map[string]string{}}
	base := "/repos/acme/desk/releases"

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		var rel gogithub.RepositoryRelease
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rel))
		f.mu.Lock()
		f.nextID++
		rel.ID = gogithub.Int64(f.nextID)
		rel.HTMLURL = gogithub.String(fmt.Sprintf("https://github.com/acme/desk/releases/%d", f.nextID))
		f.releases[f.nextID] = &rel
		f.created = append(f.created, &rel)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, rel)
	})
	mux.HandleFunc("GET "+base+"/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, rel := range f.releases {
			if rel.GetTagName() == r.PathValue("tag") {
				writeJSON(w, http.StatusOK, rel)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		rel, ok := f.releases[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, rel)
		case http.MethodDelete:
			delete(f.releases, id)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPatch:
			var edit gogithub.RepositoryRelease
			require.NoError(t, json.NewDecoder(r.Body).Decode(&edit))
			if edit.Draft != nil {
				rel.Draft = edit.Draft
			}
			writeJSON(w, http.StatusOK, rel)
		}
	})
	mux.HandleFunc("POST "+base+"/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		name := r.URL.Query().Get("name")
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		rel, ok := f.releases[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		asset := &gogithub.ReleaseAsset{
			Name:               gogithub.String(name),
			Label:              gogithub.String(r.URL.Query().Get("label")),
			Size:               gogithub.Int(len(body)),
			BrowserDownloadURL: gogithub.String("https://github.com/acme/desk/releases/download/" + rel.GetTagName() + "/" + name),
		}
		rel.Assets = append(rel.Assets, asset)
		f.uploads[name] = string(body)
		writeJSON(w, http.StatusCreated, asset)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := gogithub.NewClient(nil)
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = baseURL
	client.UploadURL = baseURL
	return f, client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newManager(client *gogithub.Client, cfg github.Config) *github.ReleaseManager {
	if cfg.Owner == "" {
		cfg.Owner, cfg.Repo = "acme", "desk"
	}
	return github.NewReleaseManager(client, cfg, tui.NewSplogWithWriter(&bytes.Buffer{}))
}

func TestReleaseLifecycle(t *testing.T) {
	fake, client := newFakeServer(t)
	m := newManager(client, github.Config{PrereleaseForZero: true})
	ctx := context.Background()

	exists, err := m.ReleaseExists(ctx, "0.3.0")
	require.NoError(t, err)
	assert.False(t, exists)

	rel, err := m.CreateRelease(ctx, "0.3.0", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "v0.3.0", rel.Tag)
	assert.True(t, rel.Draft)
	assert.True(t, rel.Prerelease, "0.x is a prerelease")
	require.Len(t, fake.created, 1)
	assert.Equal(t, "abc123", fake.created[0].GetTargetCommitish())
	assert.Equal(t, "Release 0.3.0", fake.created[0].GetName())

	exists, err = m.ReleaseExists(ctx, "v0.3.0")
	require.NoError(t, err)
	assert.True(t, exists)

	dir := t.TempDir()
	deb := filepath.Join(dir, "desk_0.3.0_amd64.deb")
	rpm := filepath.Join(dir, "desk-0.3.0-1.x86_64.rpm")
	require.NoError(t, os.WriteFile(deb, []byte("deb"), 0600))
	require.NoError(t, os.WriteFile(rpm, []byte("rpm"), 0600))

	urls, err := m.UploadArtifacts(ctx, rel.ID, "0.3.0", []string{rpm, deb, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://github.com/acme/desk/releases/download/v0.3.0/desk-0.3.0-1.x86_64.rpm",
		"https://github.com/acme/desk/releases/download/v0.3.0/desk_0.3.0_amd64.deb",
	}, urls)
	assert.Equal(t, "deb", fake.uploads["desk_0.3.0_amd64.deb"])

	names, err := m.AssetNames(ctx, "0.3.0")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"desk_0.3.0_amd64.deb": true, "desk-0.3.0-1.x86_64.rpm": true}, names)

	urls, err = m.UploadArtifacts(ctx, rel.ID, "0.3.0", []string{deb})
	require.NoError(t, err)
	assert.Empty(t, urls, "existing assets are skipped")

	draft, err := m.VerifyIsDraft(ctx, rel.ID)
	require.NoError(t, err)
	assert.True(t, draft)
	require.NoError(t, m.PublishDraft(ctx, rel.ID))
	draft, err = m.VerifyIsDraft(ctx, rel.ID)
	require.NoError(t, err)
	assert.False(t, draft)

	require.NoError(t, m.CleanupExistingRelease(ctx, "0.3.0"))
	exists, err = m.ReleaseExists(ctx, "0.3.0")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.CleanupExistingRelease(ctx, "0.3.0"), "cleanup without a release is a no-op")
	require.NoError(t, m.DeleteRelease(ctx, rel.ID), "deleting twice is a no-op")
	draft, err = m.VerifyIsDraft(ctx, rel.ID)
	require.NoError(t, err)
	assert.False(t, draft)
}

func TestCreateReleasePrerelease(t *testing.T) {
	_, client := newFakeServer(t)
	m := newManager(client, github.Config{Notes: "Notes"})

	rel, err := m.CreateRelease(context.Background(), "1.0.0", "")
	require.NoError(t, err)
	assert.False(t, rel.Prerelease)

	rel, err = m.CreateRelease(context.Background(), "1.1.0-rc.1", "")
	require.NoError(t, err)
	assert.True(t, rel.Prerelease)

	rel, err = m.CreateRelease(context.Background(), "0.2.0", "")
	require.NoError(t, err)
	assert.False(t, rel.Prerelease, "0.x stays a full release unless configured")
}

func TestParseOwnerRepo(t *testing.T) {
	owner, repo, err := github.ParseOwnerRepo("acme/desk")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "desk", repo)

	for _, bad := range []string{"", "acme", "acme/", "/desk", "a/b/c"} {
		_, _, err := github.ParseOwnerRepo(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, runwayerrors.ErrCLI)
	}
}

func TestParseRemoteURL(t *testing.T) {
	cases := map[string]github.RepoInfo{
		"https://github.com/acme/desk.git":       {Hostname: "github.com", Owner: "acme", Repo: "desk"},
		"git@github.com:acme/desk.git":           {Hostname: "github.com", Owner: "acme", Repo: "desk"},
		"ssh://git@github.example.com/acme/desk": {Hostname: "github.example.com", Owner: "acme", Repo: "desk"},
		"https://github.example.com/acme/desk\n": {Hostname: "github.example.com", Owner: "acme", Repo: "desk"},
	}
	for in, want := range cases {
		info, err := github.ParseRemoteURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, *info, in)
	}

	_, err := github.ParseRemoteURL("git@github.com")
	assert.Error(t, err)
	_, err = github.ParseRemoteURL("https://github.com/acme")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "env-token")
		mock := procexec.NewMock()
		token, err := github.Token(context.Background(), mock)
		require.NoError(t, err)
		assert.Equal(t, "env-token", token)
		assert.Empty(t, mock.Calls())
	})

	t.Run("falls back to gh", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("GH_TOKEN", "")
		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return []byte("gho_abc\n"), nil
		}
		token, err := github.Token(context.Background(), mock)
		require.NoError(t, err)
		assert.Equal(t, "gho_abc", token)
		assert.Equal(t, []string{"/usr/bin/gh auth token"}, mock.CommandLines())
	})

	t.Run("no gh", func(t *testing.T) {
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("GH_TOKEN", "")
		mock := procexec.NewMock()
		mock.Missing["gh"] = true
		_, err := github.Token(context.Background(), mock)
		assert.ErrorIs(t, err, runwayerrors.ErrToolNotFound)
	})
}

func TestAssetLabel(t *testing.T) {
	assert.Equal(t, "Debian/Ubuntu (x86_64)", github.AssetLabel("desk_1.0.0_amd64.deb"))
	assert.Equal(t, "Linux AppImage (ARM64)", github.AssetLabel("Desk-1.0.0-aarch64.AppImage"))
	assert.Equal(t, "macOS (multi-arch)", github.AssetLabel("Desk_1.0.0.dmg"))
	assert.Equal(t, "Windows (x86_64)", github.AssetLabel("Desk_1.0.0_x64-setup.exe"))
}
