package runtime_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway.dev/runway/internal/config"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/testhelpers"
)

func TestGetContextAt(t *testing.T) {
	root, err := testhelpers.WriteWorkspace(t.TempDir(), "0.4.0", []testhelpers.CrateSpec{
		{Name: "core"},
		{Name: "app", PathDeps: []string{"core"}, Binary: true},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("git:\n  remote: upstream\n"), 0o600))

	splog := tui.NewSplogWithWriter(&bytes.Buffer{})
	ctx, err := runtime.GetContextAt(context.Background(), filepath.Join(root, "app", "src"), splog)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(ctx.Root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "upstream", ctx.Config.Release().Remote)
	assert.Same(t, splog, ctx.Splog)
	assert.Equal(t, filepath.Join(ctx.Root, "target"), ctx.OutDir())
	assert.Equal(t, filepath.Join(ctx.Root, ".runway", "release-state.json"), ctx.Store().Path())

	_, err = runtime.GetContextAt(context.Background(), t.TempDir(), splog)
	assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
}

func TestRepoFactory(t *testing.T) {
	stub := testhelpers.NewStubRepo()
	opened := ""
	orig := runtime.RepoFactory
	runtime.RepoFactory = func(root string) (git.Repo, error) {
		opened = root
		return stub, nil
	}
	t.Cleanup(func() { runtime.RepoFactory = orig })

	ctx := runtime.NewContext(context.Background(), "/ws", nil, tui.NewSplogWithWriter(&bytes.Buffer{}), procexec.NewMock())
	repo, err := ctx.Repo()
	require.NoError(t, err)
	assert.Same(t, stub, repo)
	assert.Equal(t, "/ws", opened)

	m, err := ctx.ReleaseManager()
	require.NoError(t, err)
	assert.Equal(t, "origin", m.Config().Remote)
}

func TestGitHubRepo(t *testing.T) {
	newCtx := func(cfg *config.Config) *runtime.Context {
		ctx := runtime.NewContext(context.Background(), "/ws", cfg, tui.NewSplogWithWriter(&bytes.Buffer{}), procexec.NewMock())
		stub := testhelpers.NewStubRepo()
		stub.RemoteList = []git.Remote{{Name: "origin", URL: "https://github.com/acme/desk.git"}}
		ctx.SetRepo(stub)
		return ctx
	}

	t.Run("flag wins", func(t *testing.T) {
		owner, repo := "cfg-owner", "cfg-repo"
		cfg := &config.Config{GitHub: config.GitHubConfig{Owner: &owner, Repo: &repo}}
		info, err := newCtx(cfg).GitHubRepo("flag/repo")
		require.NoError(t, err)
		assert.Equal(t, "flag", info.Owner)
		assert.Equal(t, "repo", info.Repo)
	})

	t.Run("config before remote", func(t *testing.T) {
		owner, repo := "cfg-owner", "cfg-repo"
		cfg := &config.Config{GitHub: config.GitHubConfig{Owner: &owner, Repo: &repo}}
		info, err := newCtx(cfg).GitHubRepo("")
		require.NoError(t, err)
		assert.Equal(t, "cfg-owner", info.Owner)
	})

	t.Run("release remote url", func(t *testing.T) {
		info, err := newCtx(nil).GitHubRepo("")
		require.NoError(t, err)
		assert.Equal(t, "github.com", info.Hostname)
		assert.Equal(t, "acme", info.Owner)
		assert.Equal(t, "desk", info.Repo)
	})

	t.Run("missing remote", func(t *testing.T) {
		remote := "upstream"
		cfg := &config.Config{Git: config.GitConfig{Remote: &remote}}
		_, err := newCtx(cfg).GitHubRepo("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `remote "upstream" not found`)
	})

	t.Run("malformed flag", func(t *testing.T) {
		_, err := newCtx(nil).GitHubRepo("acme")
		assert.ErrorIs(t, err, runwayerrors.ErrCLI)
	})
}

func TestBundlers(t *testing.T) {
	ctx := runtime.NewContext(context.Background(), "/ws", nil, tui.NewSplogWithWriter(&bytes.Buffer{}), procexec.NewMock())
	b, err := ctx.Bundlers()(platform.Deb)
	require.NoError(t, err)
	assert.Equal(t, platform.Deb, b.Format())
}
