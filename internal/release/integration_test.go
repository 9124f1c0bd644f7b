package release_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/workspace"
	"runway.dev/runway/testhelpers"
)

// fetchHookRepo runs beforeFetch once, right before the first fetch, to
// simulate a collaborator pushing while a release is in flight.
type fetchHookRepo struct {
	git.Repo
	beforeFetch func() error
}

func (r *fetchHookRepo) Fetch(ctx context.Context, remote string) error {
	if r.beforeFetch != nil {
		hook := r.beforeFetch
		r.beforeFetch = nil
		if err := hook(); err != nil {
			return err
		}
	}
	return r.Repo.Fetch(ctx, remote)
}

type remoteScene struct {
	local *testhelpers.GitRepo
	bare  string
	repo  *git.CLIRepo
	tmp   string
}

func newRemoteScene(t *testing.T) *remoteScene {
	t.Helper()
	tmp := t.TempDir()
	local, err := testhelpers.NewGitRepoWithCommit(filepath.Join(tmp, "local"))
	require.NoError(t, err)
	bare, err := local.CreateBareRemote("origin")
	require.NoError(t, err)
	require.NoError(t, local.PushBranch("origin", "main"))
	repo, err := git.Open(local.Dir)
	require.NoError(t, err)
	return &remoteScene{local: local, bare: bare, repo: repo, tmp: tmp}
}

// collaboratorPush clones the remote, commits content to file on branch and pushes it
func (s *remoteScene) collaboratorPush(branch, file, content string) func() error {
	return func() error {
		other, err := testhelpers.CloneGitRepo(s.bare, filepath.Join(s.tmp, "other"))
		if err != nil {
			return err
		}
		if err := other.CreateAndCheckoutBranch(branch); err != nil {
			return err
		}
		if err := other.WriteFile(file, content); err != nil {
			return err
		}
		if err := other.RunGitCommand("add", file); err != nil {
			return err
		}
		if err := other.RunGitCommand("commit", "-m", "collaborator change"); err != nil {
			return err
		}
		return other.PushBranch("origin", branch)
	}
}

func TestReleaseIntegration_PushToBareRemote(t *testing.T) {
	ctx := context.Background()
	s := newRemoteScene(t)

	result, err := newManager(s.repo).Release(ctx, "1.2.3", release.Options{Push: true})
	require.NoError(t, err)

	branch, err := s.local.CurrentBranchName()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	assert.True(t, testhelpers.BareHasRef(s.bare, "refs/heads/v1.2.3"))
	assert.True(t, testhelpers.BareHasRef(s.bare, "refs/tags/v1.2.3"))

	subjects, err := s.local.CommitSubjects("v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "release: v1.2.3", subjects[0])

	tagged, err := s.local.GetRevision("v1.2.3^{commit}")
	require.NoError(t, err)
	assert.Equal(t, result.Commit, tagged)
	require.NotNil(t, result.Push)
	assert.True(t, result.Push.FirstPush)
}

func TestReleaseIntegration_DirtyFeatureBranch(t *testing.T) {
	ctx := context.Background()
	scene, err := testhelpers.NewGitRepoWithCommit(filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, err)
	require.NoError(t, scene.CreateAndCheckoutBranch("feature/x"))
	require.NoError(t, scene.CreateChange("unsaved work", "feature", true))
	repo, err := git.Open(scene.Dir)
	require.NoError(t, err)

	result, err := newManager(repo).Release(ctx, "2.0.0", release.Options{})
	require.NoError(t, err)

	branch, err := scene.CurrentBranchName()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
	clean, err := scene.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)

	featureSubjects, err := scene.CommitSubjects("feature/x")
	require.NoError(t, err)
	assert.Equal(t, release.WIPCommitMessage, featureSubjects[0], "uncommitted work is preserved in a WIP commit")

	mainSubjects, err := scene.CommitSubjects("main")
	require.NoError(t, err)
	assert.Contains(t, mainSubjects, release.WIPCommitMessage, "feature branch was merged into main")
	assert.True(t, scene.HasRef("refs/tags/v2.0.0"))
	assert.Nil(t, result.Push)
}

func TestReleaseIntegration_RemoteDiverged(t *testing.T) {
	ctx := context.Background()

	t.Run("unrelated remote commits are merged then pushed", func(t *testing.T) {
		s := newRemoteScene(t)
		repo := &fetchHookRepo{Repo: s.repo, beforeFetch: s.collaboratorPush("v2.0.0", "NOTES.md", "release notes\n")}

		result, err := newManager(repo).Release(ctx, "2.0.0", release.Options{Push: true})
		require.NoError(t, err)

		require.NotNil(t, result.Push)
		assert.Contains(t, []git.MergeKind{git.FastForward, git.MergeCommit}, result.Push.Integration)

		branch, err := s.local.CurrentBranchName()
		require.NoError(t, err)
		assert.Equal(t, "main", branch)

		local, err := s.local.GetRevision("v2.0.0")
		require.NoError(t, err)
		remote, err := s.local.RunGitCommandAndGetOutput("ls-remote", "--heads", "origin", "refs/heads/v2.0.0")
		require.NoError(t, err)
		assert.Contains(t, remote, local, "remote release branch includes the integrated history")
	})

	t.Run("conflicting remote aborts without force pushing", func(t *testing.T) {
		s := newRemoteScene(t)
		require.NoError(t, s.local.CreateChangeAndCommit("local edit", ""))
		repo := &fetchHookRepo{Repo: s.repo, beforeFetch: s.collaboratorPush("v2.0.0", "test.txt", "their edit")}

		_, err := newManager(repo).Release(ctx, "2.0.0", release.Options{Push: true})
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrMergeConflict)

		var relErr *release.ReleaseError
		require.ErrorAs(t, err, &relErr)
		assert.Equal(t, runwayerrors.RecoveryReturnedToMain, relErr.Recovery)

		branch, err := s.local.CurrentBranchName()
		require.NoError(t, err)
		assert.Equal(t, "main", branch)
		assert.True(t, s.local.HasRef("refs/heads/v2.0.0"), "local release branch kept for inspection")
		assert.True(t, s.local.HasRef("refs/tags/v2.0.0"), "local tag kept for inspection")
		assert.False(t, testhelpers.BareHasRef(s.bare, "refs/tags/v2.0.0"), "nothing was pushed")

		clean, err := s.local.IsClean()
		require.NoError(t, err)
		assert.True(t, clean, "merge state was aborted")
	})
}

func TestReleaseIntegration_Rollback(t *testing.T) {
	ctx := context.Background()
	s := newRemoteScene(t)
	m := newManager(s.repo)

	_, err := m.Release(ctx, "1.0.0", release.Options{Push: true, Hold: true})
	require.NoError(t, err)
	require.True(t, testhelpers.BareHasRef(s.bare, "refs/tags/v1.0.0"))

	result, err := m.Rollback(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success, result.Warnings)

	assert.False(t, testhelpers.BareHasRef(s.bare, "refs/tags/v1.0.0"))
	assert.False(t, testhelpers.BareHasRef(s.bare, "refs/heads/v1.0.0"))
	assert.False(t, s.local.HasRef("refs/tags/v1.0.0"))
	assert.False(t, s.local.HasRef("refs/heads/v1.0.0"))

	// cleanup is idempotent against a real remote too
	require.NoError(t, m.CleanupExistingTag(ctx, "1.0.0"))
	require.NoError(t, m.CleanupExistingTag(ctx, "1.0.0"))
}

func TestReleaseIntegration_ManifestVersions(t *testing.T) {
	ctx := context.Background()
	scene, err := testhelpers.NewGitRepoWithCommit(filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, err)
	_, err = testhelpers.WriteWorkspace(scene.Dir, "1.4.0", []testhelpers.CrateSpec{
		{Name: "core"},
		{Name: "cli", Version: "1.4.0", Binary: true,
			Extra: "[build-dependencies]\ncore = { path = \"../core\", version = \"1.4.0\" }"},
	})
	require.NoError(t, err)
	require.NoError(t, scene.RunGitCommand("add", "."))
	require.NoError(t, scene.RunGitCommand("commit", "-m", "add workspace"))

	ws, err := workspace.Analyze(scene.Dir)
	require.NoError(t, err)
	repo, err := git.Open(scene.Dir)
	require.NoError(t, err)

	result, err := newManager(repo).Release(ctx, "2.0.0", release.Options{Stager: workspace.NewVersionUpdater(ws)})
	require.NoError(t, err)
	assert.Len(t, result.Staged, 2)

	rootAtTag, err := scene.RunGitCommandAndGetOutput("show", "v2.0.0:Cargo.toml")
	require.NoError(t, err)
	assert.Contains(t, rootAtTag, `version = "2.0.0"`)

	cliAtTag, err := scene.RunGitCommandAndGetOutput("show", "v2.0.0:crates/cli/Cargo.toml")
	require.NoError(t, err)
	assert.Contains(t, cliAtTag, "version = \"2.0.0\"\n")
	assert.Contains(t, cliAtTag, `core = { path = "../core", version = "2.0.0" }`)

	coreAtTag, err := scene.RunGitCommandAndGetOutput("show", "v2.0.0:crates/core/Cargo.toml")
	require.NoError(t, err)
	assert.Contains(t, coreAtTag, "version.workspace = true")

	branch, err := scene.CurrentBranchName()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
	clean, err := scene.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)
	onMain, err := os.ReadFile(filepath.Join(scene.Dir, "Cargo.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(onMain), `version = "1.4.0"`, "main keeps its version until the release branch is merged")
}
