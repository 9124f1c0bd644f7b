package git_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/testhelpers"
)

func setupRepo(t *testing.T) (*testhelpers.GitRepo, *git.CLIRepo) {
	t.Helper()
	scene, err := testhelpers.NewGitRepoWithCommit(filepath.Join(t.TempDir(), "repo"))
	require.NoError(t, err)
	repo, err := git.Open(scene.Dir)
	require.NoError(t, err)
	return scene, repo
}

func TestOpen(t *testing.T) {
	t.Run("finds the root from a subdirectory", func(t *testing.T) {
		scene, _ := setupRepo(t)
		sub := filepath.Join(scene.Dir, "crates", "a")
		require.NoError(t, os.MkdirAll(sub, 0750))

		repo, err := git.Open(sub)
		require.NoError(t, err)
		want, _ := filepath.EvalSymlinks(scene.Dir)
		got, _ := filepath.EvalSymlinks(repo.Root())
		assert.Equal(t, want, got)
	})

	t.Run("outside a repository", func(t *testing.T) {
		_, err := git.Open(t.TempDir())
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrNotRepository)
	})
}

func TestCLIRepo_Inspect(t *testing.T) {
	ctx := context.Background()
	scene, repo := setupRepo(t)

	clean, err := repo.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	require.NoError(t, scene.CreateChange("dirty", "wip", true))
	clean, err = repo.IsClean(ctx)
	require.NoError(t, err)
	assert.False(t, clean, "untracked files make the tree dirty")

	branch, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch.Name)
	head, err := scene.GetRevision("HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, branch.Head)

	detached, err := repo.IsDetached(ctx)
	require.NoError(t, err)
	assert.False(t, detached)

	commits, err := repo.RecentCommits(ctx, 5)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "initial", commits[0].Subject)
	assert.Equal(t, "Test User", commits[0].Author)

	exists, err := repo.RemoteExists(ctx, "origin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCLIRepo_CommitTagBranch(t *testing.T) {
	ctx := context.Background()
	scene, repo := setupRepo(t)

	require.NoError(t, repo.CreateBranch(ctx, "v1.0.0", true))
	require.NoError(t, scene.CreateChange("release", "release", true))
	require.NoError(t, repo.Add(ctx))
	hash, err := repo.Commit(ctx, git.CommitOptions{Message: "release: v1.0.0"})
	require.NoError(t, err)
	head, _ := scene.GetRevision("HEAD")
	assert.Equal(t, head, hash)

	_, err = repo.Commit(ctx, git.CommitOptions{Message: "empty", AllowEmpty: true})
	require.NoError(t, err)

	require.NoError(t, repo.CreateTag(ctx, git.TagOptions{Name: "v1.0.0", Message: "Release v1.0.0", Annotated: true}))
	err = repo.CreateTag(ctx, git.TagOptions{Name: "v1.0.0", Message: "again", Annotated: true})
	assert.ErrorIs(t, err, runwayerrors.ErrTagExists)

	tagType, err := scene.RunGitCommandAndGetOutput("cat-file", "-t", "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "tag", tagType, "release tags are annotated")

	tags, err := repo.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0"}, tags)

	require.NoError(t, repo.Checkout(ctx, "main"))
	branches, err := repo.ListBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "v1.0.0"}, branches)

	require.NoError(t, repo.DeleteTag(ctx, "v1.0.0"))
	require.NoError(t, repo.DeleteBranch(ctx, "v1.0.0", true))
	exists, err := repo.TagExists(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = repo.BranchExists(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCLIRepo_MessagesAndTagFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("multi-line messages are kept verbatim", func(t *testing.T) {
		scene, repo := setupRepo(t)
		msg := "release: v2.0.0\n\n- bump manifests\n- \"quoted\" notes"
		_, err := repo.Commit(ctx, git.CommitOptions{Message: msg, AllowEmpty: true})
		require.NoError(t, err)
		body, err := scene.RunGitCommandAndGetOutput("log", "-1", "--format=%B")
		require.NoError(t, err)
		assert.Equal(t, msg, body)

		require.NoError(t, repo.CreateTag(ctx, git.TagOptions{Name: "v2.0.0", Message: "Release v2.0.0\n\nnotes", Annotated: true}))
		tagBody, err := scene.RunGitCommandAndGetOutput("tag", "-l", "--format=%(contents)", "v2.0.0")
		require.NoError(t, err)
		assert.Equal(t, "Release v2.0.0\n\nnotes", tagBody)
	})

	t.Run("invalid tag name is not reported as existing", func(t *testing.T) {
		_, repo := setupRepo(t)
		err := repo.CreateTag(ctx, git.TagOptions{Name: "bad..name", Message: "nope", Annotated: true})
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrTagFailed)
		assert.NotErrorIs(t, err, runwayerrors.ErrTagExists)
	})

	t.Run("deleting a missing tag", func(t *testing.T) {
		_, repo := setupRepo(t)
		err := repo.DeleteTag(ctx, "v9.9.9")
		assert.ErrorIs(t, err, runwayerrors.ErrTagFailed)
	})
}

func TestCommandRunner_WithEnv(t *testing.T) {
	ctx := context.Background()
	scene, _ := setupRepo(t)

	base := git.NewCommandRunner(scene.Dir)
	bot := base.WithEnv("GIT_AUTHOR_NAME=Release Bot", "GIT_AUTHOR_EMAIL=bot@runway.dev")

	ident, err := bot.Run(ctx, "var", "GIT_AUTHOR_IDENT")
	require.NoError(t, err)
	assert.Contains(t, ident, "Release Bot <bot@runway.dev>")

	ident, err = base.Run(ctx, "var", "GIT_AUTHOR_IDENT")
	require.NoError(t, err)
	assert.NotContains(t, ident, "Release Bot", "WithEnv leaves the original runner untouched")

	out, err := base.RunWithInput(ctx, "line one\nline two\n", "hash-object", "--stdin")
	require.NoError(t, err)
	assert.Len(t, out, 40)
}

func TestCLIRepo_Merge(t *testing.T) {
	ctx := context.Background()

	t.Run("fast forward and already up to date", func(t *testing.T) {
		scene, repo := setupRepo(t)
		require.NoError(t, scene.CreateAndCheckoutBranch("feature"))
		require.NoError(t, scene.CreateChangeAndCommit("feature work", "feature"))
		require.NoError(t, scene.CheckoutBranch("main"))

		outcome, err := repo.Merge(ctx, "feature")
		require.NoError(t, err)
		assert.Equal(t, git.FastForward, outcome.Kind)
		assert.NotEmpty(t, outcome.Commit)

		outcome, err = repo.Merge(ctx, "feature")
		require.NoError(t, err)
		assert.Equal(t, git.AlreadyUpToDate, outcome.Kind)
	})

	t.Run("diverged branches produce a merge commit", func(t *testing.T) {
		scene, repo := setupRepo(t)
		require.NoError(t, scene.CreateAndCheckoutBranch("feature"))
		require.NoError(t, scene.CreateChangeAndCommit("feature work", "feature"))
		require.NoError(t, scene.CheckoutBranch("main"))
		require.NoError(t, scene.CreateChangeAndCommit("main work", "main"))

		outcome, err := repo.Merge(ctx, "feature")
		require.NoError(t, err)
		assert.Equal(t, git.MergeCommit, outcome.Kind)
	})

	t.Run("missing target", func(t *testing.T) {
		_, repo := setupRepo(t)
		_, err := repo.Merge(ctx, "origin/v9.9.9")
		assert.ErrorIs(t, err, runwayerrors.ErrRemoteBranchNotFound)
	})

	t.Run("conflict then abort", func(t *testing.T) {
		scene, repo := setupRepo(t)
		require.NoError(t, scene.CreateAndCheckoutBranch("feature"))
		require.NoError(t, scene.CreateChangeAndCommit("feature side", ""))
		require.NoError(t, scene.CheckoutBranch("main"))
		require.NoError(t, scene.CreateChangeAndCommit("main side", ""))

		outcome, err := repo.Merge(ctx, "feature")
		require.Error(t, err)
		assert.Equal(t, git.Conflict, outcome.Kind)
		assert.ErrorIs(t, err, runwayerrors.ErrMergeConflict)
		assert.True(t, fileExists(filepath.Join(scene.Dir, ".git", "MERGE_HEAD")))

		require.NoError(t, repo.AbortMerge(ctx))
		assert.False(t, fileExists(filepath.Join(scene.Dir, ".git", "MERGE_HEAD")))
		assert.False(t, fileExists(filepath.Join(scene.Dir, ".git", "MERGE_MSG")))
		clean, err := repo.IsClean(ctx)
		require.NoError(t, err)
		assert.True(t, clean)
	})
}

func TestCLIRepo_Remote(t *testing.T) {
	ctx := context.Background()
	scene, repo := setupRepo(t)
	bare, err := scene.CreateBareRemote("origin")
	require.NoError(t, err)

	remotes, err := repo.Remotes(ctx)
	require.NoError(t, err)
	require.Len(t, remotes, 1)
	assert.Equal(t, "origin", remotes[0].Name)
	assert.Equal(t, bare, remotes[0].URL)

	require.NoError(t, repo.CreateBranch(ctx, "v1.0.0", true))
	require.NoError(t, repo.CreateTag(ctx, git.TagOptions{Name: "v1.0.0", Message: "Release v1.0.0", Annotated: true}))
	require.NoError(t, repo.Fetch(ctx, "origin"))
	require.NoError(t, repo.Push(ctx, git.PushOptions{Remote: "origin", Refspecs: []string{"refs/heads/v1.0.0"}, Tags: true}))

	assert.True(t, testhelpers.BareHasRef(bare, "refs/heads/v1.0.0"))
	assert.True(t, testhelpers.BareHasRef(bare, "refs/tags/v1.0.0"))

	ok, err := repo.RemoteBranchExists(ctx, "origin", "v1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RemoteTagExists(ctx, "origin", "v1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.DeleteRemoteTag(ctx, "origin", "v1.0.0"))
	require.NoError(t, repo.DeleteRemoteBranch(ctx, "origin", "v1.0.0"))
	assert.False(t, testhelpers.BareHasRef(bare, "refs/heads/v1.0.0"))
	assert.False(t, testhelpers.BareHasRef(bare, "refs/tags/v1.0.0"))

	ok, err = repo.RemoteTagExists(ctx, "origin", "v1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
