package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway.dev/runway/internal/cli"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/state"
	"runway.dev/runway/testhelpers"
)

// runCLI executes runway in-process against dir with a stub repository
func runCLI(t *testing.T, dir string, repo *testhelpers.StubRepo, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RUNWAY_SKIP_SHELL_INIT", "1")
	t.Setenv("RUNWAY_NO_INTERACTIVE", "1")
	t.Setenv("RUNWAY_LOG_FILE", filepath.Join(t.TempDir(), "runway.log"))

	orig := runtime.RepoFactory
	runtime.RepoFactory = func(string) (git.Repo, error) { return repo, nil }
	t.Cleanup(func() { runtime.RepoFactory = orig })

	var out bytes.Buffer
	cmd := cli.NewRootCmd("test", "abc123", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--cwd", dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newWorkspace(t *testing.T) string {
	t.Helper()
	root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
		{Name: "core"},
		{Name: "net", PathDeps: []string{"core"}},
		{Name: "app", PathDeps: []string{"core", "net"}, Binary: true},
	})
	require.NoError(t, err)
	return root
}

func TestPlanCommand(t *testing.T) {
	root := newWorkspace(t)

	out, err := runCLI(t, filepath.Join(root, "crates", "net"), testhelpers.NewStubRepo(), "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1.0.0")
	assert.Contains(t, out, "  core 1.0.0\n")
	assert.Contains(t, out, "  core -> (none)\n")
	assert.Contains(t, out, "  app -> core, net\n")
	assert.Contains(t, out, "(3 packages in 3 tiers)")
	assert.Contains(t, out, "  Tier 1: core\n")
	assert.Contains(t, out, "    core  dependents: app, net  dependencies: (none)\n")
	assert.Contains(t, out, "  Tier 3: app\n")

	out, err = runCLI(t, t.TempDir(), testhelpers.NewStubRepo(), "plan", root)
	require.NoError(t, err, "an explicit path wins over the working directory")
	assert.Contains(t, out, "Tier 2: net")
}

func TestValidateCommand(t *testing.T) {
	t.Run("clean workspace", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{{Name: "core"}, {Name: "cli", Binary: true}})
		require.NoError(t, err)
		out, err := runCLI(t, root, testhelpers.NewStubRepo(), "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "2 packages, no issues found")
	})

	t.Run("warnings do not fail", func(t *testing.T) {
		out, err := runCLI(t, newWorkspace(t), testhelpers.NewStubRepo(), "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "path dependency core has no version requirement")
	})

	t.Run("errors fail", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "", []testhelpers.CrateSpec{{Name: "core", Version: "one"}})
		require.NoError(t, err)
		out, err := runCLI(t, root, testhelpers.NewStubRepo(), "validate")
		assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
		assert.Contains(t, out, `version "one" is not valid semver`)
	})

	t.Run("bad config", func(t *testing.T) {
		root := newWorkspace(t)
		require.NoError(t, os.WriteFile(filepath.Join(root, ".runway.yaml"), []byte("git: [\n"), 0o600))
		_, err := runCLI(t, root, testhelpers.NewStubRepo(), "validate")
		assert.ErrorIs(t, err, runwayerrors.ErrCLI)
	})
}

func TestReleaseCommand(t *testing.T) {
	t.Run("dry run", func(t *testing.T) {
		repo := testhelpers.NewStubRepo()
		out, err := runCLI(t, newWorkspace(t), repo, "release", "v1.0.0", "--dry-run", "--skip-bundle")
		require.NoError(t, err)
		assert.Contains(t, out, "Dry run for release 1.0.0")
		assert.Contains(t, out, "  3. app\n")
		assert.Contains(t, out, "Run without --dry-run")
		assert.Empty(t, repo.Mutations())
	})

	t.Run("needs confirmation", func(t *testing.T) {
		repo := testhelpers.NewStubRepo()
		_, err := runCLI(t, newWorkspace(t), repo, "release", "1.0.0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--yes")
		assert.Empty(t, repo.Calls)
	})

	t.Run("local release", func(t *testing.T) {
		repo := testhelpers.NewStubRepo()
		root := newWorkspace(t)
		out, err := runCLI(t, root, repo, "release", "1.0.0", "--yes", "--no-push", "--skip-bundle")
		require.NoError(t, err)
		assert.Contains(t, out, "Released v1.0.0")
		assert.Contains(t, repo.Tags, "v1.0.0")
		assert.Empty(t, repo.RemoteTags)

		st, err := state.NewStore(root).Load()
		require.NoError(t, err)
		assert.Equal(t, state.PhaseCompleted, st.Phase)
	})

	t.Run("invalid formats", func(t *testing.T) {
		_, err := runCLI(t, newWorkspace(t), testhelpers.NewStubRepo(), "release", "1.0.0", "--dry-run", "--formats", "zip")
		assert.ErrorIs(t, err, runwayerrors.ErrCLI)
	})

	t.Run("invalid version", func(t *testing.T) {
		_, err := runCLI(t, newWorkspace(t), testhelpers.NewStubRepo(), "release", "latest", "--yes")
		assert.Error(t, err)
	})
}

func TestStatusCommand(t *testing.T) {
	root := newWorkspace(t)
	repo := testhelpers.NewStubRepo()

	out, err := runCLI(t, root, repo, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Release: none")
	assert.Contains(t, out, "Repository: main at 00000000, clean")
	assert.Contains(t, out, "1 branches, 0 tags, 1 remotes")
	assert.Contains(t, out, "Backup point: main at 00000000")
	assert.Contains(t, out, "initial")

	st := state.New("1.0.0")
	st.SetPhase(state.PhaseBundling)
	st.Git = release.State{Version: "1.0.0", Tag: "v1.0.0", Branch: "v1.0.0", TagsPushed: true}
	st.Fail(assert.AnError)
	require.NoError(t, state.NewStore(root).Save(st))

	out, err = runCLI(t, root, repo, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Release v1.0.0 (failed)")
	assert.Contains(t, out, "tag v1.0.0 on v1.0.0 (branch pushed: false, tags pushed: true)")
	assert.Contains(t, out, "last error:")
	assert.Contains(t, out, "run 'runway rollback'")
}

func TestRollbackCommand(t *testing.T) {
	t.Run("nothing saved", func(t *testing.T) {
		out, err := runCLI(t, newWorkspace(t), testhelpers.NewStubRepo(), "rollback", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "No release to roll back")
	})

	t.Run("restores and undoes the saved release", func(t *testing.T) {
		root := newWorkspace(t)
		repo := testhelpers.NewStubRepo()
		repo.Tags["v1.0.0"] = repo.Branches["main"]
		repo.Branches["v1.0.0"] = repo.Branches["main"]
		repo.RemoteTags["origin/v1.0.0"] = true

		st := state.New("1.0.0")
		st.Git = release.State{Version: "1.0.0", Commit: repo.Branches["main"], Tag: "v1.0.0", Branch: "v1.0.0", TagsPushed: true}
		st.Fail(assert.AnError)
		store := state.NewStore(root)
		require.NoError(t, store.Save(st))

		out, err := runCLI(t, root, repo, "rollback", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Rollback completed")
		assert.NotContains(t, repo.Tags, "v1.0.0")
		assert.NotContains(t, repo.Branches, "v1.0.0")
		assert.False(t, repo.RemoteTags["origin/v1.0.0"])
		assert.False(t, store.Exists())
	})

	t.Run("needs confirmation", func(t *testing.T) {
		root := newWorkspace(t)
		st := state.New("1.0.0")
		st.Git = release.State{Version: "1.0.0", Tag: "v1.0.0"}
		require.NoError(t, state.NewStore(root).Save(st))

		_, err := runCLI(t, root, testhelpers.NewStubRepo(), "rollback")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--yes")
	})
}

func TestCleanupCommand(t *testing.T) {
	root := newWorkspace(t)
	repo := testhelpers.NewStubRepo()
	repo.Tags["v1.0.0"] = repo.Branches["main"]
	repo.Branches["v1.0.0"] = repo.Branches["main"]
	repo.RemoteBranches["origin/v1.0.0"] = true
	store := state.NewStore(root)
	require.NoError(t, store.Save(state.New("1.0.0")))

	out, err := runCLI(t, root, repo, "cleanup", "1.0.0", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleaned up v1.0.0")
	assert.NotContains(t, repo.Tags, "v1.0.0")
	assert.NotContains(t, repo.Branches, "v1.0.0")
	assert.False(t, repo.RemoteBranches["origin/v1.0.0"])
	assert.False(t, store.Exists())
}

func TestBundleCommand(t *testing.T) {
	root := newWorkspace(t)
	out, err := runCLI(t, root, testhelpers.NewStubRepo(), "bundle", "--package", "app", "--formats", "deb", "--native-only", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would bundle app")
	assert.NotContains(t, out, "Would build app")

	out, err = runCLI(t, root, testhelpers.NewStubRepo(), "bundle", "--package", "app", "--formats", "deb", "--native-only", "--build", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would build app with cargo build --release first")

	_, err = runCLI(t, root, testhelpers.NewStubRepo(), "bundle", "--package", "nope", "--formats", "deb")
	assert.ErrorIs(t, err, runwayerrors.ErrCLI)
}

func TestDoctorCommand(t *testing.T) {
	t.Run("reports each section", func(t *testing.T) {
		root := newWorkspace(t)
		out, _ := runCLI(t, root, testhelpers.NewStubRepo(), "doctor")
		assert.Contains(t, out, "Environment:")
		assert.Contains(t, out, "no package declares bundle formats")
		assert.Contains(t, out, "on main with a clean working tree")
		assert.Contains(t, out, "remote origin configured")
		assert.Contains(t, out, "no unfinished release")
	})

	t.Run("unfinished release is an error", func(t *testing.T) {
		root := newWorkspace(t)
		repo := testhelpers.NewStubRepo()
		repo.RemoteList = nil

		st := state.New("1.0.0")
		st.Git = release.State{Version: "1.0.0", Tag: "v1.0.0"}
		st.Fail(assert.AnError)
		require.NoError(t, state.NewStore(root).Save(st))

		out, err := runCLI(t, root, repo, "doctor")
		require.Error(t, err)
		assert.Contains(t, out, "release v1.0.0 did not finish")
		assert.Contains(t, out, "remote origin is not configured")
	})
}
