package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/workspace"
	"runway.dev/runway/testhelpers"
)

func TestAnalyze(t *testing.T) {
	t.Run("discovers members and internal edges", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "core"},
			{Name: "net", PathDeps: []string{"core"}},
			{Name: "cli", PathDeps: []string{"core", "net"}, Binary: true},
		})
		require.NoError(t, err)

		ws, err := workspace.Analyze(root)
		require.NoError(t, err)

		assert.Equal(t, []string{"cli", "core", "net"}, ws.Names())
		assert.Equal(t, "1.0.0", ws.Version)
		assert.Empty(t, ws.InternalDependencies("core"))
		assert.Equal(t, []string{"core"}, ws.InternalDependencies("net"))
		assert.Equal(t, []string{"core", "net"}, ws.InternalDependencies("cli"))
		assert.Equal(t, []string{"cli"}, ws.Binaries())
	})

	t.Run("same-named registry dependency is external", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "core"},
			{Name: "app", RegistryDeps: []string{"core"}},
		})
		require.NoError(t, err)

		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Empty(t, ws.InternalDependencies("app"))
	})

	t.Run("dev dependencies do not create edges", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "core", DevPathDeps: []string{"testkit"}},
			{Name: "testkit", PathDeps: []string{"core"}},
		})
		require.NoError(t, err)

		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Empty(t, ws.InternalDependencies("core"))
		assert.Equal(t, []string{"core"}, ws.InternalDependencies("testkit"))
	})

	t.Run("path dependency outside the workspace is external", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "app", Extra: "[build-dependencies]\nvendored = { path = \"../../vendor/vendored\" }"},
		})
		require.NoError(t, err)

		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Empty(t, ws.InternalDependencies("app"))
	})

	t.Run("duplicate package names are fatal", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{{Name: "one"}})
		require.NoError(t, err)
		dup := filepath.Join(root, "crates", "two")
		require.NoError(t, os.MkdirAll(dup, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dup, "Cargo.toml"), []byte("[package]\nname = \"one\"\nversion = \"1.0.0\"\n"), 0o644))

		_, err = workspace.Analyze(root)
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrDuplicatePackage)
		assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
	})

	t.Run("unreadable member manifest names its path", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{{Name: "bad"}})
		require.NoError(t, err)
		bad := filepath.Join(root, "crates", "bad", "Cargo.toml")
		require.NoError(t, os.WriteFile(bad, []byte("[package\n"), 0o644))

		_, err = workspace.Analyze(root)
		require.Error(t, err)
		assert.Contains(t, err.Error(), bad)
	})

	t.Run("exclude globs remove members", func(t *testing.T) {
		root := t.TempDir()
		_, err := testhelpers.WriteWorkspace(root, "1.0.0", []testhelpers.CrateSpec{{Name: "keep"}, {Name: "drop"}})
		require.NoError(t, err)
		manifestPath := filepath.Join(root, "Cargo.toml")
		require.NoError(t, os.WriteFile(manifestPath, []byte("[workspace]\nmembers = [\"crates/*\"]\nexclude = [\"crates/drop\"]\n\n[workspace.package]\nversion = \"1.0.0\"\n"), 0o644))

		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, ws.Names())
	})

	t.Run("missing literal member is fatal", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[workspace]\nmembers = [\"missing\"]\n"), 0o644))
		_, err := workspace.Analyze(root)
		assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
	})

	t.Run("members that disagree leave version empty", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "", []testhelpers.CrateSpec{
			{Name: "a", Version: "1.0.0"},
			{Name: "b", Version: "1.1.0"},
		})
		require.NoError(t, err)
		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Empty(t, ws.Version)
	})
}

func TestValidate(t *testing.T) {
	t.Run("clean workspace has no issues", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "core"},
			{Name: "app", Extra: "[build-dependencies]\ncore = { path = \"../core\", version = \"1.0\" }"},
		})
		require.NoError(t, err)
		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Empty(t, workspace.Validate(ws))
	})

	t.Run("reports missing requirement and mismatched versions", func(t *testing.T) {
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "", []testhelpers.CrateSpec{
			{Name: "core", Version: "2.0.0"},
			{Name: "app", Version: "1.0.0", PathDeps: []string{"core"}},
			{Name: "tool", Version: "1.0.0", Extra: "[build-dependencies]\ncore = { path = \"../core\", version = \"1.4\" }"},
		})
		require.NoError(t, err)
		ws, err := workspace.Analyze(root)
		require.NoError(t, err)

		issues := workspace.Validate(ws)
		require.Len(t, issues, 2)
		assert.Equal(t, "app", issues[0].Package)
		assert.Equal(t, workspace.SeverityWarning, issues[0].Severity)
		assert.Contains(t, issues[0].Message, "no version requirement")
		assert.Equal(t, "tool", issues[1].Package)
		assert.Equal(t, workspace.SeverityError, issues[1].Severity)
		assert.True(t, workspace.HasErrors(issues))
	})
}

func TestRequirementSatisfied(t *testing.T) {
	cases := []struct {
		req, version string
		want         bool
	}{
		{"1.2", "1.4.0", true},
		{"^1.2.3", "1.2.2", false},
		{"1", "2.0.0", false},
		{"0.3", "0.3.9", true},
		{"0.3", "0.4.0", false},
		{"=1.0.0", "1.0.0", true},
		{"=1.0.0", "1.0.1", false},
		{"~1.2", "1.2.7", true},
		{"~1.2", "1.3.0", false},
		{">=1, <3", "2.0.0", true},
		{"*", "9.9.9", true},
	}
	for _, c := range cases {
		t.Run(c.req+" "+c.version, func(t *testing.T) {
			assert.Equal(t, c.want, workspace.RequirementSatisfied(c.req, c.version))
		})
	}
}

func TestIsValidVersion(t *testing.T) {
	assert.True(t, workspace.IsValidVersion("1.2.3"))
	assert.True(t, workspace.IsValidVersion("1.2.3-rc.1"))
	assert.False(t, workspace.IsValidVersion("1.2"))
	assert.False(t, workspace.IsValidVersion("v1.2.3"))
	assert.False(t, workspace.IsValidVersion(""))
}

func TestFindRoot(t *testing.T) {
	root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{{Name: "core"}})
	require.NoError(t, err)
	root, err = filepath.EvalSymlinks(root)
	require.NoError(t, err)

	for _, start := range []string{root, filepath.Join(root, "crates", "core"), filepath.Join(root, "crates", "core", "src")} {
		got, err := workspace.FindRoot(start)
		require.NoError(t, err, start)
		assert.Equal(t, root, got, start)
	}

	t.Run("standalone package", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"solo\"\nversion = \"0.1.0\"\n"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
		got, err := workspace.FindRoot(filepath.Join(dir, "src"))
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("no manifest", func(t *testing.T) {
		_, err := workspace.FindRoot(t.TempDir())
		assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
	})
}
