package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/workspace"
	"runway.dev/runway/testhelpers"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestVersionUpdater(t *testing.T) {
	setup := func(t *testing.T) (string, *workspace.Workspace) {
		t.Helper()
		root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{
			{Name: "core"},
			{Name: "net", Version: "1.0.0", PathDeps: []string{"core"}},
			{Name: "app", PathDeps: []string{"net"}, Binary: true,
				Extra: "[build-dependencies]\ncore = { path = \"../core\", version = \"1.0.0\" }"},
		})
		require.NoError(t, err)
		ws, err := workspace.Analyze(root)
		require.NoError(t, err)
		return root, ws
	}

	t.Run("bumps shared, explicit and dependency versions", func(t *testing.T) {
		root, ws := setup(t)
		res, err := workspace.NewVersionUpdater(ws).Update("1.1.0")
		require.NoError(t, err)

		assert.Equal(t, "1.0.0", res.Previous)
		assert.Equal(t, "1.1.0", res.Version)
		assert.Equal(t, 1, res.Packages, "only net declares its own version")
		assert.Equal(t, 1, res.Dependencies)
		assert.ElementsMatch(t, []string{
			filepath.Join(ws.Root, "Cargo.toml"),
			filepath.Join(ws.Root, "crates", "app", "Cargo.toml"),
			filepath.Join(ws.Root, "crates", "net", "Cargo.toml"),
		}, res.Files)

		assert.Contains(t, readFile(t, filepath.Join(root, "crates", "core", "Cargo.toml")), "version.workspace = true")

		again, err := workspace.Analyze(root)
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", again.Version)
		for _, name := range again.Names() {
			pkg, _ := again.Package(name)
			assert.Equal(t, "1.1.0", pkg.Version, name)
		}
	})

	t.Run("same version changes nothing", func(t *testing.T) {
		_, ws := setup(t)
		files, err := workspace.NewVersionUpdater(ws).Stage(context.Background(), "1.0.0")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("refuses to go backwards", func(t *testing.T) {
		root, ws := setup(t)
		before := readFile(t, filepath.Join(root, "Cargo.toml"))
		_, err := workspace.NewVersionUpdater(ws).Update("0.9.0")
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrWorkspace)
		assert.Equal(t, before, readFile(t, filepath.Join(root, "Cargo.toml")))
	})

	t.Run("pre-release of the next version is allowed", func(t *testing.T) {
		_, ws := setup(t)
		_, err := workspace.NewVersionUpdater(ws).Update("1.1.0-rc.1")
		require.NoError(t, err)
	})

	t.Run("restore undoes the update", func(t *testing.T) {
		root, ws := setup(t)
		manifests := []string{
			filepath.Join(root, "Cargo.toml"),
			filepath.Join(root, "crates", "net", "Cargo.toml"),
			filepath.Join(root, "crates", "app", "Cargo.toml"),
		}
		before := map[string]string{}
		for _, p := range manifests {
			before[p] = readFile(t, p)
		}

		u := workspace.NewVersionUpdater(ws)
		_, err := u.Stage(context.Background(), "2.0.0")
		require.NoError(t, err)
		require.NoError(t, u.Restore())
		for _, p := range manifests {
			assert.Equal(t, before[p], readFile(t, p), p)
		}
	})
}
