package envinit_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway.dev/runway/internal/envinit"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// unset clears keys for the duration of the test
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func load(t *testing.T, root string, mock *procexec.Mock) *envinit.Result {
	t.Helper()
	res, err := envinit.Load(context.Background(), root, mock, tui.NewSplogWithWriter(&bytes.Buffer{}))
	require.NoError(t, err)
	return res
}

func TestLoadDotenv(t *testing.T) {
	unset(t, "RUNWAY_SKIP_SHELL_INIT", "RUNWAY_T_TOKEN", "RUNWAY_T_REGISTRY", "RUNWAY_T_KEPT")
	t.Setenv("SKIP_SHELL_INIT", "1")
	t.Setenv("RUNWAY_T_KEPT", "from-env")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte("RUNWAY_T_TOKEN=from-dotenv\nRUNWAY_T_REGISTRY=crates-io\nRUNWAY_T_KEPT=overridden\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".runway.env"),
		[]byte("# release credentials\nRUNWAY_T_TOKEN=\"from-runway-env\"\n"), 0600))

	mock := procexec.NewMock()
	res := load(t, root, mock)

	assert.Equal(t, "from-runway-env", os.Getenv("RUNWAY_T_TOKEN"), ".runway.env wins over .env")
	assert.Equal(t, "crates-io", os.Getenv("RUNWAY_T_REGISTRY"))
	assert.Equal(t, "from-env", os.Getenv("RUNWAY_T_KEPT"), "existing variables are never overridden")
	assert.Equal(t, []string{"RUNWAY_T_REGISTRY", "RUNWAY_T_TOKEN"}, res.FromDotenv)
	assert.Len(t, res.Files, 2)
	assert.True(t, res.ShellSkipped)
	assert.Empty(t, mock.Calls())
}

func TestLoadMalformedDotenv(t *testing.T) {
	t.Setenv("SKIP_SHELL_INIT", "1")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("RUNWAY_T_BAD=\"unterminated\n"), 0600))

	_, err := envinit.Load(context.Background(), root, procexec.NewMock(), tui.NewSplogWithWriter(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestLoadShell(t *testing.T) {
	t.Run("merges unset variables", func(t *testing.T) {
		unset(t, "SKIP_SHELL_INIT", "RUNWAY_SKIP_SHELL_INIT", "RUNWAY_T_CARGO_HOME", "RUNWAY_T_MULTI")
		t.Setenv("SHELL", "/bin/zsh")
		t.Setenv("RUNWAY_T_KEPT", "parent")

		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return []byte("RUNWAY_T_CARGO_HOME=/home/u/.cargo\x00RUNWAY_T_KEPT=shell\x00" +
				"RUNWAY_T_MULTI=line1\nline2\x00SHLVL=2\x00garbage\x00"), nil
		}
		res := load(t, t.TempDir(), mock)

		assert.Equal(t, []string{"/bin/zsh -l -c env -0"}, mock.CommandLines())
		assert.Equal(t, []string{"RUNWAY_T_CARGO_HOME", "RUNWAY_T_MULTI"}, res.FromShell)
		assert.Equal(t, "/home/u/.cargo", os.Getenv("RUNWAY_T_CARGO_HOME"))
		assert.Equal(t, "line1\nline2", os.Getenv("RUNWAY_T_MULTI"))
		assert.Equal(t, "parent", os.Getenv("RUNWAY_T_KEPT"))
		assert.False(t, res.ShellSkipped)
	})

	t.Run("shell failure is not fatal", func(t *testing.T) {
		unset(t, "SKIP_SHELL_INIT", "RUNWAY_SKIP_SHELL_INIT")
		t.Setenv("SHELL", "/bin/false")
		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return nil, errors.New("exit status 1")
		}
		res := load(t, t.TempDir(), mock)
		assert.Empty(t, res.FromShell)
	})

	t.Run("no shell", func(t *testing.T) {
		unset(t, "SKIP_SHELL_INIT", "RUNWAY_SKIP_SHELL_INIT", "SHELL")
		mock := procexec.NewMock()
		res := load(t, t.TempDir(), mock)
		assert.True(t, res.ShellSkipped)
		assert.Empty(t, mock.Calls())
	})

	t.Run("skipped by environment", func(t *testing.T) {
		unset(t, "SKIP_SHELL_INIT")
		t.Setenv("RUNWAY_SKIP_SHELL_INIT", "true")
		t.Setenv("SHELL", "/bin/bash")
		mock := procexec.NewMock()
		res := load(t, t.TempDir(), mock)
		assert.True(t, res.ShellSkipped)
		assert.Empty(t, mock.Calls())
	})
}

func TestSkipShellInit(t *testing.T) {
	for value, want := range map[string]bool{"": false, "0": false, "false": false, "1": true, "yes": true} {
		unset(t, "RUNWAY_SKIP_SHELL_INIT")
		t.Setenv("SKIP_SHELL_INIT", value)
		assert.Equal(t, want, envinit.SkipShellInit(), value)
	}
}

func TestParseEnv0(t *testing.T) {
	vars := envinit.ParseEnv0([]byte("A=1\x00B=x=y\x00\x00_=/usr/bin/env\x00PWD=/tmp\x00EMPTY=\x00"))
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, vars)
}
