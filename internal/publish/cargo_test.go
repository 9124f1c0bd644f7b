package publish_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/publish"
	"runway.dev/runway/internal/tui"
)

func newCargo(mock *procexec.Mock, cfg publish.Config) (*publish.Cargo, *[]time.Duration) {
	c := publish.NewCargo(mock, cfg, tui.NewSplogWithWriter(&bytes.Buffer{}))
	var waits []time.Duration
	publish.SetSleep(c, func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	return c, &waits
}

func exitErr(stderr string) error {
	return &procexec.ExitError{Command: "cargo publish", Stderr: stderr, Err: errors.New("exit status 101")}
}

func TestPublish(t *testing.T) {
	t.Run("publishes in the workspace root", func(t *testing.T) {
		mock := procexec.NewMock()
		c, waits := newCargo(mock, publish.Config{Root: "/ws"})

		res, err := c.Publish(context.Background(), "core")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Attempts)
		assert.False(t, res.Skipped)
		assert.Equal(t, []string{"/usr/bin/cargo publish -p core"}, mock.CommandLines())
		assert.Equal(t, "/ws", mock.Calls()[0].Dir)
		assert.Empty(t, *waits)
	})

	t.Run("spaces consecutive publishes by the delay", func(t *testing.T) {
		mock := procexec.NewMock()
		c, _ := newCargo(mock, publish.Config{Delay: 80 * time.Millisecond})

		start := time.Now()
		_, err := c.Publish(context.Background(), "core")
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 60*time.Millisecond, "the first publish is not delayed")

		_, err = c.Publish(context.Background(), "app")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		mock := procexec.NewMock()
		c, _ := newCargo(mock, publish.Config{Delay: time.Hour})
		_, err := c.Publish(context.Background(), "core")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Publish(ctx, "app")
		require.Error(t, err)
		assert.Len(t, mock.Calls(), 1)
	})

	t.Run("dry run never waits", func(t *testing.T) {
		mock := procexec.NewMock()
		c, _ := newCargo(mock, publish.Config{DryRun: true, Delay: time.Hour, Registry: "internal"})

		for _, name := range []string{"core", "app"} {
			res, err := c.Publish(context.Background(), name)
			require.NoError(t, err)
			assert.True(t, res.DryRun)
		}
		assert.Equal(t, []string{
			"/usr/bin/cargo publish -p core --dry-run --registry internal",
			"/usr/bin/cargo publish -p app --dry-run --registry internal",
		}, mock.CommandLines())
	})

	t.Run("already published is skipped", func(t *testing.T) {
		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return nil, exitErr("error: crate version `0.1.0` is already uploaded")
		}
		c, _ := newCargo(mock, publish.Config{})

		res, err := c.Publish(context.Background(), "core")
		require.NoError(t, err)
		assert.True(t, res.Skipped)
	})

	t.Run("rate limits are retried", func(t *testing.T) {
		mock := procexec.NewMock()
		calls := 0
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			calls++
			if calls < 3 {
				return nil, exitErr("the remote server responded with an error (status 429 Too Many Requests)")
			}
			return nil, nil
		}
		c, waits := newCargo(mock, publish.Config{Retries: 2, RetryWait: time.Second})

		res, err := c.Publish(context.Background(), "core")
		require.NoError(t, err)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, *waits)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return nil, exitErr("429 Too Many Requests")
		}
		c, _ := newCargo(mock, publish.Config{Retries: 1})

		_, err := c.Publish(context.Background(), "core")
		require.Error(t, err)
		assert.Len(t, mock.Calls(), 2)
	})

	t.Run("other failures surface", func(t *testing.T) {
		mock := procexec.NewMock()
		mock.RunFunc = func(context.Context, procexec.Command) ([]byte, error) {
			return nil, exitErr("error: failed to verify package tarball")
		}
		c, _ := newCargo(mock, publish.Config{Retries: 3})

		_, err := c.Publish(context.Background(), "core")
		require.Error(t, err)
		assert.ErrorIs(t, err, runwayerrors.ErrCLI)
		assert.Contains(t, err.Error(), "failed to verify package tarball")
		assert.Len(t, mock.Calls(), 1)
	})

	t.Run("cargo missing", func(t *testing.T) {
		mock := procexec.NewMock()
		mock.Missing["cargo"] = true
		c, _ := newCargo(mock, publish.Config{})
		_, err := c.Publish(context.Background(), "core")
		assert.ErrorIs(t, err, runwayerrors.ErrToolNotFound)
	})
}
