package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway.dev/runway/internal/container"
	runwayerrors "runway.dev/runway/internal/errors"
)

func TestDefaultLimits(t *testing.T) {
	t.Run("large host is clamped", func(t *testing.T) {
		l := container.DefaultLimits(64<<30, 32)
		assert.Equal(t, "16g", l.Memory)
		assert.Equal(t, "18g", l.MemorySwap)
		assert.Equal(t, "16", l.CPUs)
		assert.Equal(t, 1000, l.PidsLimit)
		assert.False(t, l.Network)
	})

	t.Run("small host gets the floor", func(t *testing.T) {
		l := container.DefaultLimits(2<<30, 1)
		assert.Equal(t, "2g", l.Memory)
		assert.Equal(t, "4g", l.MemorySwap)
		assert.Equal(t, "2", l.CPUs)
	})

	t.Run("mid host is half", func(t *testing.T) {
		l := container.DefaultLimits(16<<30, 8)
		assert.Equal(t, "8g", l.Memory)
		assert.Equal(t, "4", l.CPUs)
		require.NoError(t, l.Validate())
	})

	t.Run("detected limits validate", func(t *testing.T) {
		require.NoError(t, container.DetectLimits().Validate())
	})
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"512m":   512,
		"4g":     4096,
		"4G":     4096,
		"4gb":    4096,
		"4096MB": 4096,
		"2048k":  2,
		"2048":   2048,
		"  4g  ": 4096,
	}
	for in, want := range cases {
		got, err := container.ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "invalid", "4x", "-1g"} {
		_, err := container.ParseSize(bad)
		assert.ErrorIs(t, err, runwayerrors.ErrCLI, bad)
	}
}

func TestLimitsValidate(t *testing.T) {
	valid := container.Limits{Memory: "4g", MemorySwap: "6g", CPUs: "1.5", PidsLimit: 100}
	require.NoError(t, valid.Validate())

	cases := map[string]container.Limits{
		"memory too low":    {Memory: "256m", CPUs: "2", PidsLimit: 100},
		"swap below memory": {Memory: "8g", MemorySwap: "4g", CPUs: "2", PidsLimit: 100},
		"zero cpus":         {Memory: "4g", CPUs: "0", PidsLimit: 100},
		"bad cpus":          {Memory: "4g", CPUs: "many", PidsLimit: 100},
		"zero pids":         {Memory: "4g", CPUs: "2", PidsLimit: 0},
		"bad memory":        {Memory: "lots", CPUs: "2", PidsLimit: 100},
	}
	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, l.Validate(), runwayerrors.ErrCLI)
		})
	}
}

func TestLimitsArgs(t *testing.T) {
	l := container.Limits{Memory: "4g", CPUs: "2", PidsLimit: 500}
	assert.Equal(t, []string{
		"--memory", "4g",
		"--memory-swap", "6144m",
		"--cpus", "2",
		"--pids-limit", "500",
		"--network", "none",
	}, l.Args())

	l.Network = true
	l.MemorySwap = "8g"
	assert.Equal(t, []string{
		"--memory", "4g",
		"--memory-swap", "8g",
		"--cpus", "2",
		"--pids-limit", "500",
	}, l.Args())
}
