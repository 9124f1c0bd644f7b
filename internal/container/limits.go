package container

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
)

const (
	minMemoryMB     = 512
	maxMemoryMB     = 1024 * 1024
	defaultPids     = 1000
	minDefaultMemGB = 2
	maxDefaultMemGB = 16
)

// Limits caps the resources of the bundling container
type Limits struct {
	// Memory and MemorySwap use docker size notation (512m, 4g)
	Memory     string
	MemorySwap string
	CPUs       string
	PidsLimit  int
	// Network enables container networking; the default is --network none
	Network bool
}

// DefaultLimits derives limits from the host's total memory and CPU count:
// half the RAM clamped to 2g..16g, swap two gigabytes above that, half the
// CPUs but at least two, and 1000 pids.
func DefaultLimits(totalMemBytes uint64, numCPU int) Limits {
	memGB := int64(totalMemBytes / (1 << 30) / 2)
	if memGB < minDefaultMemGB {
		memGB = minDefaultMemGB
	}
	if memGB > maxDefaultMemGB {
		memGB = maxDefaultMemGB
	}
	cpus := numCPU / 2
	if cpus < 2 {
		cpus = 2
	}
	return Limits{
		Memory:     fmt.Sprintf("%dg", memGB),
		MemorySwap: fmt.Sprintf("%dg", memGB+2),
		CPUs:       strconv.Itoa(cpus),
		PidsLimit:  defaultPids,
	}
}

// DetectLimits returns DefaultLimits for the current host
func DetectLimits() Limits {
	return DefaultLimits(totalMemory(), runtime.NumCPU())
}

// totalMemory reads MemTotal from /proc/meminfo; other hosts fall back to 8 GiB
func totalMemory() uint64 {
	const fallback = 8 << 30
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallback
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return fallback
			}
			return kb * 1024
		}
	}
	return fallback
}

// ParseSize converts docker size notation to megabytes. Accepts k, m, g with
// an optional b suffix in any case; a bare number is megabytes.
func ParseSize(s string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "b")

	unit := int64(1)
	divisor := int64(1)
	switch {
	case strings.HasSuffix(v, "g"):
		unit = 1024
		v = strings.TrimSuffix(v, "g")
	case strings.HasSuffix(v, "m"):
		v = strings.TrimSuffix(v, "m")
	case strings.HasSuffix(v, "k"):
		divisor = 1024
		v = strings.TrimSuffix(v, "k")
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, runwayerrors.Errorf(runwayerrors.KindCLI, "invalid size %q (expected a value like 512m or 4g)", s)
	}
	return n * unit / divisor, nil
}

// Validate checks the limits are usable for a Rust build. An empty
// MemorySwap means memory plus two gigabytes.
func (l Limits) Validate() error {
	memMB, err := ParseSize(l.Memory)
	if err != nil {
		return err
	}
	if memMB < minMemoryMB {
		return runwayerrors.Errorf(runwayerrors.KindCLI, "memory limit too low: %d MB (minimum: %d MB)", memMB, minMemoryMB)
	}
	if memMB > maxMemoryMB {
		return runwayerrors.Errorf(runwayerrors.KindCLI, "memory limit too high: %d MB (maximum: 1 TB)", memMB)
	}
	if l.MemorySwap != "" {
		swapMB, err := ParseSize(l.MemorySwap)
		if err != nil {
			return err
		}
		if swapMB < memMB {
			return runwayerrors.Errorf(runwayerrors.KindCLI, "memory swap (%d MB) must be >= memory (%d MB)", swapMB, memMB)
		}
	}
	cpus, err := strconv.ParseFloat(l.CPUs, 64)
	if err != nil {
		return runwayerrors.Errorf(runwayerrors.KindCLI, "invalid cpus value %q (expected a number like 2 or 1.5)", l.CPUs)
	}
	if cpus <= 0 {
		return runwayerrors.Errorf(runwayerrors.KindCLI, "cpu limit must be positive, got %s", l.CPUs)
	}
	if l.PidsLimit <= 0 {
		return runwayerrors.Errorf(runwayerrors.KindCLI, "pids limit must be positive, got %d", l.PidsLimit)
	}
	return nil
}

func (l Limits) swap() string {
	if l.MemorySwap != "" {
		return l.MemorySwap
	}
	memMB, err := ParseSize(l.Memory)
	if err != nil {
		return l.Memory
	}
	return fmt.Sprintf("%dm", memMB+2048)
}

// Args renders the limits as docker run flags
func (l Limits) Args() []string {
	args := []string{
		"--memory", l.Memory,
		"--memory-swap", l.swap(),
		"--cpus", l.CPUs,
		"--pids-limit", strconv.Itoa(l.PidsLimit),
	}
	if !l.Network {
		args = append(args, "--network", "none")
	}
	return args
}
