// Package publish uploads workspace packages to the crate registry with
// `cargo publish`.
package publish

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// Config controls cargo publish behavior
type Config struct {
	// Root is the workspace root cargo runs in
	Root   string
	DryRun bool
	// Delay is the minimum spacing between publishes so the registry index can catch up
	Delay time.Duration
	// Retries is how many times a rate-limited publish is retried
	Retries int
	// RetryWait is the pause before a retry
	RetryWait time.Duration
	// Registry selects a non-default registry
	Registry string
}

// Result reports one package
type Result struct {
	Package string
	// Skipped is set when the version was already on the registry
	Skipped  bool
	DryRun   bool
	Attempts int
	Duration time.Duration
}

// Cargo publishes packages one at a time
type Cargo struct {
	runner procexec.Runner
	cfg    Config
	splog  *tui.Splog
	sleep  func(ctx context.Context, d time.Duration) error
	// pace spaces consecutive uploads by Delay; nil when there is no delay
	pace *rate.Limiter
}

// NewCargo creates a publisher
func NewCargo(runner procexec.Runner, cfg Config, splog *tui.Splog) *Cargo {
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 30 * time.Second
	}
	if splog == nil {
		splog = tui.NewSplog()
	}
	c := &Cargo{runner: runner, cfg: cfg, splog: splog, sleep: sleepCtx}
	if cfg.Delay > 0 && !cfg.DryRun {
		c.pace = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish runs `cargo publish -p name`. A version that is already uploaded
// counts as success; rate limiting is retried.
func (c *Cargo) Publish(ctx context.Context, name string) (*Result, error) {
	cargo, err := procexec.Require(c.runner, "cargo", "install Rust from https://rustup.rs")
	if err != nil {
		return nil, err
	}

	args := []string{"publish", "-p", name}
	if c.cfg.DryRun {
		args = append(args, "--dry-run")
	}
	if c.cfg.Registry != "" {
		args = append(args, "--registry", c.cfg.Registry)
	}

	start := time.Now()
	if c.pace != nil {
		if c.pace.Tokens() < 1 {
			c.splog.Debug("Waiting for the registry index before publishing %s", name)
		}
		if err := c.pace.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res := &Result{Package: name, DryRun: c.cfg.DryRun}
	for {
		res.Attempts++
		c.splog.Info("Publishing %s%s", name, dryRunSuffix(c.cfg.DryRun))
		_, err := c.runner.Run(ctx, procexec.Command{Name: cargo, Args: args, Dir: c.cfg.Root})
		if err == nil {
			break
		}
		stderr := stderrOf(err)
		if alreadyPublished(stderr) {
			c.splog.Warn("%s is already published; skipping", name)
			res.Skipped = true
			res.Duration = time.Since(start)
			return res, nil
		}
		if rateLimited(stderr) && res.Attempts <= c.cfg.Retries {
			c.splog.Warn("Registry rate limit hit publishing %s; retrying in %s", name, c.cfg.RetryWait)
			if err := c.sleep(ctx, c.cfg.RetryWait); err != nil {
				return nil, err
			}
			continue
		}
		return nil, runwayerrors.New(runwayerrors.KindCLI, "cargo publish "+name, err)
	}

	c.splog.Success("Published %s", name)
	res.Duration = time.Since(start)
	return res, nil
}

func dryRunSuffix(dry bool) string {
	if dry {
		return " (dry run)"
	}
	return ""
}

func stderrOf(err error) string {
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return err.Error()
}

func alreadyPublished(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "already uploaded") || strings.Contains(s, "already exists")
}

func rateLimited(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "429") || strings.Contains(s, "too many requests") || strings.Contains(s, "rate limit")
}
