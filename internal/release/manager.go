// Package release implements the transactional git release flow: auto-commit
// of work in progress, merge into main, release branch, commit, tag, push,
// and the rollback protocol that undoes it.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/internal/tui"
)

// WIPCommitMessage labels the auto-commit of uncommitted changes
const WIPCommitMessage = "WIP: Auto-commit before release"

// Stager writes release changes into the working tree once the release
// branch exists. What it writes becomes part of the release commit.
type Stager interface {
	Stage(ctx context.Context, version string) ([]string, error)
	// Restore undoes the last Stage when the release commit cannot be made
	Restore() error
}

// Options controls a single release
type Options struct {
	Push   bool
	DryRun bool
	// Hold keeps the release state after success so the caller can Commit or
	// Rollback once later steps finish
	Hold bool
	// Stager, when set, runs between creating the release branch and the
	// release commit
	Stager Stager
	// StayOnRelease leaves HEAD on the release branch after success. The
	// caller returns with ReturnToMain once it no longer needs the tree.
	StayOnRelease bool
}

// Manager drives releases against a single repository.
// All transitions are serialized by the manager's mutex.
type Manager struct {
	repo  git.Repo
	cfg   Config
	splog *tui.Splog

	mu    sync.Mutex
	state State
}

// NewManager creates a release manager
func NewManager(repo git.Repo, cfg Config, splog *tui.Splog) *Manager {
	if splog == nil {
		splog = tui.NewSplog()
	}
	return &Manager{repo: repo, cfg: cfg.withDefaults(), splog: splog}
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// State returns a copy of the current release state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RestoreState replaces the release state, typically from a persisted checkpoint
func (m *Manager) RestoreState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// ReturnToMain checks out main after a release made with StayOnRelease
func (m *Manager) ReturnToMain(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.repo.Checkout(ctx, m.cfg.MainBranch); err != nil {
		return &ReleaseError{Version: m.state.Version, Step: StepReturn, Recovery: m.safeReturnToMain(ctx), Err: err}
	}
	return nil
}

// Commit accepts the release and clears its state
func (m *Manager) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
}

// NormalizeVersion strips a leading "v" and checks the remainder is a full semantic version
func NormalizeVersion(version string) (string, error) {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if v == "" || !semver.IsValid("v"+v) || strings.Count(strings.SplitN(strings.SplitN(v, "-", 2)[0], "+", 2)[0], ".") != 2 {
		return "", runwayerrors.Errorf(runwayerrors.KindCLI, "invalid version %q: expected MAJOR.MINOR.PATCH", version)
	}
	return v, nil
}

// Release runs the release state machine for version.
//
// On failure the manager attempts a checkout-only return to main and the
// returned *ReleaseError names the failed step and where HEAD was left. The
// release state is kept on failure so Rollback can undo what was created.
func (m *Manager) Release(ctx context.Context, version string, opts Options) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	v, err := NormalizeVersion(version)
	if err != nil {
		return nil, err
	}
	if !m.state.IsZero() {
		return nil, runwayerrors.Errorf(runwayerrors.KindGit,
			"release state for %s is still held; commit or roll it back first", m.state.Version)
	}

	r := &run{m: m, version: v, branch: m.cfg.BranchName(v), tag: m.cfg.TagName(v)}
	result, err := r.execute(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	if !opts.Hold && !opts.DryRun {
		m.state = State{}
	}
	return result, nil
}

// run carries one release attempt. Its methods run with m.mu held.
type run struct {
	m       *Manager
	version string
	branch  string
	tag     string
}

func (r *run) fail(ctx context.Context, step Step, err error) error {
	recovery := r.m.safeReturnToMain(ctx)
	if r.m.state.Branch == "" && r.m.state.Tag == "" {
		// nothing was created that a rollback would need to undo
		r.m.state = State{}
	}
	r.m.splog.Debug("release %s failed at %s: %v (%s)", r.version, step, err, recovery)
	return &ReleaseError{Version: r.version, Step: step, Recovery: recovery, Err: err}
}

func (r *run) execute(ctx context.Context, opts Options) (*Result, error) {
	m := r.m
	repo := m.repo
	cfg := m.cfg

	// S0: remember where we started
	current, err := repo.CurrentBranch(ctx)
	if err != nil {
		return nil, &ReleaseError{Version: r.version, Step: StepStart, Recovery: runwayerrors.RecoveryStateUnknown, Err: err}
	}
	detached, err := repo.IsDetached(ctx)
	if err != nil {
		return nil, &ReleaseError{Version: r.version, Step: StepStart, Recovery: runwayerrors.RecoveryStateUnknown, Err: err}
	}
	if detached {
		return nil, r.fail(ctx, StepStart, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed,
			"HEAD is detached; check out the branch to release from", nil))
	}
	original := current.Name
	if original == r.branch {
		return nil, r.fail(ctx, StepStart, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed,
			fmt.Sprintf("already on release branch %s; release from %s or a feature branch", r.branch, cfg.MainBranch), nil))
	}
	if opts.Push {
		ok, err := repo.RemoteExists(ctx, cfg.Remote)
		if err != nil {
			return nil, r.fail(ctx, StepStart, err)
		}
		if !ok {
			return nil, r.fail(ctx, StepStart, runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed,
				fmt.Sprintf("remote %q is not configured", cfg.Remote), nil))
		}
	}

	result := &Result{
		Version:        r.version,
		Tag:            r.tag,
		Branch:         r.branch,
		OriginalBranch: original,
	}

	clean, err := repo.IsClean(ctx)
	if err != nil {
		return nil, r.fail(ctx, StepWorkingTree, err)
	}

	if opts.DryRun {
		result.DryRun = true
		result.Planned = r.plan(original, clean, opts)
		return result, nil
	}

	m.state = State{Version: r.version}

	// S1: never switch branches with uncommitted work
	if !clean {
		if err := repo.Add(ctx); err != nil {
			return nil, r.fail(ctx, StepWorkingTree, err)
		}
		hash, err := repo.Commit(ctx, git.CommitOptions{Message: WIPCommitMessage})
		if err != nil {
			return nil, r.fail(ctx, StepWorkingTree, err)
		}
		result.WIPCommit = hash
		m.splog.Info("Committed work in progress on %s", original)
	}

	// S2
	if original != cfg.MainBranch {
		if err := repo.Checkout(ctx, cfg.MainBranch); err != nil {
			return nil, r.fail(ctx, StepCheckoutMain, err)
		}
	}

	// S3: release branches are never merged back
	if original != cfg.MainBranch && !cfg.IsReleaseBranch(original) {
		outcome, err := repo.Merge(ctx, original)
		if err != nil {
			if outcome.Kind == git.Conflict || errors.Is(err, runwayerrors.ErrMergeConflict) {
				if abortErr := repo.AbortMerge(ctx); abortErr != nil {
					m.splog.Warn("Failed to abort merge: %v", abortErr)
				}
			}
			return nil, r.fail(ctx, StepMerge, fmt.Errorf("failed to merge %s into %s: %w", original, cfg.MainBranch, err))
		}
		result.Merged = &outcome
		m.splog.Debug("Merged %s into %s (%s)", original, cfg.MainBranch, outcome.Kind)
	}

	// S4
	if err := m.cleanupBranch(ctx, r.version); err != nil {
		return nil, r.fail(ctx, StepCreateBranch, err)
	}
	if err := m.cleanupTag(ctx, r.version); err != nil {
		return nil, r.fail(ctx, StepCreateBranch, err)
	}
	if err := repo.CreateBranch(ctx, r.branch, true); err != nil {
		return nil, r.fail(ctx, StepCreateBranch, err)
	}
	m.state.Branch = r.branch

	// S5
	if opts.Stager != nil {
		staged, err := opts.Stager.Stage(ctx, r.version)
		if err != nil {
			return nil, r.fail(ctx, StepStage, err)
		}
		result.Staged = staged
		m.splog.Debug("Staged %d file(s) for %s", len(staged), r.tag)
	}
	commit, err := r.commit(ctx)
	if err != nil {
		r.unstage(ctx, opts)
		return nil, r.fail(ctx, StepCommit, err)
	}
	m.state.Commit = commit
	result.Commit = commit

	// S6
	err = repo.CreateTag(ctx, git.TagOptions{
		Name:      r.tag,
		Message:   cfg.TagMessage(r.version),
		Annotated: cfg.AnnotatedTags,
	})
	if err != nil {
		return nil, r.fail(ctx, StepTag, err)
	}
	m.state.Tag = r.tag

	// S7
	if opts.Push {
		info, err := r.push(ctx)
		if err != nil {
			return nil, r.fail(ctx, StepPush, err)
		}
		result.Push = info
	}

	// S8
	if opts.StayOnRelease {
		m.splog.Debug("Staying on %s until the release finishes", r.branch)
	} else if err := repo.Checkout(ctx, cfg.MainBranch); err != nil {
		return nil, r.fail(ctx, StepReturn, err)
	}

	m.splog.Debug("Released %s at %s", r.tag, commit)
	return result, nil
}

func (r *run) commit(ctx context.Context) (string, error) {
	repo := r.m.repo
	if err := repo.Add(ctx); err != nil {
		return "", err
	}
	nothingStaged, err := repo.IsClean(ctx)
	if err != nil {
		return "", err
	}
	return repo.Commit(ctx, git.CommitOptions{
		Message:    r.m.cfg.CommitMessage(r.version),
		AllowEmpty: nothingStaged,
	})
}

// unstage drops staged release changes so they cannot follow the checkout
// back to main. The tree held nothing else: S1 committed any user work.
func (r *run) unstage(ctx context.Context, opts Options) {
	if opts.Stager == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.m.repo.Reset(ctx, "HEAD", git.ResetMixed); err != nil {
		r.m.splog.Warn("Failed to unstage release changes: %v", err)
	}
	if err := opts.Stager.Restore(); err != nil {
		r.m.splog.Warn("Failed to restore release changes: %v", err)
	}
}

// plan lists the mutations a release would perform
func (r *run) plan(original string, clean bool, opts Options) []string {
	cfg := r.m.cfg
	var steps []string
	if !clean {
		steps = append(steps, fmt.Sprintf("commit work in progress on %s (%q)", original, WIPCommitMessage))
	}
	if original != cfg.MainBranch {
		steps = append(steps, "checkout "+cfg.MainBranch)
		if !cfg.IsReleaseBranch(original) {
			steps = append(steps, fmt.Sprintf("merge %s into %s", original, cfg.MainBranch))
		}
	}
	steps = append(steps,
		fmt.Sprintf("remove existing %s branch and tag if present", r.branch),
		"create branch "+r.branch,
	)
	if opts.Stager != nil {
		steps = append(steps, "set manifest versions to "+r.version)
	}
	steps = append(steps,
		fmt.Sprintf("commit %q", cfg.CommitMessage(r.version)),
		fmt.Sprintf("tag %s (%q)", r.tag, cfg.TagMessage(r.version)),
	)
	if opts.Push {
		steps = append(steps, fmt.Sprintf("push refs/heads/%s with tags to %s", r.branch, cfg.Remote))
	}
	if opts.StayOnRelease {
		steps = append(steps, fmt.Sprintf("stay on %s until packaging finishes, then checkout %s", r.branch, cfg.MainBranch))
	} else {
		steps = append(steps, "checkout "+cfg.MainBranch)
	}
	return steps
}

// safeReturnToMain checks out main without touching history or the working
// tree and returns the recovery outcome phrase.
func (m *Manager) safeReturnToMain(ctx context.Context) string {
	// Cleanup must run even when the release context was canceled
	ctx = context.WithoutCancel(ctx)
	if err := m.repo.Checkout(ctx, m.cfg.MainBranch); err == nil {
		return runwayerrors.RecoveryReturnedToMain
	}
	current, err := m.repo.CurrentBranch(ctx)
	if err != nil || current.Name == "" {
		return runwayerrors.RecoveryStateUnknown
	}
	return runwayerrors.RecoveryStuckOn(current.Name)
}
