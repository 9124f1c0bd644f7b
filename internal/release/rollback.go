package release

import (
	"context"
	"fmt"
	"time"

	runwayerrors "runway.dev/runway/internal/errors"
)

// Rollback undoes the recorded release: remote tag, local tag, remote
// branch, then a checkout of main and removal of the local release branch.
// History is never reset. Warnings are collected instead of aborting; only a
// failed local tag deletion marks the rollback unsuccessful.
func (m *Manager) Rollback(ctx context.Context) (*RollbackResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsZero() {
		return nil, runwayerrors.ErrNoReleaseState
	}

	start := time.Now()
	st := m.state
	remote := m.cfg.Remote
	res := &RollbackResult{Success: true}

	if st.TagsPushed && st.Tag != "" {
		if err := m.repo.DeleteRemoteTag(ctx, remote, st.Tag); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("failed to delete remote tag %s: %v", st.Tag, err))
		} else {
			res.Operations = append(res.Operations, fmt.Sprintf("Deleted remote tag %s from %s", st.Tag, remote))
		}
	}

	if st.Tag != "" {
		if err := m.repo.DeleteTag(ctx, st.Tag); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("failed to delete local tag %s: %v", st.Tag, err))
			res.Success = false
		} else {
			res.Operations = append(res.Operations, "Deleted local tag "+st.Tag)
		}
	}

	if st.BranchPushed && st.Branch != "" {
		if err := m.repo.DeleteRemoteBranch(ctx, remote, st.Branch); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("failed to delete remote branch %s: %v", st.Branch, err))
		} else {
			res.Operations = append(res.Operations, fmt.Sprintf("Deleted remote branch %s from %s", st.Branch, remote))
		}
	}

	if err := m.repo.Checkout(ctx, m.cfg.MainBranch); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("failed to checkout %s: %v", m.cfg.MainBranch, err))
		res.Success = false
	} else {
		res.Operations = append(res.Operations, "Checked out "+m.cfg.MainBranch)
		if st.Branch != "" {
			if err := m.repo.DeleteBranch(ctx, st.Branch, true); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("failed to delete local branch %s: %v", st.Branch, err))
			} else {
				res.Operations = append(res.Operations, "Deleted local branch "+st.Branch)
			}
		}
	}

	m.state = State{}
	res.Duration = time.Since(start)
	return res, nil
}

// CleanupExistingTag removes local and remote copies of the release tag for
// version. It succeeds when neither exists.
func (m *Manager) CleanupExistingTag(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := NormalizeVersion(version)
	if err != nil {
		return err
	}
	return m.cleanupTag(ctx, v)
}

// CleanupExistingBranch removes local and remote copies of the release branch
// for version. It succeeds when neither exists. If the branch is checked out,
// main is checked out first.
func (m *Manager) CleanupExistingBranch(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := NormalizeVersion(version)
	if err != nil {
		return err
	}
	return m.cleanupBranch(ctx, v)
}

func (m *Manager) cleanupTag(ctx context.Context, version string) error {
	tag := m.cfg.TagName(version)

	exists, err := m.repo.TagExists(ctx, tag)
	if err != nil {
		return err
	}
	if exists {
		if err := m.repo.DeleteTag(ctx, tag); err != nil {
			return err
		}
		m.splog.Info("Deleted existing local tag %s", tag)
	}

	if !m.remoteConfigured(ctx) {
		return nil
	}
	remoteExists, err := m.repo.RemoteTagExists(ctx, m.cfg.Remote, tag)
	if err != nil {
		m.splog.Warn("Could not check %s for tag %s: %v", m.cfg.Remote, tag, err)
		return nil
	}
	if remoteExists {
		if err := m.repo.DeleteRemoteTag(ctx, m.cfg.Remote, tag); err != nil {
			return err
		}
		m.splog.Info("Deleted existing remote tag %s from %s", tag, m.cfg.Remote)
	}
	return nil
}

func (m *Manager) cleanupBranch(ctx context.Context, version string) error {
	branch := m.cfg.BranchName(version)

	exists, err := m.repo.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		current, err := m.repo.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if current.Name == branch {
			if err := m.repo.Checkout(ctx, m.cfg.MainBranch); err != nil {
				return err
			}
		}
		if err := m.repo.DeleteBranch(ctx, branch, true); err != nil {
			return err
		}
		m.splog.Info("Deleted existing local branch %s", branch)
	}

	if !m.remoteConfigured(ctx) {
		return nil
	}
	remoteExists, err := m.repo.RemoteBranchExists(ctx, m.cfg.Remote, branch)
	if err != nil {
		m.splog.Warn("Could not check %s for branch %s: %v", m.cfg.Remote, branch, err)
		return nil
	}
	if remoteExists {
		if err := m.repo.DeleteRemoteBranch(ctx, m.cfg.Remote, branch); err != nil {
			return err
		}
		m.splog.Info("Deleted existing remote branch %s from %s", branch, m.cfg.Remote)
	}
	return nil
}

func (m *Manager) remoteConfigured(ctx context.Context) bool {
	ok, err := m.repo.RemoteExists(ctx, m.cfg.Remote)
	return err == nil && ok
}
