package release

import (
	"context"
	"errors"
	"fmt"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
)

// push integrates the remote release branch and pushes it with tags.
// A diverged remote that conflicts is never force-pushed.
func (r *run) push(ctx context.Context) (*PushInfo, error) {
	m := r.m
	repo := m.repo
	remote := m.cfg.Remote

	if err := repo.Fetch(ctx, remote); err != nil {
		return nil, err
	}

	info := &PushInfo{Remote: remote, CommitsPushed: 1}
	outcome, err := repo.Merge(ctx, remote+"/"+r.branch)
	switch {
	case err == nil:
		info.Integration = outcome.Kind
		if outcome.Kind == git.MergeCommit || outcome.Kind == git.FastForward {
			info.CommitsPushed++
			m.splog.Info("Integrated remote changes on %s (%s)", r.branch, outcome.Kind)
		}
	case errors.Is(err, runwayerrors.ErrRemoteBranchNotFound):
		info.FirstPush = true
		info.Integration = git.AlreadyUpToDate
	case outcome.Kind == git.Conflict || errors.Is(err, runwayerrors.ErrMergeConflict):
		if abortErr := repo.AbortMerge(ctx); abortErr != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to abort merge: %v", abortErr))
			m.splog.Warn("Failed to abort merge: %v", abortErr)
		}
		return nil, &runwayerrors.GitError{
			Kind: runwayerrors.GitMergeConflict,
			Reason: fmt.Sprintf("%s/%s has diverged and conflicts with the local release; resolve manually and push %s yourself (branch and tag %s were kept)",
				remote, r.branch, r.branch, r.tag),
			Err: err,
		}
	default:
		return nil, err
	}

	info.Refspecs = []string{"refs/heads/" + r.branch}
	if m.cfg.PushMain {
		info.Refspecs = append(info.Refspecs, "refs/heads/"+m.cfg.MainBranch)
	}
	err = repo.Push(ctx, git.PushOptions{
		Remote:   remote,
		Refspecs: info.Refspecs,
		Tags:     true,
		Timeout:  m.cfg.PushTimeout,
	})
	if err != nil {
		return nil, err
	}

	m.state.CommitsPushed = true
	m.state.TagsPushed = true
	m.state.BranchPushed = true
	info.TagsPushed = 1
	return info, nil
}
