package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
)

// mergeStateFiles are left in the git dir by an interrupted merge
var mergeStateFiles = []string{"MERGE_HEAD", "MERGE_MSG", "MERGE_MODE"}

// Add stages the given paths, or every change when no path is given
func (r *CLIRepo) Add(ctx context.Context, paths ...string) error {
	args := []string{"add", "-A", "--"}
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if _, err := r.runner.Run(ctx, append(args, paths...)...); err != nil {
		return fmt.Errorf("failed to stage %v: %w", paths, err)
	}
	return nil
}

// Commit creates a commit and returns its hash
func (r *CLIRepo) Commit(ctx context.Context, opts CommitOptions) (string, error) {
	// The message goes through stdin so multi-line templates survive intact
	args := []string{"commit", "-F", "-"}
	if opts.Amend {
		args = append(args, "--amend")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if _, err := r.runner.RunWithInput(ctx, opts.Message, args...); err != nil {
		return "", runwayerrors.NewGitError(runwayerrors.GitCommitFailed, opts.Message, err)
	}
	return r.runner.Run(ctx, "rev-parse", "HEAD")
}

// CreateTag creates a tag at HEAD
func (r *CLIRepo) CreateTag(ctx context.Context, opts TagOptions) error {
	if !opts.Force {
		exists, err := r.TagExists(ctx, opts.Name)
		if err != nil {
			return err
		}
		if exists {
			return runwayerrors.NewGitError(runwayerrors.GitTagExists, opts.Name, nil)
		}
	}

	args := []string{"tag"}
	input := ""
	if opts.Annotated {
		args = append(args, "-a", opts.Name, "-F", "-")
		input = opts.Message
	} else {
		args = append(args, opts.Name)
	}
	if opts.Force {
		args = append(args, "-f")
	}
	if _, err := r.runner.RunWithInput(ctx, input, args...); err != nil {
		// Only a tag that appeared meanwhile is reported as existing
		if !opts.Force {
			if exists, _ := r.TagExists(ctx, opts.Name); exists {
				return runwayerrors.NewGitError(runwayerrors.GitTagExists, opts.Name, err)
			}
		}
		return runwayerrors.NewGitError(runwayerrors.GitTagFailed, "create tag "+opts.Name, err)
	}
	return nil
}

// Checkout switches to an existing branch
func (r *CLIRepo) Checkout(ctx context.Context, branch string) error {
	if _, err := r.runner.Run(ctx, "checkout", branch); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "checkout "+branch, err)
	}
	return nil
}

// CreateBranch creates a branch at HEAD and optionally checks it out
func (r *CLIRepo) CreateBranch(ctx context.Context, name string, checkout bool) error {
	args := []string{"branch", name}
	if checkout {
		args = []string{"checkout", "-b", name}
	}
	if _, err := r.runner.Run(ctx, args...); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "create branch "+name, err)
	}
	return nil
}

// Merge merges target into the current branch.
// A missing target returns ErrRemoteBranchNotFound; conflicts return the
// Conflict outcome together with a MergeConflict error and leave the merge in
// progress for AbortMerge.
func (r *CLIRepo) Merge(ctx context.Context, target string) (MergeOutcome, error) {
	before, err := r.runner.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return MergeOutcome{}, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "failed to resolve HEAD", err)
	}

	out, err := r.untranslated.Run(ctx, "merge", "--no-edit", target)
	if err != nil {
		var cmdErr *runwayerrors.GitCommandError
		if errors.As(err, &cmdErr) {
			combined := cmdErr.Stdout + cmdErr.Stderr
			switch {
			case strings.Contains(combined, "not something we can merge"):
				return MergeOutcome{}, fmt.Errorf("%w: %s", runwayerrors.ErrRemoteBranchNotFound, target)
			case strings.Contains(combined, "CONFLICT") || r.mergeInProgress(ctx):
				return MergeOutcome{Kind: Conflict}, runwayerrors.NewGitError(runwayerrors.GitMergeConflict, "merging "+target, err)
			}
		}
		return MergeOutcome{}, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "merge "+target, err)
	}

	after, err := r.runner.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return MergeOutcome{}, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "failed to resolve HEAD", err)
	}
	if after == before || strings.Contains(out, "Already up to date") {
		return MergeOutcome{Kind: AlreadyUpToDate}, nil
	}

	parents, err := r.runner.Run(ctx, "rev-list", "--parents", "-n", "1", "HEAD")
	if err == nil && len(strings.Fields(parents)) > 2 {
		return MergeOutcome{Kind: MergeCommit, Commit: after}, nil
	}
	return MergeOutcome{Kind: FastForward, Commit: after}, nil
}

// AbortMerge hard-resets to HEAD and removes any merge state files
func (r *CLIRepo) AbortMerge(ctx context.Context) error {
	if err := r.Reset(ctx, "HEAD", ResetHard); err != nil {
		return err
	}
	gitDir, err := r.gitDir(ctx)
	if err != nil {
		return err
	}
	for _, name := range mergeStateFiles {
		if err := os.Remove(filepath.Join(gitDir, name)); err != nil && !os.IsNotExist(err) {
			return runwayerrors.NewWithPath(runwayerrors.KindIO, "remove merge state", filepath.Join(gitDir, name), err)
		}
	}
	return nil
}

func (r *CLIRepo) mergeInProgress(ctx context.Context) bool {
	gitDir, err := r.gitDir(ctx)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return err == nil
}

func (r *CLIRepo) gitDir(ctx context.Context) (string, error) {
	dir, err := r.runner.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("failed to locate git dir: %w", err)
	}
	return dir, nil
}

// Fetch fetches branches and tags from a remote
func (r *CLIRepo) Fetch(ctx context.Context, remote string) error {
	if _, err := r.runner.Run(ctx, "fetch", "--tags", remote); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "fetch "+remote, err)
	}
	return nil
}

// Push pushes refspecs to a remote, bounded by opts.Timeout when set
func (r *CLIRepo) Push(ctx context.Context, opts PushOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"push"}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, opts.Remote)
	args = append(args, opts.Refspecs...)

	if _, err := r.runner.Run(ctx, args...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return runwayerrors.NewGitError(runwayerrors.GitPushFailed, fmt.Sprintf("push to %s timed out", opts.Remote), err)
		}
		return runwayerrors.NewGitError(runwayerrors.GitPushFailed, "push to "+opts.Remote, err)
	}
	return nil
}

// Reset moves HEAD to target with the given mode
func (r *CLIRepo) Reset(ctx context.Context, target string, mode ResetMode) error {
	if _, err := r.runner.Run(ctx, "reset", mode.flag(), target); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "reset "+target, err)
	}
	return nil
}

// DeleteTag deletes a local tag
func (r *CLIRepo) DeleteTag(ctx context.Context, name string) error {
	if _, err := r.runner.Run(ctx, "tag", "-d", name); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitTagFailed, "delete tag "+name, err)
	}
	return nil
}

// DeleteRemoteTag deletes a tag from a remote
func (r *CLIRepo) DeleteRemoteTag(ctx context.Context, remote, name string) error {
	if _, err := r.runner.Run(ctx, "push", remote, ":refs/tags/"+name); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "delete remote tag "+name, err)
	}
	return nil
}

// DeleteBranch deletes a local branch
func (r *CLIRepo) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := r.runner.Run(ctx, "branch", flag, name); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "delete branch "+name, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch from a remote
func (r *CLIRepo) DeleteRemoteBranch(ctx context.Context, remote, name string) error {
	if _, err := r.runner.Run(ctx, "push", remote, "--delete", "refs/heads/"+name); err != nil {
		return runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "delete remote branch "+name, err)
	}
	return nil
}
