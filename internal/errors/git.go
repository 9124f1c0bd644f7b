package errors

import (
	"errors"
	"fmt"
)

// GitKind subdivides git failures
type GitKind int

const (
	GitNotRepository GitKind = iota + 1
	GitDirtyWorkingDirectory
	GitCommitFailed
	GitTagExists
	GitPushFailed
	GitBranchOperationFailed
	GitRemoteOperationFailed
	GitMergeConflict
	GitTagFailed
)

func (k GitKind) String() string {
	switch k {
	case GitNotRepository:
		return "not a repository"
	case GitDirtyWorkingDirectory:
		return "dirty working directory"
	case GitCommitFailed:
		return "commit failed"
	case GitTagExists:
		return "tag exists"
	case GitPushFailed:
		return "push failed"
	case GitBranchOperationFailed:
		return "branch operation failed"
	case GitRemoteOperationFailed:
		return "remote operation failed"
	case GitMergeConflict:
		return "merge conflict"
	case GitTagFailed:
		return "tag operation failed"
	default:
		return "git failure"
	}
}

// Sentinel errors for git sub-kinds
var (
	ErrNotRepository         = errors.New("not a git repository")
	ErrDirtyWorkingDirectory = errors.New("working directory has uncommitted changes")
	ErrCommitFailed          = errors.New("commit failed")
	ErrTagExists             = errors.New("tag already exists")
	ErrPushFailed            = errors.New("push failed")
	ErrBranchOperationFailed = errors.New("branch operation failed")
	ErrRemoteOperationFailed = errors.New("remote operation failed")
	ErrMergeConflict         = errors.New("merge conflict")
	ErrTagFailed             = errors.New("tag operation failed")
	ErrRemoteBranchNotFound  = errors.New("remote branch not found")
)

func (k GitKind) sentinel() error {
	switch k {
	case GitNotRepository:
		return ErrNotRepository
	case GitDirtyWorkingDirectory:
		return ErrDirtyWorkingDirectory
	case GitCommitFailed:
		return ErrCommitFailed
	case GitTagExists:
		return ErrTagExists
	case GitPushFailed:
		return ErrPushFailed
	case GitBranchOperationFailed:
		return ErrBranchOperationFailed
	case GitRemoteOperationFailed:
		return ErrRemoteOperationFailed
	case GitMergeConflict:
		return ErrMergeConflict
	case GitTagFailed:
		return ErrTagFailed
	default:
		return ErrGit
	}
}

// GitError represents a failure in the git release flow.
// Recovery, when set, describes where HEAD was left after the failure.
type GitError struct {
	Kind     GitKind
	Reason   string
	Recovery string
	Err      error
}

func (e *GitError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Recovery != "" {
		msg = fmt.Sprintf("%s (recovery: %s)", msg, e.Recovery)
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// Is returns true for ErrGit and the sentinel of the sub-kind
func (e *GitError) Is(target error) bool {
	return target == ErrGit || target == e.Kind.sentinel()
}

// NewGitError creates a new GitError
func NewGitError(kind GitKind, reason string, err error) *GitError {
	return &GitError{Kind: kind, Reason: reason, Err: err}
}
