package errors

import "errors"

// RecoverySuggestions returns user-facing hints for the given error.
// Returns nil when the error kind has nothing actionable to suggest.
func RecoverySuggestions(err error) []string {
	if err == nil {
		return nil
	}
	return appendRecoveryState(suggestionsFor(err), err)
}

func suggestionsFor(err error) []string {
	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitSuggestions(gitErr)
	}

	var toolErr *ToolNotFoundError
	if errors.As(err, &toolErr) {
		s := []string{"Install " + toolErr.Tool + " and make sure it is on PATH"}
		if toolErr.Remediation != "" {
			s = append(s, toolErr.Remediation)
		}
		return s
	}

	switch {
	case errors.Is(err, ErrDaemonUnavailable):
		return []string{
			"Start the Docker daemon (or Docker Desktop) and retry",
			"Run 'docker info' to confirm the daemon is reachable",
		}
	case errors.Is(err, ErrImageBuild):
		return []string{
			"Check .devcontainer/Dockerfile builds with 'docker build .devcontainer'",
			"Free disk space with 'docker system prune' if the build ran out of space",
		}
	case errors.Is(err, ErrCycle):
		return []string{
			"Break the cycle by removing one of the path dependencies listed above",
			"Run 'runway plan' to inspect the internal dependency graph",
		}
	case errors.Is(err, ErrDuplicatePackage):
		return []string{"Rename one of the packages so every workspace member has a unique name"}
	case errors.Is(err, ErrNoReleaseState):
		return []string{"Nothing to roll back; run 'runway status' to inspect the last release"}
	}

	switch KindOf(err) {
	case KindCLI:
		return []string{"Run 'runway --help' for usage"}
	case KindWorkspace:
		return []string{
			"Check that Cargo.toml is valid TOML",
			"Check that every workspace member path exists",
		}
	case KindIO:
		return []string{"Check file permissions and available disk space"}
	case KindContainer:
		return []string{"Run 'docker ps -a' to look for leftover runway-bundle containers"}
	}
	return nil
}

func gitSuggestions(e *GitError) []string {
	var s []string
	switch e.Kind {
	case GitNotRepository:
		s = []string{"Run runway from inside a git repository", "Initialize one with 'git init'"}
	case GitDirtyWorkingDirectory:
		s = []string{"Commit or stash your changes", "Run 'git status' to see what changed"}
	case GitTagExists:
		s = []string{"Delete the tag with 'git tag -d <tag>' or run 'runway cleanup <version>'"}
	case GitPushFailed:
		s = []string{
			"Check network connectivity and remote permissions",
			"Run 'runway rollback' to undo the local release",
		}
	case GitMergeConflict:
		s = []string{
			"Resolve the conflicts manually, then push the release branch yourself",
			"Never force-push a release branch",
		}
	case GitRemoteOperationFailed:
		s = []string{"Check 'git remote -v' and your credentials"}
	case GitBranchOperationFailed, GitCommitFailed:
		s = []string{"Run 'git status' to inspect the repository"}
	}
	return s
}

// RecoveryReporter is implemented by errors that know where a failed
// operation left the repository.
type RecoveryReporter interface {
	RecoveryStatus() string
}

// RecoveryStatus implements RecoveryReporter
func (e *GitError) RecoveryStatus() string {
	return e.Recovery
}

func appendRecoveryState(s []string, err error) []string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		r, ok := e.(RecoveryReporter)
		if !ok {
			continue
		}
		status := r.RecoveryStatus()
		if status == "" {
			continue
		}
		if status != RecoveryReturnedToMain {
			s = append(s, "Repository state: "+status)
		}
		return s
	}
	return s
}

// Recovery outcome phrases attached to release-flow failures
const (
	RecoveryReturnedToMain = "successfully returned to main"
	RecoveryStateUnknown   = "state unknown — run git status"
)

// RecoveryStuckOn returns the recovery phrase for a failed checkout of main
func RecoveryStuckOn(branch string) string {
	return "failed, currently on branch " + branch + " — manual git checkout main required"
}
