package release

import (
	"fmt"
	"strings"
	"time"

	"runway.dev/runway/internal/git"
)

// State tracks what the current release has created so it can be rolled back.
// Fields only move forward during a release; the whole value is cleared on
// Commit or Rollback.
type State struct {
	Version       string `json:"version,omitempty"`
	Commit        string `json:"commit,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Branch        string `json:"branch,omitempty"`
	CommitsPushed bool   `json:"commits_pushed"`
	TagsPushed    bool   `json:"tags_pushed"`
	BranchPushed  bool   `json:"branch_pushed"`
}

// IsZero reports whether nothing has been recorded
func (s State) IsZero() bool {
	return s == State{}
}

// PushInfo describes what a release pushed
type PushInfo struct {
	Remote        string
	Refspecs      []string
	CommitsPushed int
	TagsPushed    int
	// Integration is how the remote release branch was merged before pushing
	Integration git.MergeKind
	FirstPush   bool
	Warnings    []string
}

// Result is the outcome of a successful release
type Result struct {
	Version        string
	Commit         string
	Tag            string
	Branch         string
	OriginalBranch string
	// WIPCommit is set when uncommitted changes were auto-committed
	WIPCommit string
	// Staged lists the files a Stager changed for the release commit
	Staged   []string
	Merged   *git.MergeOutcome
	Push     *PushInfo
	DryRun   bool
	Planned  []string
	Duration time.Duration
}

// RollbackResult lists what a rollback did
type RollbackResult struct {
	Success    bool
	Operations []string
	Warnings   []string
	Duration   time.Duration
}

// BackupPoint is a snapshot of the repository taken before a release
type BackupPoint struct {
	Branch        string           `json:"branch"`
	Head          string           `json:"head"`
	Timestamp     time.Time        `json:"timestamp"`
	RecentCommits []git.CommitInfo `json:"recent_commits"`
}

// Stats summarizes the repository
type Stats struct {
	Branch      string
	Head        string
	Clean       bool
	Detached    bool
	Ahead       int
	Behind      int
	BranchCount int
	TagCount    int
	RemoteCount int
}

// Step names a transition of the release state machine
type Step string

const (
	StepStart        Step = "start"
	StepWorkingTree  Step = "auto-commit work in progress"
	StepCheckoutMain Step = "checkout main"
	StepMerge        Step = "merge original branch"
	StepCreateBranch Step = "create release branch"
	StepStage        Step = "stage release changes"
	StepCommit       Step = "create release commit"
	StepTag          Step = "create release tag"
	StepPush         Step = "push release"
	StepReturn       Step = "return to main"
)

// ReleaseError is a failed release step together with where HEAD was left
type ReleaseError struct {
	Version  string
	Step     Step
	Recovery string
	Err      error
}

func (e *ReleaseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "release %s failed at step %q", e.Version, e.Step)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Recovery != "" {
		fmt.Fprintf(&b, "; recovery: %s", e.Recovery)
	}
	return b.String()
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// RecoveryStatus returns the recovery outcome phrase
func (e *ReleaseError) RecoveryStatus() string {
	return e.Recovery
}
