package git

import (
	"context"
	"time"
)

// ResetMode selects how far a reset reaches
type ResetMode int

const (
	ResetSoft ResetMode = iota
	ResetMixed
	ResetHard
)

func (m ResetMode) flag() string {
	switch m {
	case ResetSoft:
		return "--soft"
	case ResetHard:
		return "--hard"
	default:
		return "--mixed"
	}
}

// MergeKind is the outcome of a merge
type MergeKind int

const (
	AlreadyUpToDate MergeKind = iota
	FastForward
	MergeCommit
	Conflict
)

func (k MergeKind) String() string {
	switch k {
	case AlreadyUpToDate:
		return "already up to date"
	case FastForward:
		return "fast-forward"
	case MergeCommit:
		return "merge commit"
	default:
		return "conflict"
	}
}

// MergeOutcome is the result of Merge. Commit is set for FastForward and MergeCommit.
type MergeOutcome struct {
	Kind   MergeKind
	Commit string
}

// BranchInfo describes the checked-out branch
type BranchInfo struct {
	Name     string
	Head     string
	Upstream string
	Ahead    int
	Behind   int
}

// CommitInfo is a one-line commit summary
type CommitInfo struct {
	Hash    string
	Subject string
	Author  string
	When    time.Time
}

// Remote is a configured remote
type Remote struct {
	Name string
	URL  string
}

// CommitOptions contains options for creating a commit
type CommitOptions struct {
	Message string
	Amend   bool
	// Author overrides the commit author ("Name <email>")
	Author     string
	AllowEmpty bool
}

// TagOptions contains options for creating a tag
type TagOptions struct {
	Name      string
	Message   string
	Annotated bool
	Force     bool
}

// PushOptions contains options for pushing
type PushOptions struct {
	Remote   string
	Refspecs []string
	Tags     bool
	Force    bool
	// Timeout bounds the whole push; zero means DefaultCommandTimeout
	Timeout time.Duration
}

// Repo is the verb surface the release flow needs from a repository.
// Implementations must be safe for sequential use by one release at a time.
type Repo interface {
	// Root returns the repository working directory
	Root() string

	IsClean(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (BranchInfo, error)
	IsDetached(ctx context.Context) (bool, error)
	RecentCommits(ctx context.Context, n int) ([]CommitInfo, error)
	Remotes(ctx context.Context) ([]Remote, error)
	RemoteExists(ctx context.Context, name string) (bool, error)
	TagExists(ctx context.Context, name string) (bool, error)
	BranchExists(ctx context.Context, name string) (bool, error)
	RemoteBranchExists(ctx context.Context, remote, name string) (bool, error)
	RemoteTagExists(ctx context.Context, remote, name string) (bool, error)
	ListTags(ctx context.Context) ([]string, error)
	ListBranches(ctx context.Context) ([]string, error)

	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, opts CommitOptions) (string, error)
	CreateTag(ctx context.Context, opts TagOptions) error
	Checkout(ctx context.Context, branch string) error
	CreateBranch(ctx context.Context, name string, checkout bool) error
	Merge(ctx context.Context, target string) (MergeOutcome, error)
	AbortMerge(ctx context.Context) error
	Fetch(ctx context.Context, remote string) error
	Push(ctx context.Context, opts PushOptions) error
	Reset(ctx context.Context, target string, mode ResetMode) error
	DeleteTag(ctx context.Context, name string) error
	DeleteRemoteTag(ctx context.Context, remote, name string) error
	DeleteBranch(ctx context.Context, name string, force bool) error
	DeleteRemoteBranch(ctx context.Context, remote, name string) error
}
