package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/git"
)

// StubCall records a single Repo method invocation
type StubCall struct {
	Method string
	Args   []string
}

func (c StubCall) String() string {
	if len(c.Args) == 0 {
		return c.Method
	}
	return c.Method + " " + strings.Join(c.Args, " ")
}

// StubRepo is an in-memory git.Repo that records every call.
//
// Set Hook to inject failures: it runs before each call and a non-nil error
// is returned from the method without changing state.
type StubRepo struct {
	mu sync.Mutex

	Dir            string
	Branch         string
	Detached       bool
	Dirty          bool
	Branches       map[string]string
	Tags           map[string]string
	RemoteList     []git.Remote
	RemoteBranches map[string]bool
	RemoteTags     map[string]bool
	// MergeOutcomes overrides the result of merging a target
	MergeOutcomes map[string]git.MergeOutcome
	Hook          func(call StubCall) error

	Calls   []StubCall
	log     []git.CommitInfo
	nextSeq int
}

var _ git.Repo = (*StubRepo)(nil)

// NewStubRepo returns a clean repository on main with one commit and an origin remote
func NewStubRepo() *StubRepo {
	s := &StubRepo{
		Dir:            "/stub",
		Branch:         "main",
		Branches:       map[string]string{},
		Tags:           map[string]string{},
		RemoteList:     []git.Remote{{Name: "origin", URL: "git@example.com:acme/stub.git"}},
		RemoteBranches: map[string]bool{},
		RemoteTags:     map[string]bool{},
		MergeOutcomes:  map[string]git.MergeOutcome{},
	}
	s.Branches["main"] = s.newCommit("initial")
	return s
}

func (s *StubRepo) newCommit(subject string) string {
	s.nextSeq++
	hash := fmt.Sprintf("%040d", s.nextSeq)
	s.log = append(s.log, git.CommitInfo{Hash: hash, Subject: subject, Author: "Test User", When: time.Unix(int64(s.nextSeq), 0)})
	return hash
}

func (s *StubRepo) record(method string, args ...string) error {
	call := StubCall{Method: method, Args: args}
	s.Calls = append(s.Calls, call)
	if s.Hook != nil {
		return s.Hook(call)
	}
	return nil
}

// CallStrings returns every recorded call formatted as "Method arg..."
func (s *StubRepo) CallStrings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.String()
	}
	return out
}

// Mutations returns recorded calls that change repository state, in order
func (s *StubRepo) Mutations() []string {
	readOnly := map[string]bool{
		"IsClean": true, "CurrentBranch": true, "IsDetached": true, "RecentCommits": true,
		"Remotes": true, "RemoteExists": true, "TagExists": true, "BranchExists": true,
		"RemoteBranchExists": true, "RemoteTagExists": true, "ListTags": true, "ListBranches": true,
	}
	var out []string
	for _, c := range s.CallStrings() {
		if !readOnly[strings.SplitN(c, " ", 2)[0]] {
			out = append(out, c)
		}
	}
	return out
}

func (s *StubRepo) head() string {
	return s.Branches[s.Branch]
}

func (s *StubRepo) Root() string { return s.Dir }

func (s *StubRepo) IsClean(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("IsClean"); err != nil {
		return false, err
	}
	return !s.Dirty, nil
}

func (s *StubRepo) CurrentBranch(context.Context) (git.BranchInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CurrentBranch"); err != nil {
		return git.BranchInfo{}, err
	}
	if s.Detached {
		return git.BranchInfo{Name: "HEAD", Head: s.head()}, nil
	}
	return git.BranchInfo{Name: s.Branch, Head: s.head()}, nil
}

func (s *StubRepo) IsDetached(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("IsDetached"); err != nil {
		return false, err
	}
	return s.Detached, nil
}

func (s *StubRepo) RecentCommits(_ context.Context, n int) ([]git.CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("RecentCommits", fmt.Sprint(n)); err != nil {
		return nil, err
	}
	var out []git.CommitInfo
	for i := len(s.log) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.log[i])
	}
	return out, nil
}

func (s *StubRepo) Remotes(context.Context) ([]git.Remote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Remotes"); err != nil {
		return nil, err
	}
	return append([]git.Remote(nil), s.RemoteList...), nil
}

func (s *StubRepo) RemoteExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("RemoteExists", name); err != nil {
		return false, err
	}
	for _, r := range s.RemoteList {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *StubRepo) TagExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("TagExists", name); err != nil {
		return false, err
	}
	_, ok := s.Tags[name]
	return ok, nil
}

func (s *StubRepo) BranchExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("BranchExists", name); err != nil {
		return false, err
	}
	_, ok := s.Branches[name]
	return ok, nil
}

func (s *StubRepo) RemoteBranchExists(_ context.Context, remote, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("RemoteBranchExists", remote, name); err != nil {
		return false, err
	}
	return s.RemoteBranches[remote+"/"+name], nil
}

func (s *StubRepo) RemoteTagExists(_ context.Context, remote, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("RemoteTagExists", remote, name); err != nil {
		return false, err
	}
	return s.RemoteTags[remote+"/"+name], nil
}

func (s *StubRepo) ListTags(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListTags"); err != nil {
		return nil, err
	}
	return sortedKeys(s.Tags), nil
}

func (s *StubRepo) ListBranches(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ListBranches"); err != nil {
		return nil, err
	}
	return sortedKeys(s.Branches), nil
}

func (s *StubRepo) Add(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Add", paths...)
}

func (s *StubRepo) Commit(_ context.Context, opts git.CommitOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Commit", opts.Message); err != nil {
		return "", err
	}
	hash := s.newCommit(opts.Message)
	s.Branches[s.Branch] = hash
	s.Dirty = false
	return hash, nil
}

func (s *StubRepo) CreateTag(_ context.Context, opts git.TagOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateTag", opts.Name); err != nil {
		return err
	}
	if _, ok := s.Tags[opts.Name]; ok && !opts.Force {
		return runwayerrors.NewGitError(runwayerrors.GitTagExists, opts.Name, nil)
	}
	s.Tags[opts.Name] = s.head()
	return nil
}

func (s *StubRepo) Checkout(_ context.Context, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Checkout", branch); err != nil {
		return err
	}
	if _, ok := s.Branches[branch]; !ok {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "checkout "+branch, fmt.Errorf("pathspec '%s' did not match", branch))
	}
	s.Branch = branch
	s.Detached = false
	return nil
}

func (s *StubRepo) CreateBranch(_ context.Context, name string, checkout bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateBranch", name); err != nil {
		return err
	}
	if _, ok := s.Branches[name]; ok {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "create branch "+name, fmt.Errorf("already exists"))
	}
	s.Branches[name] = s.head()
	if checkout {
		s.Branch = name
	}
	return nil
}

// Merge returns the configured outcome for target. Remote-tracking targets
// ("origin/x") that were never pushed report ErrRemoteBranchNotFound.
func (s *StubRepo) Merge(_ context.Context, target string) (git.MergeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("Merge", target); err != nil {
		return git.MergeOutcome{}, err
	}
	if outcome, ok := s.MergeOutcomes[target]; ok {
		switch outcome.Kind {
		case git.Conflict:
			return outcome, runwayerrors.NewGitError(runwayerrors.GitMergeConflict, "merging "+target, nil)
		case git.FastForward, git.MergeCommit:
			hash := s.newCommit("Merge " + target)
			s.Branches[s.Branch] = hash
			outcome.Commit = hash
		}
		return outcome, nil
	}
	if remote, branch, ok := strings.Cut(target, "/"); ok && s.isRemote(remote) {
		if !s.RemoteBranches[remote+"/"+branch] {
			return git.MergeOutcome{}, fmt.Errorf("%w: %s", runwayerrors.ErrRemoteBranchNotFound, target)
		}
		return git.MergeOutcome{Kind: git.AlreadyUpToDate}, nil
	}
	if _, ok := s.Branches[target]; !ok {
		return git.MergeOutcome{}, fmt.Errorf("%w: %s", runwayerrors.ErrRemoteBranchNotFound, target)
	}
	if s.Branches[target] == s.head() {
		return git.MergeOutcome{Kind: git.AlreadyUpToDate}, nil
	}
	hash := s.newCommit("Merge branch '" + target + "'")
	s.Branches[s.Branch] = hash
	return git.MergeOutcome{Kind: git.MergeCommit, Commit: hash}, nil
}

func (s *StubRepo) isRemote(name string) bool {
	for _, r := range s.RemoteList {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (s *StubRepo) AbortMerge(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("AbortMerge")
}

func (s *StubRepo) Fetch(_ context.Context, remote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Fetch", remote)
}

func (s *StubRepo) Push(_ context.Context, opts git.PushOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	args := append([]string{opts.Remote}, opts.Refspecs...)
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Force {
		args = append(args, "--force")
	}
	if err := s.record("Push", args...); err != nil {
		return err
	}
	for _, ref := range opts.Refspecs {
		s.RemoteBranches[opts.Remote+"/"+strings.TrimPrefix(ref, "refs/heads/")] = true
	}
	if opts.Tags {
		for tag := range s.Tags {
			s.RemoteTags[opts.Remote+"/"+tag] = true
		}
	}
	return nil
}

func (s *StubRepo) Reset(_ context.Context, target string, mode git.ResetMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Reset", target, fmt.Sprint(mode))
}

func (s *StubRepo) DeleteTag(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteTag", name); err != nil {
		return err
	}
	if _, ok := s.Tags[name]; !ok {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "delete tag "+name, fmt.Errorf("tag '%s' not found", name))
	}
	delete(s.Tags, name)
	return nil
}

func (s *StubRepo) DeleteRemoteTag(_ context.Context, remote, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteRemoteTag", remote, name); err != nil {
		return err
	}
	if !s.RemoteTags[remote+"/"+name] {
		return runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "delete remote tag "+name, fmt.Errorf("remote ref does not exist"))
	}
	delete(s.RemoteTags, remote+"/"+name)
	return nil
}

func (s *StubRepo) DeleteBranch(_ context.Context, name string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteBranch", name); err != nil {
		return err
	}
	if name == s.Branch {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "delete branch "+name, fmt.Errorf("cannot delete the checked out branch"))
	}
	if _, ok := s.Branches[name]; !ok {
		return runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "delete branch "+name, fmt.Errorf("branch not found"))
	}
	delete(s.Branches, name)
	return nil
}

func (s *StubRepo) DeleteRemoteBranch(_ context.Context, remote, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteRemoteBranch", remote, name); err != nil {
		return err
	}
	if !s.RemoteBranches[remote+"/"+name] {
		return runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "delete remote branch "+name, fmt.Errorf("remote ref does not exist"))
	}
	delete(s.RemoteBranches, remote+"/"+name)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
