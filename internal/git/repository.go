package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	runwayerrors "runway.dev/runway/internal/errors"
)

// CLIRepo implements Repo over go-git for reads and the git binary for writes
type CLIRepo struct {
	repo   *gogit.Repository
	root   string
	runner *CommandRunner
	// untranslated runs commands whose human-readable output is parsed
	untranslated *CommandRunner
}

var _ Repo = (*CLIRepo)(nil)

// Open opens the repository containing path
func Open(path string) (*CLIRepo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, runwayerrors.NewGitError(runwayerrors.GitNotRepository, absPath, err)
	}

	root := absPath
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}

	runner := NewCommandRunner(root)
	return &CLIRepo{
		repo:         repo,
		root:         root,
		runner:       runner,
		untranslated: runner.WithEnv("LC_ALL=C"),
	}, nil
}

// Root returns the repository working directory
func (r *CLIRepo) Root() string {
	return r.root
}

// IsClean reports whether the working tree has no staged, unstaged or untracked changes
func (r *CLIRepo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.runner.Run(ctx, "status", "--porcelain", "--untracked-files=normal")
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	return out == "", nil
}

// CurrentBranch returns the checked-out branch with its upstream divergence
func (r *CLIRepo) CurrentBranch(ctx context.Context) (BranchInfo, error) {
	head, err := r.repo.Head()
	if err != nil {
		return BranchInfo{}, runwayerrors.NewGitError(runwayerrors.GitBranchOperationFailed, "failed to resolve HEAD", err)
	}

	info := BranchInfo{Head: head.Hash().String()}
	if !head.Name().IsBranch() {
		info.Name = "HEAD"
		return info, nil
	}
	info.Name = head.Name().Short()

	if cfg, err := r.repo.Branch(info.Name); err == nil && cfg.Remote != "" && cfg.Merge != "" {
		info.Upstream = cfg.Remote + "/" + cfg.Merge.Short()
		out, err := r.runner.Run(ctx, "rev-list", "--left-right", "--count", "HEAD..."+info.Upstream)
		if err == nil {
			fields := strings.Fields(out)
			if len(fields) == 2 {
				info.Ahead, _ = strconv.Atoi(fields[0])
				info.Behind, _ = strconv.Atoi(fields[1])
			}
		}
	}
	return info, nil
}

// IsDetached reports whether HEAD points directly at a commit
func (r *CLIRepo) IsDetached(_ context.Context) (bool, error) {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return false, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return head.Type() != plumbing.SymbolicReference, nil
}

// RecentCommits returns up to n commits reachable from HEAD, newest first
func (r *CLIRepo) RecentCommits(_ context.Context, n int) ([]CommitInfo, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	iter, err := r.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= n {
			return storer.ErrStop
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, CommitInfo{
			Hash:    c.Hash.String(),
			Subject: subject,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate log: %w", err)
	}
	return commits, nil
}

// Remotes returns the configured remotes sorted by name
func (r *CLIRepo) Remotes(_ context.Context) ([]Remote, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to list remotes: %w", err)
	}
	out := make([]Remote, 0, len(remotes))
	for _, rem := range remotes {
		cfg := rem.Config()
		url := ""
		if len(cfg.URLs) > 0 {
			url = cfg.URLs[0]
		}
		out = append(out, Remote{Name: cfg.Name, URL: url})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoteExists reports whether a remote with the given name is configured
func (r *CLIRepo) RemoteExists(_ context.Context, name string) (bool, error) {
	_, err := r.repo.Remote(name)
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read remote %s: %w", name, err)
	}
	return true, nil
}

// TagExists reports whether a local tag exists
func (r *CLIRepo) TagExists(_ context.Context, name string) (bool, error) {
	return r.refExists(plumbing.NewTagReferenceName(name))
}

// BranchExists reports whether a local branch exists
func (r *CLIRepo) BranchExists(_ context.Context, name string) (bool, error) {
	return r.refExists(plumbing.NewBranchReferenceName(name))
}

func (r *CLIRepo) refExists(name plumbing.ReferenceName) (bool, error) {
	_, err := r.repo.Reference(name, false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return true, nil
}

// RemoteBranchExists asks the remote whether it has the branch
func (r *CLIRepo) RemoteBranchExists(ctx context.Context, remote, name string) (bool, error) {
	return r.lsRemote(ctx, remote, "--heads", "refs/heads/"+name)
}

// RemoteTagExists asks the remote whether it has the tag
func (r *CLIRepo) RemoteTagExists(ctx context.Context, remote, name string) (bool, error) {
	return r.lsRemote(ctx, remote, "--tags", "refs/tags/"+name)
}

func (r *CLIRepo) lsRemote(ctx context.Context, remote, kind, ref string) (bool, error) {
	out, err := r.runner.Run(ctx, "ls-remote", kind, remote, ref)
	if err != nil {
		return false, runwayerrors.NewGitError(runwayerrors.GitRemoteOperationFailed, "ls-remote "+remote, err)
	}
	return out != "", nil
}

// ListTags returns every local tag name, sorted
func (r *CLIRepo) ListTags(_ context.Context) ([]string, error) {
	return r.listRefs(r.repo.Tags)
}

// ListBranches returns every local branch name, sorted
func (r *CLIRepo) ListBranches(_ context.Context) ([]string, error) {
	return r.listRefs(r.repo.Branches)
}

func (r *CLIRepo) listRefs(list func() (storer.ReferenceIter, error)) ([]string, error) {
	iter, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
