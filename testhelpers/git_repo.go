package testhelpers

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const textFileName = "test.txt"

// GitRepo is a real on-disk repository for integration tests
type GitRepo struct {
	Dir string
}

// NewGitRepo runs 'git init' on main in dir and configures a test identity
func NewGitRepo(dir string) (*GitRepo, error) {
	cmd := exec.Command("git", "-c", "init.defaultBranch=main", "-c", "core.autocrlf=false", "init", dir, "-b", "main")
	cmd.Env = gitEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to init repo: %w: %s", err, out)
	}
	repo := &GitRepo{Dir: dir}
	if err := repo.configureIdentity(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewGitRepoWithCommit creates a repository with one initial commit on main
func NewGitRepoWithCommit(dir string) (*GitRepo, error) {
	repo, err := NewGitRepo(dir)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateChangeAndCommit("initial", ""); err != nil {
		return nil, err
	}
	return repo, nil
}

// CloneGitRepo clones source into dir, typically a bare remote, to act as a
// second collaborator
func CloneGitRepo(source, dir string) (*GitRepo, error) {
	cmd := exec.Command("git", "clone", source, dir)
	cmd.Env = gitEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to clone repo: %w: %s", err, out)
	}
	repo := &GitRepo{Dir: dir}
	if err := repo.configureIdentity(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *GitRepo) configureIdentity() error {
	if err := r.RunGitCommand("config", "user.name", "Test User"); err != nil {
		return err
	}
	if err := r.RunGitCommand("config", "user.email", "test@example.com"); err != nil {
		return err
	}
	return r.RunGitCommand("config", "commit.gpgsign", "false")
}

// gitEnv avoids reading the developer's global git config
func gitEnv() []string {
	return append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_TERMINAL_PROMPT=0")
}

// RunGitCommand executes a git command in the repository directory
func (r *GitRepo) RunGitCommand(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = gitEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, out)
	}
	return nil
}

// RunGitCommandAndGetOutput executes a git command and returns its trimmed output
func (r *GitRepo) RunGitCommandAndGetOutput(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = gitEnv()
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// WriteFile writes content to a path relative to the repository root
func (r *GitRepo) WriteFile(name, content string) error {
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// CreateChange writes textValue to "<prefix>_test.txt" and stages it unless unstaged is set
func (r *GitRepo) CreateChange(textValue string, prefix string, unstaged bool) error {
	fileName := textFileName
	if prefix != "" {
		fileName = prefix + "_" + fileName
	}
	if err := r.WriteFile(fileName, textValue); err != nil {
		return err
	}
	if !unstaged {
		return r.RunGitCommand("add", fileName)
	}
	return nil
}

// CreateChangeAndCommit creates a file change and commits it with textValue as the message
func (r *GitRepo) CreateChangeAndCommit(textValue string, prefix string) error {
	if err := r.CreateChange(textValue, prefix, false); err != nil {
		return err
	}
	return r.RunGitCommand("commit", "-m", textValue)
}

// CreateAndCheckoutBranch creates and checks out a new branch
func (r *GitRepo) CreateAndCheckoutBranch(name string) error {
	return r.RunGitCommand("checkout", "-b", name)
}

// CheckoutBranch checks out a branch
func (r *GitRepo) CheckoutBranch(name string) error {
	return r.RunGitCommand("checkout", name)
}

// CurrentBranchName returns the name of the current branch
func (r *GitRepo) CurrentBranchName() (string, error) {
	return r.RunGitCommandAndGetOutput("branch", "--show-current")
}

// GetRevision returns the SHA of a revision
func (r *GitRepo) GetRevision(rev string) (string, error) {
	return r.RunGitCommandAndGetOutput("rev-parse", rev)
}

// CommitSubjects returns commit subjects reachable from rev, newest first
func (r *GitRepo) CommitSubjects(rev string) ([]string, error) {
	out, err := r.RunGitCommandAndGetOutput("log", "--format=%s", rev)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// HasRef reports whether the fully qualified ref exists in the repository
func (r *GitRepo) HasRef(ref string) bool {
	return r.RunGitCommand("show-ref", "--verify", "--quiet", ref) == nil
}

// IsClean reports whether 'git status --porcelain' is empty
func (r *GitRepo) IsClean() (bool, error) {
	out, err := r.RunGitCommandAndGetOutput("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// CreateBareRemote creates a bare repository next to the working repo and
// adds it as a remote. Returns the path to the bare repository.
func (r *GitRepo) CreateBareRemote(name string) (string, error) {
	bareDir := r.Dir + "-" + name + ".git"
	cmd := exec.Command("git", "-c", "init.defaultBranch=main", "init", "--bare", bareDir)
	cmd.Env = gitEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to create bare repo: %w: %s", err, out)
	}
	if err := r.RunGitCommand("remote", "add", name, bareDir); err != nil {
		return "", fmt.Errorf("failed to add remote: %w", err)
	}
	return bareDir, nil
}

// PushBranch pushes a branch to a remote and sets upstream
func (r *GitRepo) PushBranch(remote, branch string) error {
	return r.RunGitCommand("push", "-u", remote, branch)
}

// BareHasRef reports whether a bare repository has the fully qualified ref
func BareHasRef(bareDir, ref string) bool {
	cmd := exec.Command("git", "--git-dir", bareDir, "show-ref", "--verify", "--quiet", ref)
	cmd.Env = gitEnv()
	return cmd.Run() == nil
}
