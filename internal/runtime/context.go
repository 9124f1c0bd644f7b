package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"

	"runway.dev/runway/internal/bundler"
	"runway.dev/runway/internal/config"
	"runway.dev/runway/internal/container"
	"runway.dev/runway/internal/git"
	"runway.dev/runway/internal/github"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/publish"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/state"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/internal/workspace"
)

// Context provides access to the workspace and shared services for commands
type Context struct {
	Context context.Context
	Root    string
	Config  *config.Config
	Splog   *tui.Splog
	Runner  procexec.Runner

	repo git.Repo
}

// RepoFactory opens the git repository of a workspace root.
// Tests replace it to run commands against a stub repository.
var RepoFactory = func(root string) (git.Repo, error) {
	return git.Open(root)
}

// NewContext creates a context for the workspace at root with an explicit
// configuration. Used by tests.
func NewContext(ctx context.Context, root string, cfg *config.Config, splog *tui.Splog, runner procexec.Runner) *Context {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if splog == nil {
		splog = tui.NewSplog()
	}
	if runner == nil {
		runner = procexec.NewDefault()
	}
	return &Context{Context: ctx, Root: root, Config: cfg, Splog: splog, Runner: runner}
}

// GetContext finds the workspace containing the current directory and loads its configuration
func GetContext(ctx context.Context) (*Context, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return GetContextAt(ctx, cwd, nil)
}

// GetContextAt is GetContext starting from dir. A nil splog logs to stdout.
func GetContextAt(ctx context.Context, dir string, splog *tui.Splog) (*Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := workspace.FindRoot(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return NewContext(ctx, root, cfg, splog, nil), nil
}

// SetRepo overrides the git repository, typically with a stub in tests
func (c *Context) SetRepo(repo git.Repo) {
	c.repo = repo
}

// Repo opens the git repository containing the workspace on first use
func (c *Context) Repo() (git.Repo, error) {
	if c.repo != nil {
		return c.repo, nil
	}
	repo, err := RepoFactory(c.Root)
	if err != nil {
		return nil, err
	}
	c.repo = repo
	return repo, nil
}

// ReleaseManager returns a release manager for the workspace repository
func (c *Context) ReleaseManager() (*release.Manager, error) {
	repo, err := c.Repo()
	if err != nil {
		return nil, err
	}
	return release.NewManager(repo, c.Config.Release(), c.Splog), nil
}

// Store returns the persisted release state of the workspace
func (c *Context) Store() *state.Store {
	return state.NewStore(c.Root)
}

// OutDir is the absolute bundle output directory
func (c *Context) OutDir() string {
	return c.Config.OutDir(c.Root)
}

// BundlerOptions returns the options shared by every bundler
func (c *Context) BundlerOptions() bundler.Options {
	return bundler.Options{Runner: c.Runner, Splog: c.Splog, Signing: c.Config.Signing()}
}

// Bundlers returns a factory for the configured bundlers
func (c *Context) Bundlers() func(platform.Format) (bundler.Bundler, error) {
	opts := c.BundlerOptions()
	return func(f platform.Format) (bundler.Bundler, error) {
		return bundler.New(f, opts)
	}
}

// BinaryBuilder returns the cargo builder for the workspace
func (c *Context) BinaryBuilder() *bundler.CargoBuilder {
	return bundler.NewCargoBuilder(c.Runner, c.Root, c.Splog)
}

// ContainerBuilder returns the build container for the workspace
func (c *Context) ContainerBuilder() *container.Builder {
	cfg := c.Config.BuilderConfig(c.Root)
	cfg.Tools = c.BundlerOptions()
	return container.NewBuilder(c.Runner, cfg, c.Splog)
}

// Publisher returns the cargo publisher
func (c *Context) Publisher(dryRun bool) *publish.Cargo {
	return publish.NewCargo(c.Runner, c.Config.Publisher(c.Root, dryRun), c.Splog)
}

// GitHubRepo resolves the GitHub repository from an "owner/repo" override,
// the configuration, or the release remote's URL, in that order
func (c *Context) GitHubRepo(override string) (*github.RepoInfo, error) {
	if override != "" {
		owner, repo, err := github.ParseOwnerRepo(override)
		if err != nil {
			return nil, err
		}
		return &github.RepoInfo{Hostname: "github.com", Owner: owner, Repo: repo}, nil
	}
	if owner, repo, ok := c.Config.GitHubRepo(); ok {
		return &github.RepoInfo{Hostname: "github.com", Owner: owner, Repo: repo}, nil
	}

	gitRepo, err := c.Repo()
	if err != nil {
		return nil, err
	}
	remotes, err := gitRepo.Remotes(c.Context)
	if err != nil {
		return nil, err
	}
	want := c.Config.Release().Remote
	for _, r := range remotes {
		if r.Name == want {
			return github.ParseRemoteURL(r.URL)
		}
	}
	return nil, fmt.Errorf("remote %q not found; pass --github-release owner/repo or set github.owner in %s", want, config.FileName)
}

// GitHubReleases returns a release manager for the resolved repository
func (c *Context) GitHubReleases(override string) (*github.ReleaseManager, *github.RepoInfo, error) {
	info, err := c.GitHubRepo(override)
	if err != nil {
		return nil, nil, err
	}
	token, err := github.Token(c.Context, c.Runner)
	if err != nil {
		return nil, nil, err
	}
	client, err := github.NewClient(c.Context, info.Hostname, token)
	if err != nil {
		return nil, nil, err
	}
	cfg := github.Config{Owner: info.Owner, Repo: info.Repo, PrereleaseForZero: c.Config.PrereleaseForZero()}
	return github.NewReleaseManager(client, cfg, c.Splog), info, nil
}

// IsDebug reports whether DEBUG is set
func IsDebug() bool {
	v := strings.TrimSpace(os.Getenv("DEBUG"))
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}
