package github

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/procexec"
)

// RepoInfo identifies a repository on a GitHub host
type RepoInfo struct {
	Hostname string
	Owner    string
	Repo     string
}

// NewClient creates a GitHub client for hostname.
// Enterprise hosts use the /api/v3 and /api/uploads endpoints.
func NewClient(ctx context.Context, hostname, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if hostname != "" && hostname != "github.com" {
		baseURL, err := url.Parse(fmt.Sprintf("https://%s/api/v3/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL for hostname %s: %w", hostname, err)
		}
		uploadURL, err := url.Parse(fmt.Sprintf("https://%s/api/uploads/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse upload URL for hostname %s: %w", hostname, err)
		}
		client.BaseURL = baseURL
		client.UploadURL = uploadURL
	}
	return client, nil
}

// Token returns a GitHub token from GITHUB_TOKEN, GH_TOKEN, or `gh auth token`
func Token(ctx context.Context, runner procexec.Runner) (string, error) {
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := strings.TrimSpace(os.Getenv(key)); token != "" {
			return token, nil
		}
	}

	gh, err := procexec.Require(runner, "gh", "set GITHUB_TOKEN or install the GitHub CLI and run 'gh auth login'")
	if err != nil {
		return "", err
	}
	out, err := runner.Run(ctx, procexec.Command{Name: gh, Args: []string{"auth", "token"}})
	if err != nil {
		return "", runwayerrors.New(runwayerrors.KindCLI, "get GitHub token", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", runwayerrors.Errorf(runwayerrors.KindCLI, "empty GitHub token; run 'gh auth login' or set GITHUB_TOKEN")
	}
	return token, nil
}

// ParseOwnerRepo splits "owner/repo"
func ParseOwnerRepo(s string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", runwayerrors.Errorf(runwayerrors.KindCLI, "invalid repository %q: expected owner/repo", s)
	}
	return parts[0], parts[1], nil
}

// ParseRemoteURL extracts hostname, owner and repo from a git remote URL.
// Examples:
//   - https://github.com/owner/repo.git
//   - git@github.com:owner/repo.git
//   - https://github.company.com/owner/repo
func ParseRemoteURL(remoteURL string) (*RepoInfo, error) {
	remoteURL = strings.TrimSuffix(strings.TrimSpace(remoteURL), ".git")

	var hostname, path string
	if strings.Contains(remoteURL, "@") && !strings.Contains(remoteURL, "://") {
		// git@hostname:owner/repo
		hostAndPath := remoteURL[strings.Index(remoteURL, "@")+1:]
		sep := strings.IndexAny(hostAndPath, ":/")
		if sep < 0 {
			return nil, runwayerrors.Errorf(runwayerrors.KindCLI, "invalid SSH remote URL %q", remoteURL)
		}
		hostname, path = hostAndPath[:sep], hostAndPath[sep+1:]
	} else {
		u, err := url.Parse(remoteURL)
		if err != nil {
			return nil, runwayerrors.New(runwayerrors.KindCLI, "parse remote URL", err)
		}
		hostname, path = u.Hostname(), strings.TrimPrefix(u.Path, "/")
	}

	parts := strings.Split(path, "/")
	if hostname == "" || len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return nil, runwayerrors.Errorf(runwayerrors.KindCLI, "cannot determine owner/repo from remote URL %q", remoteURL)
	}
	return &RepoInfo{Hostname: hostname, Owner: parts[len(parts)-2], Repo: parts[len(parts)-1]}, nil
}
