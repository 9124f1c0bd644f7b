package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"runway.dev/runway/internal/bundler"
	"runway.dev/runway/internal/container"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/publish"
	"runway.dev/runway/internal/release"
)

// FileName is the configuration file at the workspace root
const FileName = ".runway.yaml"

// Config represents .runway.yaml
type Config struct {
	Git       GitConfig       `yaml:"git,omitempty"`
	Container ContainerConfig `yaml:"container,omitempty"`
	Bundle    BundleConfig    `yaml:"bundle,omitempty"`
	GitHub    GitHubConfig    `yaml:"github,omitempty"`
	Publish   PublishConfig   `yaml:"publish,omitempty"`
}

// GitConfig configures the release state machine
type GitConfig struct {
	Remote         *string `yaml:"remote,omitempty"`
	MainBranch     *string `yaml:"main_branch,omitempty"`
	CommitTemplate *string `yaml:"commit_template,omitempty"`
	TagTemplate    *string `yaml:"tag_template,omitempty"`
	AnnotatedTags  *bool   `yaml:"annotated_tags,omitempty"`
	PushMain       *bool   `yaml:"push_main,omitempty"`
	// PushTimeout is a Go duration such as 2m
	PushTimeout *string `yaml:"push_timeout,omitempty"`
}

// ContainerConfig configures the bundling container
type ContainerConfig struct {
	ImageName  *string `yaml:"image_name,omitempty"`
	Dockerfile *string `yaml:"dockerfile,omitempty"`
	Memory     *string `yaml:"memory,omitempty"`
	MemorySwap *string `yaml:"memory_swap,omitempty"`
	CPUs       *string `yaml:"cpus,omitempty"`
	PidsLimit  *int    `yaml:"pids_limit,omitempty"`
	Network    *bool   `yaml:"network,omitempty"`
}

// BundleConfig selects formats and signing
type BundleConfig struct {
	Formats         []string `yaml:"formats,omitempty"`
	OutDir          *string  `yaml:"out_dir,omitempty"`
	SigningIdentity *string  `yaml:"signing_identity,omitempty"`
	WindowsCert     *string  `yaml:"windows_cert,omitempty"`
	WindowsKey      *string  `yaml:"windows_key,omitempty"`
	TimestampURL    *string  `yaml:"timestamp_url,omitempty"`
}

// GitHubConfig names the repository releases are created in
type GitHubConfig struct {
	Owner             *string `yaml:"owner,omitempty"`
	Repo              *string `yaml:"repo,omitempty"`
	PrereleaseForZero *bool   `yaml:"prerelease_for_zero,omitempty"`
}

// PublishConfig tunes cargo publish
type PublishConfig struct {
	Delay    *string `yaml:"delay,omitempty"`
	Retries  *int    `yaml:"retries,omitempty"`
	Registry *string `yaml:"registry,omitempty"`
}

// Path returns the configuration file path for a workspace
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads .runway.yaml from root. A missing file yields an empty Config.
func Load(root string) (*Config, error) {
	path := Path(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "read config", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindCLI, "parse config", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindCLI, "validate config", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration to root
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(Path(root), data, 0600)
}

// Validate checks values that would otherwise only fail mid-release
func (c *Config) Validate() error {
	var errs []error
	if c.Git.PushTimeout != nil {
		if _, err := time.ParseDuration(*c.Git.PushTimeout); err != nil {
			errs = append(errs, fmt.Errorf("git.push_timeout: %w", err))
		}
	}
	if c.Publish.Delay != nil {
		if _, err := time.ParseDuration(*c.Publish.Delay); err != nil {
			errs = append(errs, fmt.Errorf("publish.delay: %w", err))
		}
	}
	if len(c.Bundle.Formats) > 0 {
		if _, err := c.Formats(); err != nil {
			errs = append(errs, fmt.Errorf("bundle.formats: %w", err))
		}
	}
	if c.hasContainerLimits() {
		if err := c.Limits(container.DetectLimits()).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("container: %w", err))
		}
	}
	if (c.GitHub.Owner == nil) != (c.GitHub.Repo == nil) {
		errs = append(errs, errors.New("github: owner and repo must be set together"))
	}
	return errors.Join(errs...)
}

func str(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}

func boolean(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func duration(p *string) time.Duration {
	if p == nil {
		return 0
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return 0
	}
	return d
}

// Release returns the release state machine configuration
func (c *Config) Release() release.Config {
	d := release.DefaultConfig()
	return release.Config{
		Remote:             str(c.Git.Remote, d.Remote),
		MainBranch:         str(c.Git.MainBranch, d.MainBranch),
		ReleasePrefix:      d.ReleasePrefix,
		CommitTemplate:     str(c.Git.CommitTemplate, d.CommitTemplate),
		TagMessageTemplate: str(c.Git.TagTemplate, d.TagMessageTemplate),
		AnnotatedTags:      boolean(c.Git.AnnotatedTags, d.AnnotatedTags),
		PushMain:           boolean(c.Git.PushMain, d.PushMain),
		PushTimeout:        duration(c.Git.PushTimeout),
	}
}

func (c *Config) hasContainerLimits() bool {
	cc := c.Container
	return cc.Memory != nil || cc.MemorySwap != nil || cc.CPUs != nil || cc.PidsLimit != nil
}

// Limits overlays the configured container limits on base
func (c *Config) Limits(base container.Limits) container.Limits {
	cc := c.Container
	l := base
	if cc.Memory != nil {
		l.Memory = *cc.Memory
		if cc.MemorySwap == nil {
			// base swap was derived from the base memory
			l.MemorySwap = ""
		}
	}
	l.MemorySwap = str(cc.MemorySwap, l.MemorySwap)
	l.CPUs = str(cc.CPUs, l.CPUs)
	if cc.PidsLimit != nil {
		l.PidsLimit = *cc.PidsLimit
	}
	l.Network = boolean(cc.Network, l.Network)
	return l
}

// BuilderConfig returns the container builder configuration for root
func (c *Config) BuilderConfig(root string) container.Config {
	return container.Config{
		Root:       root,
		ImageName:  str(c.Container.ImageName, ""),
		Dockerfile: str(c.Container.Dockerfile, ""),
		Limits:     c.Limits(container.DetectLimits()),
		OutDir:     c.relOutDir(),
	}
}

// Formats returns the configured formats; nil when none are configured
func (c *Config) Formats() ([]platform.Format, error) {
	if len(c.Bundle.Formats) == 0 {
		return nil, nil
	}
	return platform.ParseFormats(strings.Join(c.Bundle.Formats, ","))
}

func (c *Config) relOutDir() string {
	return str(c.Bundle.OutDir, "target")
}

// OutDir returns the absolute bundle output directory for root
func (c *Config) OutDir(root string) string {
	out := c.relOutDir()
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(root, out)
}

// Signing returns the code signing settings
func (c *Config) Signing() bundler.Signing {
	b := c.Bundle
	return bundler.Signing{
		Identity:     str(b.SigningIdentity, ""),
		WindowsCert:  str(b.WindowsCert, ""),
		WindowsKey:   str(b.WindowsKey, ""),
		TimestampURL: str(b.TimestampURL, ""),
	}
}

// GitHubRepo returns the configured owner and repository, if any
func (c *Config) GitHubRepo() (owner, repo string, ok bool) {
	owner, repo = str(c.GitHub.Owner, ""), str(c.GitHub.Repo, "")
	return owner, repo, owner != "" && repo != ""
}

// PrereleaseForZero reports whether 0.x releases are marked as prereleases
func (c *Config) PrereleaseForZero() bool {
	return boolean(c.GitHub.PrereleaseForZero, false)
}

// Publisher returns the cargo publish configuration for root
func (c *Config) Publisher(root string, dryRun bool) publish.Config {
	cfg := publish.Config{
		Root:     root,
		DryRun:   dryRun,
		Delay:    duration(c.Publish.Delay),
		Registry: str(c.Publish.Registry, ""),
		Retries:  2,
	}
	if c.Publish.Retries != nil {
		cfg.Retries = *c.Publish.Retries
	}
	return cfg
}
