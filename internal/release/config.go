package release

import (
	"strings"
	"time"
)

// Config controls naming and remote behavior of a release
type Config struct {
	Remote             string
	MainBranch         string
	ReleasePrefix      string
	CommitTemplate     string
	TagMessageTemplate string
	AnnotatedTags      bool
	// PushMain also pushes the main branch alongside the release branch
	PushMain    bool
	PushTimeout time.Duration
}

// DefaultConfig returns the conventional release configuration
func DefaultConfig() Config {
	return Config{
		Remote:             "origin",
		MainBranch:         "main",
		ReleasePrefix:      "v",
		CommitTemplate:     "release: v{version}",
		TagMessageTemplate: "Release v{version}",
		AnnotatedTags:      true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Remote == "" {
		c.Remote = d.Remote
	}
	if c.MainBranch == "" {
		c.MainBranch = d.MainBranch
	}
	if c.ReleasePrefix == "" {
		c.ReleasePrefix = d.ReleasePrefix
	}
	if c.CommitTemplate == "" {
		c.CommitTemplate = d.CommitTemplate
	}
	if c.TagMessageTemplate == "" {
		c.TagMessageTemplate = d.TagMessageTemplate
	}
	return c
}

// BranchName returns the release branch for version
func (c Config) BranchName(version string) string {
	return c.ReleasePrefix + version
}

// TagName returns the release tag for version
func (c Config) TagName(version string) string {
	return c.ReleasePrefix + version
}

// CommitMessage renders the release commit message
func (c Config) CommitMessage(version string) string {
	return strings.ReplaceAll(c.CommitTemplate, "{version}", version)
}

// TagMessage renders the annotated tag message
func (c Config) TagMessage(version string) string {
	return strings.ReplaceAll(c.TagMessageTemplate, "{version}", version)
}

// IsReleaseBranch reports whether branch is a release branch, which is never merged back
func (c Config) IsReleaseBranch(branch string) bool {
	return strings.HasPrefix(branch, c.ReleasePrefix)
}
