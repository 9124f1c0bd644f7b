// Package errors provides sentinel errors and custom error types for runway.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for reporting and recovery suggestions.
type Kind int

const (
	// KindGeneric is the catch-all kind
	KindGeneric Kind = iota
	// KindCLI is malformed user input
	KindCLI
	// KindWorkspace is a manifest or workspace layout failure
	KindWorkspace
	// KindGraph is a dependency graph failure, usually a cycle
	KindGraph
	// KindGit is a failure in the git release flow
	KindGit
	// KindBundler is a failure producing an artifact
	KindBundler
	// KindContainer is a failure in the container builder
	KindContainer
	// KindIO is a filesystem failure
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindCLI:
		return "cli"
	case KindWorkspace:
		return "workspace"
	case KindGraph:
		return "graph"
	case KindGit:
		return "git"
	case KindBundler:
		return "bundler"
	case KindContainer:
		return "container"
	case KindIO:
		return "io"
	default:
		return "generic"
	}
}

// Sentinel errors for each kind
var (
	ErrCLI       = errors.New("invalid arguments")
	ErrWorkspace = errors.New("workspace error")
	ErrGraph     = errors.New("dependency graph error")
	ErrGit       = errors.New("git error")
	ErrBundler   = errors.New("bundler error")
	ErrContainer = errors.New("container error")
	ErrIO        = errors.New("io error")
	ErrGeneric   = errors.New("error")
)

// Sentinel errors for specific conditions
var (
	// ErrDuplicatePackage indicates two workspace members share a name
	ErrDuplicatePackage = errors.New("duplicate package name")

	// ErrCycle indicates a cycle in the internal dependency graph
	ErrCycle = errors.New("dependency cycle")

	// ErrToolNotFound indicates an external tool is not on PATH
	ErrToolNotFound = errors.New("tool not found")

	// ErrArtifactMissing indicates a bundler finished without producing its artifact
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrUnsupportedArch indicates a bundler cannot target the requested architecture
	ErrUnsupportedArch = errors.New("unsupported architecture")

	// ErrDaemonUnavailable indicates the container daemon did not answer
	ErrDaemonUnavailable = errors.New("container daemon unavailable")

	// ErrImageBuild indicates the builder image could not be built
	ErrImageBuild = errors.New("builder image build failed")

	// ErrContainerRun indicates the bundling container exited with an error
	ErrContainerRun = errors.New("container run failed")

	// ErrCleanupTimeout indicates a container could not be removed in time
	ErrCleanupTimeout = errors.New("container cleanup timed out")

	// ErrNoReleaseState indicates a rollback was requested with nothing to roll back
	ErrNoReleaseState = errors.New("no release in progress")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindCLI:
		return ErrCLI
	case KindWorkspace:
		return ErrWorkspace
	case KindGraph:
		return ErrGraph
	case KindGit:
		return ErrGit
	case KindBundler:
		return ErrBundler
	case KindContainer:
		return ErrContainer
	case KindIO:
		return ErrIO
	default:
		return ErrGeneric
	}
}

// Error is a kinded error carrying the operation and, for filesystem errors, the path
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return sentinelFor(e.Kind).Error()
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is returns true if the target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// New creates a kinded error
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewWithPath creates a kinded error that names a path
func NewWithPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf creates a kinded error from a format string
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost kinded error in the chain
func KindOf(err error) Kind {
	var gitErr *GitError
	var kinded *Error
	var toolErr *ToolNotFoundError
	switch {
	case err == nil:
		return KindGeneric
	case errors.As(err, &kinded):
		return kinded.Kind
	case errors.As(err, &gitErr):
		return KindGit
	case errors.As(err, &toolErr):
		return KindBundler
	default:
		return KindGeneric
	}
}

// ToolNotFoundError represents an external tool that is not installed
type ToolNotFoundError struct {
	Tool        string
	Remediation string
}

func (e *ToolNotFoundError) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("%s not found on PATH (%s)", e.Tool, e.Remediation)
	}
	return fmt.Sprintf("%s not found on PATH", e.Tool)
}

// Is returns true for ErrToolNotFound and ErrBundler
func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound || target == ErrBundler
}

// NewToolNotFoundError creates a new ToolNotFoundError
func NewToolNotFoundError(tool, remediation string) *ToolNotFoundError {
	return &ToolNotFoundError{Tool: tool, Remediation: remediation}
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("%s command failed", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}
