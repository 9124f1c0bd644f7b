// Package procexec abstracts external process execution.
//
// Everything runway drives besides git (docker, cargo, the packaging tools)
// goes through a Runner so that bundlers and the container builder can be
// exercised in tests with Mock instead of real binaries.
package procexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	runwayerrors "runway.dev/runway/internal/errors"
)

// Command describes one process invocation
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the parent environment
	Env []string
	// Stdin is fed to the process when non-nil
	Stdin []byte
	// Stream receives combined output as it is produced, in addition to the
	// returned buffer. Used for long-running builds.
	Stream io.Writer
}

// String renders the command line for logs and errors
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Process is a started command
type Process interface {
	Pid() int
	Wait() error
	Kill() error
}

// Runner executes external commands
type Runner interface {
	// Run executes the command and returns its stdout
	Run(ctx context.Context, cmd Command) ([]byte, error)
	// Start launches the command without waiting for it
	Start(ctx context.Context, cmd Command) (Process, error)
	// LookPath resolves an executable on PATH
	LookPath(name string) (string, error)
}

// ExitError wraps a failed command with its captured stderr
type ExitError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Default runs real processes with os/exec
type Default struct{}

// NewDefault creates a Runner that executes real processes
func NewDefault() *Default {
	return &Default{}
}

func (d *Default) build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	return cmd
}

// Run executes a command synchronously and returns its stdout
func (d *Default) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := d.build(ctx, c)

	var stdout, stderr bytes.Buffer
	if c.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, c.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return stdout.Bytes(), &ExitError{
			Command: c.String(),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.Bytes(), nil
}

// Start launches a command and returns immediately. Output is discarded
// unless Stream is set.
func (d *Default) Start(ctx context.Context, c Command) (Process, error) {
	cmd := d.build(ctx, c)
	if c.Stream != nil {
		cmd.Stdout = c.Stream
		cmd.Stderr = c.Stream
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	return &osProcess{cmd: cmd}, nil
}

// LookPath resolves name with exec.LookPath
func (d *Default) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

type osProcess struct {
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

func (p *osProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Wait may be called more than once; later calls return the first result
func (p *osProcess) Wait() error {
	p.once.Do(func() {
		p.err = p.cmd.Wait()
	})
	return p.err
}

func (p *osProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// Require resolves tool on PATH or returns a ToolNotFoundError carrying the
// remediation hint
func Require(r Runner, tool, remediation string) (string, error) {
	path, err := r.LookPath(tool)
	if err != nil || path == "" {
		return "", runwayerrors.NewToolNotFoundError(tool, remediation)
	}
	return path, nil
}
