// Package helpers holds plumbing shared by CLI commands.
package helpers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/envinit"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
)

// Dir is the directory the command acts on: --cwd or the working directory
func Dir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("cwd"); dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return cwd, nil
}

// NewSplog creates the command logger, writing to the command's output and
// the rotated log file
func NewSplog(cmd *cobra.Command) *tui.Splog {
	splog, err := tui.NewSplogWithConfig(cmd.OutOrStdout(), tui.GetLogFilePath())
	if err != nil {
		splog = tui.NewSplogWithWriter(cmd.OutOrStdout())
		splog.Debug("file logging disabled: %v", err)
	}
	return splog
}

// Run is a helper that provides a runtime context to a command's execution
// function. Credentials from .env files and the login shell are loaded
// before fn runs.
func Run(cmd *cobra.Command, fn func(ctx *runtime.Context) error) error {
	dir, err := Dir(cmd)
	if err != nil {
		return err
	}
	splog := NewSplog(cmd)
	defer func() { _ = splog.Close() }()

	ctx, err := runtime.GetContextAt(cmd.Context(), dir, splog)
	if err != nil {
		return err
	}
	if _, err := envinit.Load(ctx.Context, ctx.Root, ctx.Runner, ctx.Splog); err != nil {
		return err
	}
	return fn(ctx)
}
