package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"runway.dev/runway/internal/cli"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Interrupts cancel the run; a failed release still rolls back on its own deadline
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := cli.NewRootCmd(version, commit, date)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s %v\n", tui.ColorRed("Error:"), err)
		for _, hint := range runwayerrors.RecoverySuggestions(err) {
			_, _ = fmt.Fprintf(os.Stderr, "  %s\n", hint)
		}
		os.Exit(1)
	}
}
