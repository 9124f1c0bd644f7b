package cli

import (
	"runway.dev/runway/internal/orchestrator"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/tui"
)

// runWithProgress runs the orchestrator behind the progress TUI when stdout
// is a terminal, and with logged step lines otherwise
func runWithProgress(ctx *runtime.Context, title string, deps orchestrator.Deps, req orchestrator.Request) (*orchestrator.Report, error) {
	if !tui.IsTTY() || runtime.IsDebug() {
		deps.Progress = tui.NewLogProgressReporter(ctx.Splog)
		return orchestrator.New(deps).Run(ctx.Context, req)
	}

	reporter := tui.NewChannelProgressReporter()
	deps.Progress = reporter

	// Start TUI in a goroutine
	done := make(chan bool, 1)
	tuiErr := make(chan error, 1)
	go func() {
		if err := tui.RunProgressTUI(title, orchestrator.Steps, reporter.Updates(), done); err != nil {
			tuiErr <- err
		}
	}()

	// The TUI owns the screen until it exits; file logging continues
	ctx.Splog.SetQuiet(true)
	report, err := orchestrator.New(deps).Run(ctx.Context, req)
	reporter.Close()

	select {
	case <-done:
	case err := <-tuiErr:
		ctx.Splog.Debug("TUI error: %v", err)
	}
	ctx.Splog.SetQuiet(false)
	return report, err
}
