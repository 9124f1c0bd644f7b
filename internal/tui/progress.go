package tui

import (
	"sync"
	"time"
)

// Progress update types
const (
	UpdateStarted   = "started"
	UpdateCompleted = "completed"
	UpdateFailed    = "failed"
	UpdateSkipped   = "skipped"
)

// ProgressUpdate represents an update to release progress
type ProgressUpdate struct {
	Type        string // one of the Update* constants
	StepIndex   int
	Description string
	Error       error
	Elapsed     time.Duration
}

// ChannelProgressReporter implements orchestrator.ProgressReporter using channels
type ChannelProgressReporter struct {
	updates chan ProgressUpdate
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	started map[int]time.Time
}

// NewChannelProgressReporter creates a new channel-based progress reporter
func NewChannelProgressReporter() *ChannelProgressReporter {
	return &ChannelProgressReporter{
		updates: make(chan ProgressUpdate, 100),
		started: make(map[int]time.Time),
	}
}

// Updates returns the channel for receiving updates
func (r *ChannelProgressReporter) Updates() <-chan ProgressUpdate {
	return r.updates
}

// Close closes the update channel (safe to call multiple times)
func (r *ChannelProgressReporter) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		close(r.updates)
	})
}

func (r *ChannelProgressReporter) send(update ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch update.Type {
	case UpdateStarted:
		r.started[update.StepIndex] = time.Now()
	case UpdateCompleted, UpdateFailed:
		if start, ok := r.started[update.StepIndex]; ok {
			update.Elapsed = time.Since(start)
		}
	}
	r.updates <- update
}

// StepStarted reports that a step has started
func (r *ChannelProgressReporter) StepStarted(stepIndex int, description string) {
	r.send(ProgressUpdate{Type: UpdateStarted, StepIndex: stepIndex, Description: description})
}

// StepCompleted reports that a step has completed
func (r *ChannelProgressReporter) StepCompleted(stepIndex int) {
	r.send(ProgressUpdate{Type: UpdateCompleted, StepIndex: stepIndex})
}

// StepFailed reports that a step has failed
func (r *ChannelProgressReporter) StepFailed(stepIndex int, err error) {
	r.send(ProgressUpdate{Type: UpdateFailed, StepIndex: stepIndex, Error: err})
}

// StepSkipped reports that a step was not needed
func (r *ChannelProgressReporter) StepSkipped(stepIndex int, reason string) {
	r.send(ProgressUpdate{Type: UpdateSkipped, StepIndex: stepIndex, Description: reason})
}

// LogProgressReporter reports progress as plain log lines.
// Used when stdout is not a terminal.
type LogProgressReporter struct {
	splog *Splog
	mu    sync.Mutex
	steps map[int]string
}

// NewLogProgressReporter creates a reporter that writes through splog
func NewLogProgressReporter(splog *Splog) *LogProgressReporter {
	return &LogProgressReporter{splog: splog, steps: make(map[int]string)}
}

// StepStarted logs the step description
func (r *LogProgressReporter) StepStarted(stepIndex int, description string) {
	r.mu.Lock()
	r.steps[stepIndex] = description
	r.mu.Unlock()
	r.splog.Info("▶ %s", description)
}

// StepCompleted logs completion of a previously started step
func (r *LogProgressReporter) StepCompleted(stepIndex int) {
	r.splog.Debug("✓ %s", r.description(stepIndex))
}

// StepFailed logs the failure
func (r *LogProgressReporter) StepFailed(stepIndex int, err error) {
	r.splog.Error("%s: %v", r.description(stepIndex), err)
}

// StepSkipped logs the skip reason
func (r *LogProgressReporter) StepSkipped(stepIndex int, reason string) {
	r.splog.Debug("- step %d skipped: %s", stepIndex+1, reason)
}

func (r *LogProgressReporter) description(stepIndex int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.steps[stepIndex]; ok {
		return d
	}
	return "step"
}
