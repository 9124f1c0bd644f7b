package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/state"
)

// RollbackTimeout bounds the rollback after a failed run. It applies even
// when the run's own context was cancelled.
const RollbackTimeout = 2 * time.Minute

// RunError is a failed run together with the outcome of its rollback
type RunError struct {
	Phase state.Phase
	Err   error
	// Rollback is nil when no rollback was attempted
	Rollback    *release.RollbackResult
	RollbackErr error
	// Held is set when the release was kept for manual resolution
	Held bool
}

func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "release failed during %s: %v", e.Phase, e.Err)
	switch {
	case e.RollbackErr != nil:
		fmt.Fprintf(&b, "; rollback failed: %v", e.RollbackErr)
	case e.Rollback != nil && !e.Rollback.Success:
		fmt.Fprintf(&b, "; rollback incomplete: %s", strings.Join(e.Rollback.Warnings, "; "))
	case e.Rollback != nil:
		b.WriteString("; rolled back")
	case e.Held:
		b.WriteString("; release kept for manual resolution, run 'runway rollback' when done")
	}
	return b.String()
}

// Unwrap exposes both the run error and the rollback error
func (e *RunError) Unwrap() []error {
	if e.RollbackErr != nil {
		return []error{e.Err, e.RollbackErr}
	}
	return []error{e.Err}
}

// failed records err and undoes what the run created. A merge conflict while
// integrating the remote release branch is left in place: the user resolves
// it and decides whether to roll back.
func (r *run) failed(ctx context.Context, err error) error {
	d := r.o.deps
	runErr := &RunError{Phase: r.st.Phase, Err: err}
	if step, ok := phaseStep[r.st.Phase]; ok {
		d.Progress.StepFailed(step, err)
	}
	r.st.Fail(err)
	r.save()

	if r.req.DryRun || !r.released {
		return runErr
	}
	if errors.Is(err, runwayerrors.ErrMergeConflict) {
		runErr.Held = true
		return runErr
	}

	// the run's context may be the reason we are here
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
	defer cancel()

	if gh := r.st.GitHub; gh != nil && gh.ReleaseID != 0 && d.GitHub != nil {
		r.deleteDraft(rctx, gh)
	}

	d.Splog.Warn("Rolling back release v%s", r.req.Version)
	rb, rbErr := d.Release.Rollback(rctx)
	runErr.Rollback, runErr.RollbackErr = rb, rbErr
	if rb != nil {
		d.Splog.Info("%s", release.FormatRollback(rb))
	}
	r.st.Git = d.Release.State()
	r.save()
	return runErr
}

// deleteDraft removes the GitHub release only while it is still a draft. A
// release that went public stays; its URL may already be shared.
func (r *run) deleteDraft(ctx context.Context, gh *state.GitHubState) {
	d := r.o.deps
	draft, err := d.GitHub.VerifyIsDraft(ctx, gh.ReleaseID)
	switch {
	case err != nil:
		d.Splog.Warn("Could not check GitHub release %d, leaving it in place: %v", gh.ReleaseID, err)
		return
	case !draft:
		gh.Draft = false
		d.Splog.Warn("GitHub release %d is published; delete it by hand if it must go: %s", gh.ReleaseID, gh.HTMLURL)
		return
	}
	if err := d.GitHub.DeleteRelease(ctx, gh.ReleaseID); err != nil {
		d.Splog.Warn("Could not delete GitHub release %d: %v", gh.ReleaseID, err)
		return
	}
	d.Splog.Info("Deleted GitHub draft release %d", gh.ReleaseID)
	r.st.GitHub = nil
}
