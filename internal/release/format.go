package release

import (
	"fmt"
	"strings"
	"time"
)

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// FormatResult renders a release result for the terminal
func FormatResult(r *Result) string {
	var b strings.Builder
	if r.DryRun {
		fmt.Fprintf(&b, "Dry run for release %s; would:\n", r.Version)
		for i, step := range r.Planned {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Release %s\n", r.Version)
	if r.WIPCommit != "" {
		fmt.Fprintf(&b, "  WIP commit: %s on %s\n", shortHash(r.WIPCommit), r.OriginalBranch)
	}
	if r.Merged != nil {
		fmt.Fprintf(&b, "  Merged:     %s (%s)\n", r.OriginalBranch, r.Merged.Kind)
	}
	fmt.Fprintf(&b, "  Branch:     %s\n", r.Branch)
	if len(r.Staged) > 0 {
		fmt.Fprintf(&b, "  Updated:    %d file(s)\n", len(r.Staged))
	}
	fmt.Fprintf(&b, "  Commit:     %s\n", shortHash(r.Commit))
	fmt.Fprintf(&b, "  Tag:        %s\n", r.Tag)
	if r.Push != nil {
		fmt.Fprintf(&b, "  Pushed:     %s to %s (%d commits, %d tags)\n",
			strings.Join(r.Push.Refspecs, " "), r.Push.Remote, r.Push.CommitsPushed, r.Push.TagsPushed)
		if r.Push.FirstPush {
			b.WriteString("              first push of the release branch\n")
		}
		for _, w := range r.Push.Warnings {
			fmt.Fprintf(&b, "  Warning:    %s\n", w)
		}
	} else {
		b.WriteString("  Pushed:     no\n")
	}
	fmt.Fprintf(&b, "  Duration:   %v\n", r.Duration.Round(time.Millisecond))
	return b.String()
}

// FormatRollback renders a rollback result for the terminal
func FormatRollback(r *RollbackResult) string {
	var b strings.Builder
	if r.Success {
		b.WriteString("Rollback completed\n")
	} else {
		b.WriteString("Rollback completed with errors\n")
	}
	for _, op := range r.Operations {
		fmt.Fprintf(&b, "  ✓ %s\n", op)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  ⚠ %s\n", w)
	}
	fmt.Fprintf(&b, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	return b.String()
}
