package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"runway.dev/runway/internal/release"
)

// FormatReport renders a run report for the terminal
func FormatReport(r *Report) string {
	var b strings.Builder
	if r.Release != nil {
		b.WriteString(release.FormatResult(r.Release))
	}

	if len(r.Plan) > 0 {
		fmt.Fprintf(&b, "Publish order (%d tiers):\n", len(r.Plan))
		for i, tier := range r.Plan {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, strings.Join(tier, ", "))
		}
	}
	if len(r.Published) > 0 {
		fmt.Fprintf(&b, "Published: %s\n", strings.Join(r.Published, ", "))
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("Artifacts:\n")
		for _, name := range r.Plan.Flatten() {
			for _, path := range r.Artifacts[name] {
				fmt.Fprintf(&b, "  %s: %s\n", name, filepath.Base(path))
			}
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "  skipped %s\n", s)
	}

	if r.GitHub != nil {
		state := "published"
		if r.GitHub.Draft {
			state = "draft"
		}
		fmt.Fprintf(&b, "GitHub release: %s (%s, %d assets)\n", r.GitHub.HTMLURL, state, len(r.Uploaded))
	}
	if !r.DryRun {
		fmt.Fprintf(&b, "Finished in %v\n", r.Duration.Round(time.Millisecond))
	}
	return b.String()
}
