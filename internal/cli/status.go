package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/runtime"
	"runway.dev/runway/internal/state"
	"runway.dev/runway/internal/tui"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved release state and the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Run(cmd, func(ctx *runtime.Context) error {
				return runStatus(ctx, cmd.OutOrStdout())
			})
		},
	}
	return cmd
}

func runStatus(ctx *runtime.Context, w io.Writer) error {
	st, err := ctx.Store().Load()
	switch {
	case errors.Is(err, runwayerrors.ErrNoReleaseState):
		_, _ = fmt.Fprintf(w, "%s none\n", tui.Heading("Release:"))
	case err != nil:
		return err
	default:
		printState(w, st)
	}

	manager, err := ctx.ReleaseManager()
	if err != nil {
		return err
	}
	stats, err := manager.Stats(ctx.Context)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	printStats(w, stats)

	backup, err := manager.CreateBackupPoint(ctx.Context)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%s %s at %s\n", tui.Heading("Backup point:"), backup.Branch, shortHash(backup.Head))
	for _, c := range backup.RecentCommits {
		_, _ = fmt.Fprintf(w, "  %s %s %s\n", tui.ColorYellow(shortHash(c.Hash)), c.Subject, tui.ColorDim("("+c.Author+")"))
	}
	return nil
}

func printState(w io.Writer, st *state.ReleaseState) {
	_, _ = fmt.Fprintf(w, "%s %s\n", tui.Heading("Release:"), st.Summary())
	if st.Git.Tag != "" {
		_, _ = fmt.Fprintf(w, "  tag %s on %s (branch pushed: %t, tags pushed: %t)\n",
			st.Git.Tag, st.Git.Branch, st.Git.BranchPushed, st.Git.TagsPushed)
	}
	if len(st.Published) > 0 {
		_, _ = fmt.Fprintf(w, "  published: %v\n", st.Published)
	}
	if gh := st.GitHub; gh != nil && gh.ReleaseID != 0 {
		kind := "published"
		if gh.Draft {
			kind = "draft"
		}
		_, _ = fmt.Fprintf(w, "  GitHub %s release %s (%d assets)\n", kind, gh.HTMLURL, len(gh.Uploaded))
	}
	for _, cp := range st.Checkpoints {
		_, _ = fmt.Fprintf(w, "  %s %s %s\n", tui.ColorGreen("✓"), cp.Name, tui.ColorDim(cp.Timestamp.Local().Format(time.Kitchen)))
	}
	if st.LastError != "" {
		_, _ = fmt.Fprintf(w, "  %s %s\n", tui.ColorRed("last error:"), st.LastError)
	}
	if st.NeedsRollback() {
		_, _ = fmt.Fprintf(w, "  run 'runway rollback' to undo it or 'runway cleanup %s' to discard it\n", st.Version)
	}
}

func printStats(w io.Writer, s *release.Stats) {
	clean := tui.ColorGreen("clean")
	if !s.Clean {
		clean = tui.ColorYellow("dirty")
	}
	branch := s.Branch
	if s.Detached {
		branch = "detached HEAD"
	}
	_, _ = fmt.Fprintf(w, "%s %s at %s, %s\n", tui.Heading("Repository:"), branch, shortHash(s.Head), clean)
	if s.Ahead > 0 || s.Behind > 0 {
		_, _ = fmt.Fprintf(w, "  %d ahead, %d behind upstream\n", s.Ahead, s.Behind)
	}
	_, _ = fmt.Fprintf(w, "  %d branches, %d tags, %d remotes\n", s.BranchCount, s.TagCount, s.RemoteCount)
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
