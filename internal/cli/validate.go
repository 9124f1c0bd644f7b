package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	"runway.dev/runway/internal/config"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/graph"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/internal/workspace"
)

// newValidateCmd creates the validate command
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the workspace and .runway.yaml for problems that would break a release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := helpers.Dir(cmd)
			if err != nil {
				return err
			}
			root, err := workspace.FindRoot(dir)
			if err != nil {
				return err
			}
			if _, err := config.Load(root); err != nil {
				return err
			}
			ws, err := workspace.Analyze(root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			issues := workspace.Validate(ws)
			if _, err := graph.New(ws); err != nil {
				issues = append(issues, workspace.Issue{Package: "workspace", Severity: workspace.SeverityError, Message: err.Error()})
			}
			if len(issues) == 0 {
				_, _ = fmt.Fprintf(out, "%s %d packages, no issues found\n", tui.ColorGreen("✓"), len(ws.Packages))
				return nil
			}
			for _, issue := range issues {
				mark := tui.ColorYellow("⚠")
				if issue.Severity == workspace.SeverityError {
					mark = tui.ColorRed("✗")
				}
				_, _ = fmt.Fprintf(out, "%s %s: %s\n", mark, tui.Bold(issue.Package), issue.Message)
			}
			if workspace.HasErrors(issues) {
				return runwayerrors.Errorf(runwayerrors.KindWorkspace, "workspace validation failed")
			}
			return nil
		},
	}
	return cmd
}
