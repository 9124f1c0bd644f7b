package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/cli/helpers"
	"runway.dev/runway/internal/graph"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/internal/workspace"
)

// newPlanCmd creates the plan command
func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [path]",
		Short: "Show the workspace members and the order they publish in",
		Long: `Show the workspace members, their internal dependencies and the tiers
they publish in. Every package in a tier depends only on packages in earlier
tiers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := helpers.Dir(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				dir = args[0]
			}
			ws, g, err := loadGraph(dir)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), ws, g)
			return nil
		},
	}
	return cmd
}

func loadGraph(dir string) (*workspace.Workspace, *graph.Graph, error) {
	root, err := workspace.FindRoot(dir)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Analyze(root)
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.New(ws)
	if err != nil {
		return nil, nil, err
	}
	return ws, g, nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return tui.ColorDim("(none)")
	}
	return strings.Join(names, ", ")
}

func printPlan(w io.Writer, ws *workspace.Workspace, g *graph.Graph) {
	version := ws.Version
	if version == "" {
		version = "mixed"
	}
	_, _ = fmt.Fprintf(w, "%s %s (version %s)\n\n", tui.Heading("Workspace"), ws.Root, version)

	_, _ = fmt.Fprintln(w, tui.Heading("Packages"))
	for _, name := range ws.Names() {
		pkg, _ := ws.Package(name)
		_, _ = fmt.Fprintf(w, "  %s %s\n", tui.Bold(name), pkg.Version)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, tui.Heading("Dependencies"))
	for _, name := range ws.Names() {
		_, _ = fmt.Fprintf(w, "  %s -> %s\n", name, joinOrNone(g.Dependencies(name)))
	}

	plan := g.Plan()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%s (%d packages in %d tiers)\n", tui.Heading("Publish order"), g.TotalPackages(), len(plan))
	for i, tier := range plan {
		_, _ = fmt.Fprintf(w, "  Tier %d: %s\n", i+1, strings.Join(tier, ", "))
		for _, name := range tier {
			_, _ = fmt.Fprintf(w, "    %s  dependents: %s  dependencies: %s\n",
				tui.ColorCyan(name), joinOrNone(g.Dependents(name)), joinOrNone(g.Dependencies(name)))
		}
	}
}
