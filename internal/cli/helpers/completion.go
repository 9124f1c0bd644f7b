package helpers

import (
	"strings"

	"github.com/spf13/cobra"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/workspace"
)

// CompletePackages is a helper for cobra.ValidArgsFunction and RegisterFlagCompletionFunc
// that returns the members of the current workspace.
func CompletePackages(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	dir, err := Dir(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	root, err := workspace.FindRoot(dir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	ws, err := workspace.Analyze(root)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return ws.Names(), cobra.ShellCompDirectiveNoFileComp
}

// CompleteFormats completes the last entry of a comma-separated format list
func CompleteFormats(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix := ""
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
	}
	out := make([]string, 0, len(platform.All))
	for _, f := range platform.All {
		out = append(out, prefix+string(f))
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}
