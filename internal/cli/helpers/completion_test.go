package helpers_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway.dev/runway/internal/cli/helpers"
	"runway.dev/runway/testhelpers"
)

func TestCompletePackages(t *testing.T) {
	root, err := testhelpers.WriteWorkspace(t.TempDir(), "1.0.0", []testhelpers.CrateSpec{{Name: "core"}, {Name: "app"}})
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.Flags().String("cwd", "", "")
	require.NoError(t, cmd.Flags().Set("cwd", root))

	names, directive := helpers.CompletePackages(cmd, nil, "")
	assert.Equal(t, []string{"app", "core"}, names)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	require.NoError(t, cmd.Flags().Set("cwd", t.TempDir()))
	_, directive = helpers.CompletePackages(cmd, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveError, directive)
}

func TestCompleteFormats(t *testing.T) {
	formats, _ := helpers.CompleteFormats(nil, nil, "")
	assert.Contains(t, formats, "deb")

	formats, _ = helpers.CompleteFormats(nil, nil, "deb,r")
	assert.Contains(t, formats, "deb,rpm")
}
