package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crossflow/internal/observability"
)

// newPristineRootCmd returns a root command with no state carried over from
// earlier tests. Viper is package-global, so it has to be reset by hand.
func newPristineRootCmd(t *testing.T) *cobra.Command {
	t.Helper()
	viper.Reset()
	observability.ResetForTest()
	t.Cleanup(viper.Reset)
	return NewRootCommand()
}

func TestRootCmd_VersionFlag(t *testing.T) {
	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--version"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "crossflow version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "cross-file static taint analyzer")
}

func TestVersionCmd(t *testing.T) {
	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"version"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "crossflow version "+Version)
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"frobnicate"})

	err := testRootCmd.ExecuteContext(context.Background())

	assert.Error(t, err)
}
