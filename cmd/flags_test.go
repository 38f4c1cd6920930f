package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("concurrency", 4, "")
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().String("host", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestFlagHelpers(t *testing.T) {
	cmd := newFlagCommand(t, "--concurrency=8", "--dry-run", "--host=127.0.0.1")

	assert.Equal(t, 8, mustGetInt(cmd, "concurrency"))
	assert.True(t, mustGetBool(cmd, "dry-run"))
	assert.Equal(t, "127.0.0.1", mustGetString(cmd, "host"))

	n, err := mustGetPositiveInt(cmd, "concurrency")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestMustGetPositiveInt_RejectsZero(t *testing.T) {
	cmd := newFlagCommand(t, "--concurrency=0")
	_, err := mustGetPositiveInt(cmd, "concurrency")
	assert.ErrorContains(t, err, "--concurrency must be at least 1")
}

func TestMustFlag_PanicsOnWrongType(t *testing.T) {
	cmd := newFlagCommand(t)
	assert.Panics(t, func() { mustGetString(cmd, "concurrency") })
	assert.Panics(t, func() { mustGetInt(cmd, "missing") })
}
