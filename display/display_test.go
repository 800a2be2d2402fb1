package display

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("json", false, "")
	return cmd
}

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv(OutputEnv, "")
	assert.False(t, ShouldOutputJSON(newCmd()))
	assert.False(t, ShouldOutputJSON(nil))

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(cmd))

	t.Setenv(OutputEnv, "json")
	assert.True(t, ShouldOutputJSON(newCmd()))
	assert.True(t, ShouldOutputJSON(nil))

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(cmd))
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, OutputJSON(&buf, map[string]int{"projects": 3}))
	assert.Equal(t, "{\n  \"projects\": 3\n}\n", buf.String())

	assert.Error(t, OutputJSON(&buf, make(chan int)))
}
