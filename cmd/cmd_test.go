// cmd/cmd_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("registers subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range rootCmd.Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["run"], "run command should be registered")
		assert.True(t, names["serve"], "serve command should be registered")
	})

	t.Run("carries the build version", func(t *testing.T) {
		assert.Equal(t, Version, rootCmd.Version)
	})
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := newRunCmd()

	for _, name := range []string{"platform", "id", "password", "aux-id", "aux-password", "url", "headless"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag %q should exist", name)
	}

	t.Run("required flags are annotated", func(t *testing.T) {
		for _, name := range []string{"platform", "id", "password"} {
			f := runCmd.Flags().Lookup(name)
			require.NotNil(t, f)
			assert.Contains(t, f.Annotations, "cobra_annotation_bash_completion_one_required_flag",
				"flag %q should be required", name)
		}
	})
}
