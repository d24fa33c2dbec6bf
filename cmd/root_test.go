package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)

	out, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "keynav version "+Version)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)

	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "keynav "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t)

	out, err := execute(t)

	require.NoError(t, err)
	assert.Contains(t, out, "keynav drives keyboard focus navigation")
	assert.Contains(t, out, "replay")
	assert.Contains(t, out, "frame")
}

func TestRootCmd_Config(t *testing.T) {
	t.Run("Environment overrides defaults", func(t *testing.T) {
		resetForTest(t)
		t.Setenv("KEYNAV_ENGINE_DELOSER_HISTORY_SIZE", "0")

		_, err := execute(t, "version")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "deloser_history_size")
	})

	t.Run("Config file in the working directory", func(t *testing.T) {
		resetForTest(t)
		writeFileAt(t, "keynav.yaml", "crossframe:\n  enabled: false\n")

		_, err := execute(t, "frame", "--listen", "127.0.0.1:0")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "crossframe is disabled")
	})

	t.Run("Explicit config file", func(t *testing.T) {
		resetForTest(t)
		path := writeFile(t, "custom.yaml", "crossframe:\n  ping_interval: 5s\n  peer_timeout: 1s\n")

		_, err := execute(t, "--config", path, "version")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "peer_timeout")
	})
}
