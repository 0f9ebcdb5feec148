package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("should expose the operational commands", func(t *testing.T) {
		root := NewRootCommand()

		for _, path := range [][]string{
			{"start"},
			{"run"},
			{"migrate", "up"},
			{"migrate", "down"},
			{"migrate", "status"},
			{"seed"},
			{"worker", "run"},
			{"check", "allocations"},
		} {
			cmd, _, err := root.Find(path)
			require.NoError(t, err, path)
			assert.NotNil(t, cmd.RunE, path)
		}
	})

	t.Run("should default the shutdown grace period", func(t *testing.T) {
		start, _, err := NewRootCommand().Find([]string{"start"})
		require.NoError(t, err)
		assert.Equal(t, defaultShutdownTimeout, shutdownTimeout(start))
	})

	t.Run("should default rollback to a single step", func(t *testing.T) {
		down, _, err := NewRootCommand().Find([]string{"migrate", "down"})
		require.NoError(t, err)

		steps, err := down.Flags().GetInt("steps")
		require.NoError(t, err)
		assert.Equal(t, 1, steps)

		all, err := down.Flags().GetBool("all")
		require.NoError(t, err)
		assert.False(t, all)
	})
}
