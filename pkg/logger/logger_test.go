package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	t.Run("JSON production logger", func(t *testing.T) {
		require.NoError(t, Init("warn", "json"))
		assert.True(t, Log.Core().Enabled(zapcore.WarnLevel))
		assert.False(t, Log.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("Unknown level falls back to info", func(t *testing.T) {
		require.NoError(t, Init("loud", "console"))
		assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
	})
}
