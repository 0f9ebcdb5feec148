package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/fulfillment/internal/config"
)

func TestBuildConfig(t *testing.T) {
	t.Run("should default to json at info level", func(t *testing.T) {
		cfg := buildConfig(config.Observability{LogLevel: "verbose"})

		assert.Equal(t, "json", cfg.Encoding)
		assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
		assert.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
	})

	t.Run("should switch to the development console encoder", func(t *testing.T) {
		cfg := buildConfig(config.Observability{LogLevel: "DEBUG", LogEncoding: " Console "})

		assert.Equal(t, "console", cfg.Encoding)
		assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())
	})
}

func TestBuild(t *testing.T) {
	logger, err := Build(config.Observability{
		ServiceName: "fulfillment",
		Environment: "test",
		LogLevel:    "warn",
	})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
