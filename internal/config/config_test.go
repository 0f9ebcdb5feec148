package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Inventory.Driver)
	assert.Equal(t, "-", cfg.Fulfillment.ZoneSeparator)
	assert.Equal(t, time.Hour, cfg.Fulfillment.ManifestCacheTTL)
	assert.Equal(t, "fulfillment.events", cfg.Messaging.Kafka.Topic)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
}

func TestNew_Overrides(t *testing.T) {
	t.Run("should disable drivers when features are off", func(t *testing.T) {
		t.Setenv("CACHE_ENABLED", "false")
		t.Setenv("MESSAGING_ENABLED", "false")

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "noop", cfg.Cache.Driver)
		assert.Equal(t, "noop", cfg.Messaging.Driver)
	})

	t.Run("should require a base url for the http inventory driver", func(t *testing.T) {
		t.Setenv("INVENTORY_DRIVER", "HTTP")

		_, err := New()
		require.Error(t, err)

		t.Setenv("INVENTORY_BASE_URL", "http://inventory.local")
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "http", cfg.Inventory.Driver)
	})

	t.Run("should reject unknown inventory drivers", func(t *testing.T) {
		t.Setenv("INVENTORY_DRIVER", "carrier-pigeon")

		_, err := New()
		require.Error(t, err)
	})

	t.Run("should allow an empty zone separator", func(t *testing.T) {
		t.Setenv("PICKING_ZONE_SEPARATOR", "")
		t.Setenv("ALLOCATION_CHECK_SCHEDULE", "  ")

		cfg, err := New()
		require.NoError(t, err)
		assert.Empty(t, cfg.Fulfillment.ZoneSeparator)
		assert.Empty(t, cfg.Fulfillment.AllocationCheckSchedule)
	})

	t.Run("should clamp the trace sample ratio", func(t *testing.T) {
		t.Setenv("OBS_TRACE_SAMPLE_RATIO", "4")
		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, 1.0, cfg.Observability.TraceSampleRatio)

		t.Setenv("OBS_TRACE_SAMPLE_RATIO", "-0.5")
		cfg, err = New()
		require.NoError(t, err)
		assert.Zero(t, cfg.Observability.TraceSampleRatio)
	})

	t.Run("should fall back on unparsable durations", func(t *testing.T) {
		t.Setenv("DB_SLOW_QUERY_THRESHOLD", "soon")
		t.Setenv("INVENTORY_TIMEOUT", "2s")

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.Database.SlowQueryThreshold)
		assert.Equal(t, 2*time.Second, cfg.Inventory.Timeout)
	})
}

func TestGetEnvAsStringSlice(t *testing.T) {
	t.Setenv("TEST_BROKERS", " a:1, ,b:2 ")
	assert.Equal(t, []string{"a:1", "b:2"}, getEnvAsStringSlice("TEST_BROKERS", nil))
	assert.Equal(t, []string{"x"}, getEnvAsStringSlice("TEST_MISSING_BROKERS", []string{"x"}))
}
