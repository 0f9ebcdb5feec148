package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/database/dbtest"
)

func TestNormalizeDriver(t *testing.T) {
	for in, want := range map[string]string{
		"postgres":   "postgres",
		"PostgreSQL": "postgres",
		" pg ":       "postgres",
		"mariadb":    "mysql",
		"sqlite3":    "sqlite",
		"oracle":     "oracle",
	} {
		assert.Equal(t, want, database.NormalizeDriver(in), in)
	}
}

func TestSlowQueryHook(t *testing.T) {
	run := func(t *testing.T, threshold time.Duration) *observer.ObservedLogs {
		t.Helper()
		core, logs := observer.New(zapcore.DebugLevel)
		conns := dbtest.NewSQLite(t)
		conns.Writer.AddQueryHook(database.NewSlowQueryHook(zap.New(core), threshold))

		var n int
		require.NoError(t, conns.Writer.NewRaw("SELECT 1").Scan(t.Context(), &n))
		_, err := conns.Writer.ExecContext(t.Context(), "SELECT * FROM missing_table")
		require.Error(t, err)
		return logs
	}

	t.Run("should warn about statements over the threshold", func(t *testing.T) {
		logs := run(t, time.Nanosecond)

		slow := logs.FilterMessage("slow query").All()
		require.NotEmpty(t, slow)
		assert.Equal(t, zapcore.WarnLevel, slow[0].Level)
		assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
	})

	t.Run("should stay quiet for fast statements", func(t *testing.T) {
		logs := run(t, time.Hour)

		assert.Zero(t, logs.FilterMessage("slow query").Len())
		assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
	})
}

func TestNew(t *testing.T) {
	t.Run("should share one pool when no replica is configured", func(t *testing.T) {
		var cfg config.Config
		cfg.Database.Driver = "sqlite3"
		cfg.Database.WriterDSN = "file:new_shared?mode=memory&cache=shared"
		cfg.Database.ReaderDSN = cfg.Database.WriterDSN
		cfg.Database.SlowQueryThreshold = time.Second

		lc := fxtest.NewLifecycle(t)
		conns, err := database.New(lc, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, conns.HasReplica())
		assert.Same(t, conns.Writer, conns.Reader)

		lc.RequireStart().RequireStop()
	})

	t.Run("should open a separate reader pool", func(t *testing.T) {
		var cfg config.Config
		cfg.Database.Driver = "sqlite"
		cfg.Database.WriterDSN = "file:new_writer?mode=memory&cache=shared"
		cfg.Database.ReaderDSN = "file:new_reader?mode=memory&cache=shared"

		lc := fxtest.NewLifecycle(t)
		conns, err := database.New(lc, cfg, zap.NewNop())
		require.NoError(t, err)
		assert.True(t, conns.HasReplica())

		lc.RequireStart().RequireStop()
	})

	t.Run("should reject unknown drivers and empty DSNs", func(t *testing.T) {
		var cfg config.Config
		cfg.Database.Driver = "oracle"
		_, err := database.New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
		assert.ErrorContains(t, err, "unsupported database driver")

		cfg.Database.Driver = "sqlite"
		_, err = database.New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
		assert.ErrorContains(t, err, "empty DSN")
	})
}
