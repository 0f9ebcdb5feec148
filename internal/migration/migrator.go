package migration

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/db/migrations"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
)

// Module provides the Migrator to Fx.
var Module = fx.Provide(New)

// Migrator runs the embedded goose migrations on postgres. Other drivers
// get their schema from the bun models instead.
type Migrator struct {
	bun     *bun.DB
	db      *sql.DB
	dialect string
	logger  *zap.Logger
}

// New constructs a migrator on the writer pool.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	return Open(cfg.Database.Driver, conns.Writer, logger)
}

// Open builds a Migrator for an existing connection.
func Open(driver string, db *bun.DB, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{bun: db, db: db.DB, dialect: gooseDialect(driver), logger: logger}, nil
}

func (m *Migrator) prepare() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect(m.dialect)
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if m.dialect == "" {
		if err := database.CreateSchema(ctx, m.bun); err != nil {
			return err
		}
		m.logger.Info("schema created from models")

		return nil
	}
	if err := m.prepare(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, migrations.Dir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	m.logger.Info("migrations applied")

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if m.dialect == "" {
		if !all {
			return errors.New("step rollback needs postgres migrations; use --all")
		}
		if err := database.DropSchema(ctx, m.bun); err != nil {
			return err
		}
		m.logger.Info("schema dropped")

		return nil
	}
	if err := m.prepare(); err != nil {
		return err
	}
	if all {
		if err := goose.DownToContext(ctx, m.db, migrations.Dir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db, migrations.Dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

// Version reports the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if m.dialect == "" {
		return 0, errors.New("schema versions are tracked on postgres only")
	}
	if err := m.prepare(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, m.db)
}

func gooseDialect(driver string) string {
	if database.NormalizeDriver(driver) == "postgres" {
		return "postgres"
	}
	return ""
}

func isNoMigrationErr(err error) bool {
	return errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles)
}
