package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/migrations"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// MigrateModule runs embedded goose migrations on startup when
// AUTO_MIGRATE is set.
var MigrateModule = fx.Module("migrate",
	fx.Invoke(RunMigrations),
)

// RunMigrations applies all pending migrations from the embedded FS.
func RunMigrations(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	log = log.With(logger.Scope("migrate"))

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	before, _ := goose.GetDBVersionContext(context.Background(), db)
	if err := goose.UpContext(context.Background(), db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after, _ := goose.GetDBVersionContext(context.Background(), db)

	if after != before {
		log.Info("migrations applied",
			slog.Int64("from", before),
			slog.Int64("to", after),
		)
	}
	return nil
}
