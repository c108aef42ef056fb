package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fastprodman/topupledger/internal/infra/logging"
	"github.com/fastprodman/topupledger/internal/infra/pgutils"
	"github.com/fastprodman/topupledger/pkg/envconf"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

// Seed data keeps its own version table so it never collides with the
// schema version sequence.
const seedMigrationsTable = "seed_migrations"

type migratorConfig struct {
	DSN      string `env:"PG_DSN"`
	LogLevel string `env:"APP_LOG_LEVEL" default:"info"`
	AppEnv   string `env:"APP_ENV" default:"PROD"`
}

func main() {
	err := migrateAll()
	if err != nil {
		zap.L().Error("migration run failed", zap.Error(err))
		_ = zap.L().Sync()
		fmt.Fprintf(os.Stderr, "migration run failed: %v\n", err)
		os.Exit(1)
	}

	zap.L().Info("migration run finished successfully")
	_ = zap.L().Sync()
}

func migrateAll() error {
	_ = godotenv.Load()

	cfg := new(migratorConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := sql.Open(pgutils.DriverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	err = db.Ping()
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	err = runMigrations(db, baseFS, "migrations", &postgres.Config{})
	if err != nil {
		return fmt.Errorf("base migrations failed: %w", err)
	}

	logger.Info("base migrations applied")

	if cfg.AppEnv == "DEV" {
		err = runMigrations(db, devFS, "test_data", &postgres.Config{MigrationsTable: seedMigrationsTable})
		if err != nil {
			return fmt.Errorf("dev seed migrations failed: %w", err)
		}

		logger.Info("dev seed migrations applied")
	}

	return nil
}

func runMigrations(db *sql.DB, fsys embed.FS, dir string, pgCfg *postgres.Config) error {
	driver, err := postgres.WithInstance(db, pgCfg)
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	return up(driver, fsys, dir)
}

func up(driver database.Driver, fsys embed.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}
