package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Runner применяет встроенные SQL-миграции схемы при старте сервиса.
// Источник миграций - embed.FS с парами *.up.sql / *.down.sql.
type Runner struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

// NewRunner создает Runner поверх пула соединений и файлов миграций.
func NewRunner(pool *pgxpool.Pool, fsys fs.FS) *Runner {
	return &Runner{pool: pool, fsys: fsys}
}

// Apply доводит схему до последней версии и возвращает ее номер.
// Повторный запуск без новых миграций - не ошибка.
func (r *Runner) Apply() (uint, error) {
	m, err := r.open()
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply schema migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema is dirty at version %d", version)
	}

	log.Info().Uint("version", version).Msg("schema is up to date")
	return version, nil
}

// Rollback откатывает все миграции. Вызывается только вручную,
// через флаг -migrate-down при запуске сервера.
func (r *Runner) Rollback() error {
	m, err := r.open()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back schema migrations: %w", err)
	}

	log.Info().Msg("schema migrations rolled back")
	return nil
}

func (r *Runner) open() (*migrate.Migrate, error) {
	// database/sql поверх того же pgx-пула, без отдельного соединения
	db := stdlib.OpenDBFromPool(r.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:       "schema_migrations",
		MigrationsTableQuoted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.LockTimeout = 30 * time.Second
	return m, nil
}
