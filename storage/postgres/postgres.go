package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ storage.DatabaseStorage = (*PostgresBackend)(nil)

type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger logrus.FieldLogger
}

func NewPostgresBackend(ctx context.Context, dsn string, logger logrus.FieldLogger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &PostgresBackend{pool: pool, logger: logger}
	if err := backend.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return backend, nil
}

// Migrate applies the embedded goose migrations.
func (p *PostgresBackend) Migrate() error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	p.logger.Info("database migrations applied")
	return nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) Pool() *pgxpool.Pool {
	return p.pool
}
