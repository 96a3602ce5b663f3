package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Postgres is the Datastore implementation backed by a single *sqlx.DB,
// modeled on libs/datastore.Postgres.
type Postgres struct {
	db            *sqlx.DB
	migrationsURL string
}

// NewPostgres opens a connection pool against databaseURL and wraps it as a
// Datastore. migrationsURL points at a file:// source understood by
// golang-migrate, matching libs/datastore.Postgres.NewMigrate.
func NewPostgres(databaseURL, migrationsURL string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(40)
	db.SetMaxIdleConns(20)

	return &Postgres{db: db, migrationsURL: migrationsURL}, nil
}

// RawDB returns the underlying sqlx.DB handle.
func (pg *Postgres) RawDB() *sqlx.DB { return pg.db }

// Migrate applies all pending schema migrations.
func (pg *Postgres) Migrate() error {
	driver, err := postgres.WithInstance(pg.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("storage: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(pg.migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("storage: migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		sentry.CaptureException(err)
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}

// BeginTx starts a transaction bound to ctx.
func (pg *Postgres) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return pg.db.BeginTxx(ctx, nil)
}

// RollbackTx rolls back tx, swallowing sql.ErrTxDone (already
// committed/rolled back) but reporting anything else to Sentry, matching
// libs/datastore.Postgres.RollbackTx's defer-safe shape.
func (pg *Postgres) RollbackTx(tx *sqlx.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		sentry.CaptureException(err)
	}
}

func logQueryErr(ctx context.Context, op string, err error) error {
	zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Msg("storage operation failed")
	return err
}
