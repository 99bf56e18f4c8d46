package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hotelbook/internal/config"
	"hotelbook/internal/domain"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	ErrNotAvailable           = fmt.Errorf("database: %w", domain.ErrRoomUnavailable)
	ErrConcurrentModification = fmt.Errorf("database: booking changed concurrently: %w", domain.ErrInvalidTransition)
	ErrBookingNotFound        = fmt.Errorf("booking %w", domain.ErrNotFound)
	ErrPaymentNotFound        = fmt.Errorf("database: %w", domain.ErrPaymentNotFound)
	ErrPaymentAlreadyPaid     = errors.New("database: payment already paid")
	ErrDuplicatePayment       = errors.New("database: booking already has a payment")
)

// DB is the relational store for inventory, bookings, payments and the
// notification queue.
type DB struct {
	*sqlx.DB
	driver string
	logger *zerolog.Logger
}

// NewDB opens the configured database and applies the schema.
func NewDB(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(cfg.Postgres, logger)
	case DriverSQLite, "":
		return OpenSQLite(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a sqlite file. Transactions start as BEGIN IMMEDIATE so
// concurrent holds on the same rooms serialize on the write lock.
func OpenSQLite(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL", path)
	conn, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := New(conn, DriverSQLite, logger)
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	db.logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func openPostgres(cfg config.PostgresConfig, logger *zerolog.Logger) (*DB, error) {
	conn, err := sqlx.Open(DriverPostgres, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxConnections)
	conn.SetMaxIdleConns(cfg.MaxIdle)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := New(conn, DriverPostgres, logger)
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	db.logger.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Database initialized")
	return db, nil
}

// New wraps an existing connection without touching the schema.
func New(conn *sqlx.DB, driver string, logger *zerolog.Logger) *DB {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "database").Logger()
	return &DB{DB: conn, driver: driver, logger: &l}
}

func (db *DB) init() error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (db *DB) Driver() string {
	return db.driver
}

// Migrate creates missing tables and indexes. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if db.driver == DriverPostgres {
		statements = postgresSchema
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing query %s: %w", stmt, err)
		}
	}
	return nil
}

// Healthy reports whether the store answers. Used by readiness checks.
func (db *DB) Healthy(ctx context.Context) error {
	return db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
