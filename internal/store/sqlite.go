package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite3drv "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/battlebrief/bulwark/internal/logger"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SQLiteStore struct {
	db           *sql.DB
	retentionCap int
	log          *logger.Logger
}

// DSN builds the connection string for a database file. WAL and the busy
// timeout let several requests write concurrently.
func DSN(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=on&_txlock=immediate"
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// retentionCap is the number of summaries kept per user; zero or less keeps all.
func NewSQLiteStore(ctx context.Context, path string, retentionCap int, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retentionCap: retentionCap, log: log.With("component", "SQLiteStore")}
	if err = s.migrate(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(path string) error {
	dbInstance, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	srcInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcInstance, "sqlite3", dbInstance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		s.log.Warn("Failed to fetch migration version", "error", versionErr, "path", path)
	}

	switch {
	case upErr == nil:
		s.log.Info("Database migrated", "path", path, "version", version, "dirty", dirty)
	case errors.Is(upErr, migrate.ErrNoChange):
		s.log.Debug("No migrations to apply", "path", path, "version", version)
	default:
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RetentionCap() int {
	return s.retentionCap
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3drv.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3drv.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
