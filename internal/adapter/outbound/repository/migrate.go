package repository

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations. The migration files
// are embedded at compile time and executed in order; golang-migrate tracks
// applied versions in its schema_migrations table.
//
// connURL must be a postgres:// or postgresql:// URL.
func RunMigrations(connURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slogger.WarnNoCtx("Failed to close migration source", slogger.Fields{"error": srcErr.Error()})
		}
		if dbErr != nil {
			slogger.WarnNoCtx("Failed to close migration database connection", slogger.Fields{"error": dbErr.Error()})
		}
	}()

	// A dirty row means an earlier run died mid-migration. Refuse to pile
	// more changes on top until someone inspects the schema.
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to check migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database in dirty state at version %d, manual cleanup required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slogger.InfoNoCtx("No new migrations to apply", slogger.Fields{"version": version})
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, _, err := m.Version()
	if err != nil {
		slogger.WarnNoCtx("Migrations applied but version check failed", slogger.Fields{"error": err.Error()})
		return nil
	}

	slogger.InfoNoCtx("Migrations completed", slogger.Fields{"version": applied})
	return nil
}

// MigrationVersion reports the currently applied schema version and whether
// the database is in a dirty state. Returns version 0 on a fresh database.
func MigrationVersion(connURL string) (uint, bool, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return 0, false, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to check migration version: %w", err)
	}
	return version, dirty, nil
}

// toMigrateURL rewrites a postgres:// URL to the pgx5:// scheme the
// golang-migrate pgx v5 driver registers under.
func toMigrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %s", u.Scheme)
	}
}
