// Package audit records worker-lifecycle events (spawn, respawn, crash)
// to Postgres via pgx, for operators to reconstruct supervisor history
// after the fact. Grounded on taibuivan-yomira's platform/migration
// (golang-migrate pgx5 driver) and platform/redis client-construction
// idiom (dial timeouts, startup ping), applied to pgxpool here.
package audit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending UP migrations against dsn using the
// .sql files under migrationsPath (a "file://..." source URL).
func RunMigrations(dsn, migrationsPath string) error {
	databaseURL := convertToPgx5DSN(dsn)

	migrator, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("audit: failed to initialize migrator: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := migrator.Close(); sourceErr != nil || dbErr != nil {
			slog.Warn("audit: migrator close reported errors", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("audit: migration up failed: %w", err)
	}
	return nil
}

// convertToPgx5DSN rewrites a postgres:// or postgresql:// DSN to the
// pgx5:// scheme golang-migrate's pgx/v5 driver expects.
func convertToPgx5DSN(dsn string) string {
	const pgPrefix = "postgres://"
	const pgqlPrefix = "postgresql://"
	const pgx5Prefix = "pgx5://"

	switch {
	case len(dsn) >= len(pgx5Prefix) && dsn[:len(pgx5Prefix)] == pgx5Prefix:
		return dsn
	case len(dsn) >= len(pgPrefix) && dsn[:len(pgPrefix)] == pgPrefix:
		return pgx5Prefix + dsn[len(pgPrefix):]
	case len(dsn) >= len(pgqlPrefix) && dsn[:len(pgqlPrefix)] == pgqlPrefix:
		return pgx5Prefix + dsn[len(pgqlPrefix):]
	default:
		return dsn
	}
}
