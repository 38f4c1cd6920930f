package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey is the advisory lock shared by every facewatch process
// that migrates the schema (serve replicas and the migrate command).
const migrationLockKey int64 = 0x66_61_63_65_77 // "facew"

// Migration is one embedded schema migration and whether it has run.
type Migration struct {
	Version   string
	Applied   bool
	AppliedAt time.Time
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// embeddedVersions returns the embedded migration file names, oldest first.
func embeddedVersions() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, e.Name())
		}
	}
	slices.Sort(versions)
	return versions, nil
}

func appliedVersions(ctx context.Context, q queryer) (map[string]time.Time, error) {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := q.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			v  string
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// Migrations lists every embedded migration with its state, oldest first.
func (p *Pool) Migrations(ctx context.Context) ([]Migration, error) {
	versions, err := embeddedVersions()
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, p.db)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(versions))
	for _, v := range versions {
		at, ok := applied[v]
		out = append(out, Migration{Version: v, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

// Migrate applies pending migrations in version order, each in its own
// transaction, and returns how many ran. Concurrent callers wait on a
// session advisory lock, so every migration runs once.
func (p *Pool) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	logger = logging.OrDiscard(logger)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// Unlock on a fresh context: ctx may already be cancelled.
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			logger.Warn("failed to release migration lock", "error", err)
		}
	}()

	versions, err := embeddedVersions()
	if err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return 0, err
	}

	var pending []string
	for _, v := range versions {
		if _, ok := applied[v]; !ok {
			pending = append(pending, v)
		}
	}
	if len(pending) == 0 {
		logger.Debug("schema up to date", "migrations", len(versions))
		return 0, nil
	}
	logger.Info("applying migrations", "pending", len(pending), "applied", len(applied))

	for i, version := range pending {
		if err := applyMigration(ctx, conn, version); err != nil {
			return i, err
		}
		logger.Info("applied migration", "version", version)
	}
	return len(pending), nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, version string) error {
	content, err := migrationsFS.ReadFile("migrations/" + version)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
