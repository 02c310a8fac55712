package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Embedded holds the schema migrations shipped with the binary.
//
//go:embed migrations/*.sql
var Embedded embed.FS

// EmbeddedDir is the directory of Embedded holding the migrations.
const EmbeddedDir = "migrations"

// Migration represents a single migration file.
type Migration struct {
	Version string
	Name    string
	Path    string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string
	Skipped []string
}

// MigrationStatusEntry is one migration in a status report.
type MigrationStatusEntry struct {
	Version   string
	Name      string
	AppliedAt *time.Time // nil for pending
}

// MigrationStatus categorizes migrations by state.
type MigrationStatus struct {
	Applied []MigrationStatusEntry // applied and shipped
	Pending []MigrationStatusEntry // shipped but not applied
	Drift   []MigrationStatusEntry // applied but no longer shipped
}

// RunMigrations applies every pending .sql file in dir of fsys, in name
// order, each in its own transaction. It stops at the first failure.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string) (*MigrationResult, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := FindMigrations(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	result := &MigrationResult{}
	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}
		if err := applyMigration(ctx, pool, fsys, m); err != nil {
			return result, fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
	}

	return result, nil
}

// GetMigrationStatus reports applied, pending and drifted migrations.
func GetMigrationStatus(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string) (*MigrationStatus, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	migrations, err := FindMigrations(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to find migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	return classify(migrations, applied), nil
}

// classify splits migrations into applied, pending and drift.
func classify(migrations []Migration, applied map[string]time.Time) *MigrationStatus {
	status := &MigrationStatus{
		Applied: []MigrationStatusEntry{},
		Pending: []MigrationStatusEntry{},
		Drift:   []MigrationStatusEntry{},
	}

	shipped := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		shipped[m.Version] = struct{}{}
		if at, ok := applied[m.Version]; ok {
			status.Applied = append(status.Applied, MigrationStatusEntry{Version: m.Version, Name: m.Name, AppliedAt: &at})
		} else {
			status.Pending = append(status.Pending, MigrationStatusEntry{Version: m.Version, Name: m.Name})
		}
	}

	for version, at := range applied {
		if _, ok := shipped[version]; ok {
			continue
		}
		status.Drift = append(status.Drift, MigrationStatusEntry{Version: version, Name: version + ".sql", AppliedAt: &at})
	}
	sort.Slice(status.Drift, func(i, j int) bool { return status.Drift[i].Version < status.Drift[j].Version })

	return status
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	return err
}

// FindMigrations lists the .sql files of dir sorted by version. Use numeric
// prefixes (001_, 002_) to order them.
func FindMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(path.Ext(name), ".sql") {
			continue
		}
		migrations = append(migrations, Migration{
			Version: normalizeVersion(name),
			Name:    name,
			Path:    path.Join(dir, name),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// normalizeVersion strips a case-insensitive .sql suffix.
func normalizeVersion(v string) string {
	if len(v) > 4 && strings.EqualFold(v[len(v)-4:], ".sql") {
		return v[:len(v)-4]
	}
	return v
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	rows, err := pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version string
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[normalizeVersion(version)] = at
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, m Migration) error {
	content, err := fs.ReadFile(fsys, m.Path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	sql := string(content)
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("migration file is empty")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit(ctx)
}
