package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/reena96/picstormai-sub001/pkg/config"
	"github.com/rs/zerolog/log"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one versioned SQL file
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies embedded SQL migrations to PostgreSQL
type Migrator struct {
	db            *sql.DB
	migrationsFS  fs.FS
	migrationsDir string
}

// NewMigrator opens a connection and returns a migration runner
func NewMigrator(ctx context.Context, cfg *config.DatabaseConfig, migrationsFS fs.FS, migrationsDir string) (*Migrator, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewMigratorWithDB(db, migrationsFS, migrationsDir), nil
}

// NewMigratorWithDB wraps an existing connection
func NewMigratorWithDB(db *sql.DB, migrationsFS fs.FS, migrationsDir string) *Migrator {
	return &Migrator{
		db:            db,
		migrationsFS:  migrationsFS,
		migrationsDir: migrationsDir,
	}
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[int]time.Time, []int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	var order []int
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = appliedAt
		order = append(order, version)
	}

	return applied, order, rows.Err()
}

// LoadMigrations reads every *.sql file in the migrations directory, ordered by version
func (m *Migrator) LoadMigrations() ([]*Migration, error) {
	return LoadMigrations(m.migrationsFS, m.migrationsDir)
}

// LoadMigrations parses NNN_name.sql files from fsys. Files that do not follow
// the naming scheme are skipped with a warning; duplicate versions are an error.
func LoadMigrations(fsys fs.FS, dir string) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []*Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		migration, err := parseMigrationFile(fsys, dir, entry.Name())
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping invalid migration file")
			continue
		}
		if other, dup := seen[migration.Version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", migration.Version, other, entry.Name())
		}
		seen[migration.Version] = entry.Name()
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func parseMigrationFile(fsys fs.FS, dir, filename string) (*Migration, error) {
	prefix, rest, ok := strings.Cut(filename, "_")
	if !ok || rest == ".sql" {
		return nil, fmt.Errorf("invalid migration filename format: %s", filename)
	}

	version, err := strconv.Atoi(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version from filename %s: %w", filename, err)
	}

	content, err := fs.ReadFile(fsys, path.Join(dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read migration file %s: %w", filename, err)
	}

	upSQL, downSQL := splitMigration(string(content))
	if strings.TrimSpace(upSQL) == "" {
		return nil, fmt.Errorf("migration %s has no up section", filename)
	}

	return &Migration{
		Version: version,
		Name:    strings.TrimSuffix(rest, ".sql"),
		UpSQL:   upSQL,
		DownSQL: downSQL,
	}, nil
}

// splitMigration splits file content on the Up/Down markers.
// Lines before any marker belong to the up section.
func splitMigration(content string) (string, string) {
	var upLines, downLines []string
	inDown := false

	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case upMarker:
			inDown = false
			continue
		case downMarker:
			inDown = true
			continue
		}

		if inDown {
			downLines = append(downLines, line)
		} else {
			upLines = append(upLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(upLines, "\n")), strings.TrimSpace(strings.Join(downLines, "\n"))
}

// Up runs all pending migrations and returns how many were applied
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	applied, _, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	var pending []*Migration
	for _, migration := range migrations {
		if _, ok := applied[migration.Version]; !ok {
			pending = append(pending, migration)
		}
	}

	if len(pending) == 0 {
		log.Info().Msg("No pending migrations")
		return 0, nil
	}

	log.Info().Int("count", len(pending)).Msg("Running pending migrations")

	for i, migration := range pending {
		if err := m.apply(ctx, migration.UpSQL,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", migration.Version, migration.Name); err != nil {
			return i, fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applied migration")
	}

	return len(pending), nil
}

// Down rolls back the most recently applied migration
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	_, order, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	if len(order) == 0 {
		log.Info().Msg("No migrations to roll back")
		return nil
	}

	lastVersion := order[len(order)-1]

	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}

	var target *Migration
	for _, migration := range migrations {
		if migration.Version == lastVersion {
			target = migration
			break
		}
	}

	if target == nil {
		return fmt.Errorf("migration file for version %d not found", lastVersion)
	}
	if target.DownSQL == "" {
		return fmt.Errorf("migration %d (%s) has no down section", target.Version, target.Name)
	}

	if err := m.apply(ctx, target.DownSQL,
		"DELETE FROM schema_migrations WHERE version = $1", target.Version); err != nil {
		return fmt.Errorf("failed to roll back migration %d (%s): %w", target.Version, target.Name, err)
	}

	log.Info().Int("version", target.Version).Str("name", target.Name).Msg("Rolled back migration")
	return nil
}

// Status lists every known migration with its applied state
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	applied, _, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	return buildStatus(migrations, applied), nil
}

func buildStatus(migrations []*Migration, applied map[int]time.Time) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, migration := range migrations {
		status := MigrationStatus{Version: migration.Version, Name: migration.Name}
		if at, ok := applied[migration.Version]; ok {
			at := at
			status.Applied = true
			status.AppliedAt = &at
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// apply runs body and the bookkeeping statement in one transaction
func (m *Migrator) apply(ctx context.Context, body, bookkeeping string, args ...interface{}) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Close closes the database connection
func (m *Migrator) Close() error {
	return m.db.Close()
}
