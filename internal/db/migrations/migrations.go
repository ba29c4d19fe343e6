package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID        string
	Name      string
	UpSQL     string
	DownSQL   string
	CreatedAt time.Time
}

// All lists every migration in apply order
var All = []*Migration{
	InitialSchema,
	Retention,
}

// Migrator manages database migrations
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db, log: slog.Default().With("component", "migrations")}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// GetAppliedMigrations returns the set of applied migration names
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			m.log.Warn("error closing rows", "err", cerr)
		}
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations not yet applied, in order
func (m *Migrator) Pending(migrations []*Migration) ([]*Migration, error) {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	var pending []*Migration
	for _, migration := range migrations {
		if !applied[migration.Name] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// executeMigration runs stmt and the bookkeeping statement in one transaction
func (m *Migrator) executeMigration(migration *Migration, stmt, recordQuery string, recordArgs ...interface{}) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.log.Warn("failed to rollback transaction", "migration", migration.Name, "err", err)
		}
	}()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}

	if _, err := tx.Exec(recordQuery, recordArgs...); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(migration *Migration) error {
	return m.executeMigration(
		migration,
		migration.UpSQL,
		"INSERT INTO migrations (name) VALUES ($1)",
		migration.Name,
	)
}

// RollbackMigration rolls back a single migration
func (m *Migrator) RollbackMigration(migration *Migration) error {
	return m.executeMigration(
		migration,
		migration.DownSQL,
		"DELETE FROM migrations WHERE name = $1",
		migration.Name,
	)
}

// Migrate applies all pending migrations and returns how many were applied
func (m *Migrator) Migrate(migrations []*Migration) (int, error) {
	if err := m.Initialize(); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	pending, err := m.Pending(migrations)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i, migration := range pending {
		if err := m.ApplyMigration(migration); err != nil {
			return i, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		m.log.Info("applied migration", "migration", migration.Name)
	}

	return len(pending), nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(migrations []*Migration) error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			last = migrations[i]
			break
		}
	}

	if last == nil {
		return fmt.Errorf("no migrations to rollback")
	}

	if err := m.RollbackMigration(last); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}

	m.log.Info("rolled back migration", "migration", last.Name)
	return nil
}
