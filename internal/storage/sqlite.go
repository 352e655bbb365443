/*
Package storage provides SQLite database migrations and helper functions.

This file contains schema definitions, migration logic, and the timestamp and
JSON encoding used by every table.
*/
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// timeLayout is a fixed-width UTC layout so timestamps compare correctly
// as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
		{version: 2, name: "verification_metrics", up: s.migration002VerificationMetrics},
	}

	for _, m := range migrations {
		if version < m.version {
			s.logger.Info("running migration", zap.Int("version", m.version), zap.String("name", m.name))
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(m migration) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name)
	return err
}

// execAll runs schema statements in order.
func (s *SQLiteStorage) execAll(stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// migration001InitialSchema creates the pattern and tool analytics tables.
func (s *SQLiteStorage) migration001InitialSchema() error {
	return s.execAll([]string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			confidence REAL NOT NULL,
			updated_at TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_user ON patterns(user_id)`,

		`CREATE TABLE IF NOT EXISTS pattern_executions (
			id TEXT PRIMARY KEY,
			pattern_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			executed_at TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_executions_pattern ON pattern_executions(pattern_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_executions_time ON pattern_executions(executed_at DESC)`,

		`CREATE TABLE IF NOT EXISTS tool_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool_name TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_usage_tool ON tool_usage(tool_name)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_usage_timestamp ON tool_usage(timestamp DESC)`,

		`CREATE TABLE IF NOT EXISTS tool_combinations (
			combination_key TEXT PRIMARY KEY,
			usage_count INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			data TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS feedback_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL DEFAULT '',
			metric_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
	})
}

// migration002VerificationMetrics creates the verification metrics stream.
func (s *SQLiteStorage) migration002VerificationMetrics() error {
	return s.execAll([]string{
		`CREATE TABLE IF NOT EXISTS execution_metrics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			scenario TEXT NOT NULL,
			execution_number INTEGER NOT NULL,
			phase TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_metrics_stream ON execution_metrics(user_id, scenario, execution_number)`,
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' || r == '(' {
			return stmt[:i]
		}
	}
	return stmt
}
