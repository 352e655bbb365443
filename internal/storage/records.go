package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// Write persists records in one transaction.
func (s *SQLiteStorage) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usable() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		if err := writeRecord(ctx, tx, r); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func writeRecord(ctx context.Context, tx *sql.Tx, r Record) error {
	if !r.valid() {
		return fmt.Errorf("record has no %s payload", r.Kind)
	}

	switch r.Kind {
	case KindPattern:
		p := r.Pattern
		data, err := toJSON(p)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO patterns (id, user_id, name, confidence, updated_at, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				confidence = excluded.confidence,
				updated_at = excluded.updated_at,
				data = excluded.data
		`, p.ID, p.UserID, p.Name, p.Confidence, formatTime(p.UpdatedAt), data)
		return err

	case KindPatternExecution:
		e := r.Execution
		data, err := toJSON(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pattern_executions (id, pattern_id, user_id, executed_at, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data
		`, e.ID, e.PatternID, e.UserID, formatTime(e.ExecutedAt), data)
		return err

	case KindToolUsage:
		u := r.Usage
		data, err := toJSON(u)
		if err != nil {
			return err
		}
		success := 0
		if u.Success {
			success = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_usage (tool_name, user_id, success, timestamp, data)
			VALUES (?, ?, ?, ?, ?)
		`, u.ToolName, u.UserID, success, formatTime(u.Timestamp), data)
		return err

	case KindToolCombination:
		c := r.Combination
		data, err := toJSON(c)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_combinations (combination_key, usage_count, updated_at, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(combination_key) DO UPDATE SET
				usage_count = excluded.usage_count,
				updated_at = excluded.updated_at,
				data = excluded.data
		`, c.Key, c.UsageCount, formatTime(c.UpdatedAt), data)
		return err

	case KindFeedbackMetric:
		m := r.Feedback
		data, err := toJSON(m)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feedback_metrics (user_id, metric_type, timestamp, data)
			VALUES (?, ?, ?, ?)
		`, m.UserID, m.MetricType, formatTime(m.Timestamp), data)
		return err

	case KindExecutionMetrics:
		m := r.Metrics
		data, err := toJSON(m)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO execution_metrics (id, user_id, scenario, execution_number, phase, timestamp, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, m.ID, m.UserID, string(m.Scenario), m.ExecutionNumber, string(m.Phase), formatTime(m.Timestamp), data)
		return err
	}
	return fmt.Errorf("unknown record kind %q", r.Kind)
}

// Load reads back everything persisted. Rows that fail to decode are
// skipped with a warning.
func (s *SQLiteStorage) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap Snapshot
	if !s.usable() {
		return snap, nil
	}

	var err error
	if snap.Patterns, err = loadRows[learning.WorkflowPattern](ctx, s,
		"SELECT data FROM patterns ORDER BY rowid"); err != nil {
		return snap, err
	}
	if snap.Executions, err = loadRows[learning.PatternExecution](ctx, s,
		"SELECT data FROM pattern_executions ORDER BY executed_at, rowid"); err != nil {
		return snap, err
	}
	if snap.Usages, err = loadRows[analytics.ToolUsage](ctx, s,
		"SELECT data FROM tool_usage ORDER BY timestamp, id"); err != nil {
		return snap, err
	}
	if snap.Combinations, err = loadRows[analytics.ToolCombination](ctx, s,
		"SELECT data FROM tool_combinations ORDER BY rowid"); err != nil {
		return snap, err
	}
	if snap.FeedbackMetrics, err = loadRows[analytics.FeedbackMetric](ctx, s,
		"SELECT data FROM feedback_metrics ORDER BY timestamp, id"); err != nil {
		return snap, err
	}
	if snap.Metrics, err = loadRows[verification.ExecutionMetrics](ctx, s,
		"SELECT data FROM execution_metrics ORDER BY execution_number, timestamp"); err != nil {
		return snap, err
	}
	return snap, nil
}

// loadRows decodes the single JSON column of query into T. Caller holds s.mu.
func loadRows[T any](ctx context.Context, s *SQLiteStorage, query string) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			s.logger.Warn("failed to scan row", zap.Error(err))
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			s.logger.Warn("failed to decode row", zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// tables lists every data table; Stats and Clear walk it.
var tables = []string{
	"patterns",
	"pattern_executions",
	"tool_usage",
	"tool_combinations",
	"feedback_metrics",
	"execution_metrics",
}

// Stats reports row counts per table.
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Path: s.dbPath, Enabled: s.usable()}
	if !st.Enabled {
		return st, nil
	}

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return st, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	st.Patterns = counts["patterns"]
	st.PatternExecutions = counts["pattern_executions"]
	st.ToolUsages = counts["tool_usage"]
	st.Combinations = counts["tool_combinations"]
	st.FeedbackMetrics = counts["feedback_metrics"]
	st.ExecutionMetrics = counts["execution_metrics"]
	return st, nil
}

// Cleanup removes pattern executions, tool usage and feedback metrics older
// than retention and returns the number of deleted rows.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usable() || retention <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().Add(-retention))
	queries := []string{
		"DELETE FROM pattern_executions WHERE executed_at < ?",
		"DELETE FROM tool_usage WHERE timestamp < ?",
		"DELETE FROM feedback_metrics WHERE timestamp < ?",
	}

	var deleted int64
	for _, q := range queries {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("failed to clean up: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, nil
}

// Clear removes all persisted state.
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usable() {
		return nil
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
