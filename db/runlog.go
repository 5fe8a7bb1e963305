package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"rsstoot/models"
)

// The persisted summary is bounded to the first lines of the run detail.
const maxSummaryLines = 40

// RecordRun appends an immutable run-log row. Rows are never mutated.
func (s *Store) RecordRun(ctx context.Context, trigger string, outcome models.RunOutcome, durationMs int64) error {
	lines := outcome.Lines
	if len(lines) > maxSummaryLines {
		lines = lines[:maxSummaryLines]
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertInto("run_log").
		Cols("triggered", "posted", "skipped", "errors", "duration_ms", "summary").
		Values(trigger, outcome.Posted, outcome.Skipped, outcome.Errors, durationMs, strings.Join(lines, "\n")).
		Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

const runCols = "id, triggered, posted, skipped, errors, duration_ms, summary, ran_at"

// LatestRun returns the most recent run record, or nil if none exist.
func (s *Store) LatestRun(ctx context.Context) (*models.RunRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(runCols).From("run_log")
	sb.OrderBy("id").Desc()
	sb.Limit(1)
	query, args := sb.Build()

	var r models.RunRecord
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&r.ID, &r.Trigger, &r.Posted, &r.Skipped, &r.Errors, &r.DurationMs, &r.Summary, &r.RanAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &r, nil
}

// RecentRuns returns up to limit run records in reverse chronological order.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(runCols).From("run_log")
	sb.OrderBy("id").Desc()
	sb.Limit(limit)
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run log: %w", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Posted, &r.Skipped, &r.Errors, &r.DurationMs, &r.Summary, &r.RanAt); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ClearRuns deletes the whole run log. Destructive and immediate.
func (s *Store) ClearRuns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM run_log"); err != nil {
		return fmt.Errorf("clear run log: %w", err)
	}
	return nil
}
