package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// HasPosted reports whether the (feed, account, item) triple has already
// been published. The posted_items table is the source of truth for
// "unseen".
func (s *Store) HasPosted(ctx context.Context, feedID, accountID int64, guid string) (bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("1").From("posted_items").
		Where(sb.Equal("feed_id", feedID), sb.Equal("account_id", accountID), sb.Equal("item_guid", guid)).
		Limit(1)
	query, args := sb.Build()

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("ledger lookup: %w", err)
}

// RecordPosted inserts a ledger entry for the triple. The insert is
// idempotent: a duplicate triple is not an error and reports inserted
// as false.
func (s *Store) RecordPosted(ctx context.Context, feedID, accountID int64, guid string) (bool, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertIgnoreInto("posted_items").
		Cols("feed_id", "account_id", "item_guid").
		Values(feedID, accountID, guid).
		Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PostedCount returns the number of ledger entries for a feed, or for
// an account when feedID is zero.
func (s *Store) PostedCount(ctx context.Context, feedID, accountID int64) (int64, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)").From("posted_items")
	if feedID != 0 {
		sb.Where(sb.Equal("feed_id", feedID))
	}
	if accountID != 0 {
		sb.Where(sb.Equal("account_id", accountID))
	}
	query, args := sb.Build()

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger count: %w", err)
	}
	return n, nil
}
