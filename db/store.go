package db

import (
	"context"
	"database/sql"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"rsstoot/models"
)

// Store handles all database operations with a shared connection pool.
// Every method scopes its own statement; no transaction is held across
// a network call.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at path. The schema must already be
// migrated (see Migrate).
func New(path string) (*Store, error) {
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const feedCols = "id, url, name, hashtags, active, last_fetched_at, last_status, created_at"

func scanFeed(row interface{ Scan(...any) error }) (models.Feed, error) {
	var f models.Feed
	var lastFetched sql.NullTime
	if err := row.Scan(&f.ID, &f.URL, &f.Name, &f.Hashtags, &f.Active, &lastFetched, &f.LastStatus, &f.CreatedAt); err != nil {
		return models.Feed{}, err
	}
	if lastFetched.Valid {
		t := lastFetched.Time
		f.LastFetchedAt = &t
	}
	return f, nil
}

// CreateFeed inserts a new feed and returns its id. The URL is unique;
// inserting a duplicate returns an error.
func (s *Store) CreateFeed(ctx context.Context, url, name, hashtags string) (int64, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	query, args := ib.InsertInto("feeds").Cols("url", "name", "hashtags").Values(url, name, hashtags).Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert feed: %w", err)
	}
	return res.LastInsertId()
}

// UpdateFeed rewrites a feed's editable fields.
func (s *Store) UpdateFeed(ctx context.Context, id int64, url, name, hashtags string) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").
		Set(ub.Assign("url", url), ub.Assign("name", name), ub.Assign("hashtags", hashtags)).
		Where(ub.Equal("id", id))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	return nil
}

// GetFeed returns one feed by id, or sql.ErrNoRows.
func (s *Store) GetFeed(ctx context.Context, id int64) (models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedCols).From("feeds").Where(sb.Equal("id", id))
	query, args := sb.Build()

	return scanFeed(s.db.QueryRowContext(ctx, query, args...))
}

// Feeds returns every feed, newest first, for admin listings.
func (s *Store) Feeds(ctx context.Context) ([]models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedCols).From("feeds")
	sb.OrderBy("created_at").Desc()
	return s.queryFeeds(ctx, sb)
}

// ActiveFeeds returns active feeds in stable ascending id order, the
// order a run pass enumerates them in.
func (s *Store) ActiveFeeds(ctx context.Context) ([]models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedCols).From("feeds").Where(sb.Equal("active", 1))
	sb.OrderBy("id").Asc()
	return s.queryFeeds(ctx, sb)
}

func (s *Store) queryFeeds(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Feed, error) {
	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []models.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// SetFetchStatus records the outcome of a fetch attempt against the feed.
// This persists even when later publishing fails.
func (s *Store) SetFetchStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feeds SET last_fetched_at = CURRENT_TIMESTAMP, last_status = ? WHERE id = ?",
		status, id)
	if err != nil {
		return fmt.Errorf("set fetch status: %w", err)
	}
	return nil
}

// ToggleFeed flips a feed's active flag. Deactivating removes the feed
// from subsequent passes without touching its ledger entries.
func (s *Store) ToggleFeed(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE feeds SET active = 1 - active WHERE id = ?", id); err != nil {
		return fmt.Errorf("toggle feed: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed. Account links and ledger entries cascade.
func (s *Store) DeleteFeed(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

const accountCols = "id, instance_url, client_id, client_secret, access_token, account_name, account_url, created_at"

func scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.InstanceURL, &a.ClientID, &a.ClientSecret, &a.AccessToken, &a.AccountName, &a.AccountURL, &a.CreatedAt)
	return a, err
}

// UpsertAccount stores an authorized account. An existing row for the
// same (instance, name) pair gets its credentials refreshed instead of
// duplicating the account.
func (s *Store) UpsertAccount(ctx context.Context, a models.Account) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE instance_url = ? AND account_name = ?",
		a.InstanceURL, a.AccountName).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		query, args := ib.InsertInto("accounts").
			Cols("instance_url", "client_id", "client_secret", "access_token", "account_name", "account_url").
			Values(a.InstanceURL, a.ClientID, a.ClientSecret, a.AccessToken, a.AccountName, a.AccountURL).
			Build()
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert account: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("find account: %w", err)
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("accounts").
		Set(
			ub.Assign("client_id", a.ClientID),
			ub.Assign("client_secret", a.ClientSecret),
			ub.Assign("access_token", a.AccessToken),
			ub.Assign("account_url", a.AccountURL),
		).
		Where(ub.Equal("id", id))
	query, args := ub.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("update account: %w", err)
	}
	return id, nil
}

// Accounts returns every credentialed account in ascending id order.
func (s *Store) Accounts(ctx context.Context) ([]models.Account, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(accountCols).From("accounts").Where(sb.NotEqual("access_token", ""))
	sb.OrderBy("id").Asc()
	query, args := sb.Build()
	return s.queryAccounts(ctx, query, args)
}

// LinkedAccounts returns the credentialed accounts a feed posts to.
func (s *Store) LinkedAccounts(ctx context.Context, feedID int64) ([]models.Account, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("accounts.id", "instance_url", "client_id", "client_secret", "access_token", "account_name", "account_url", "accounts.created_at").
		From("accounts").
		Join("feed_accounts", "feed_accounts.account_id = accounts.id").
		Where(sb.Equal("feed_accounts.feed_id", feedID), sb.NotEqual("access_token", ""))
	query, args := sb.Build()
	return s.queryAccounts(ctx, query, args)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args []any) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account. Feed links and ledger entries cascade.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// SetFeedAccounts replaces a feed's account associations.
func (s *Store) SetFeedAccounts(ctx context.Context, feedID int64, accountIDs []int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_accounts WHERE feed_id = ?", feedID); err != nil {
		return fmt.Errorf("clear feed accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return nil
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("feed_accounts").Cols("feed_id", "account_id")
	for _, accountID := range accountIDs {
		ib.Values(feedID, accountID)
	}
	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("link feed accounts: %w", err)
	}
	return nil
}

// FeedAccountIDs returns the ids of accounts linked to a feed.
func (s *Store) FeedAccountIDs(ctx context.Context, feedID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id FROM feed_accounts WHERE feed_id = ?", feedID)
	if err != nil {
		return nil, fmt.Errorf("query feed accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats aggregates the counters shown on the status surface.
type Stats struct {
	Feeds       int64 `json:"feeds"`
	ActiveFeeds int64 `json:"activeFeeds"`
	Accounts    int64 `json:"accounts"`
	Posted      int64 `json:"posted"`
	Runs        int64 `json:"runs"`
}

// GetStats counts feeds, accounts, ledger entries and runs.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM feeds", &st.Feeds},
		{"SELECT COUNT(*) FROM feeds WHERE active = 1", &st.ActiveFeeds},
		{"SELECT COUNT(*) FROM accounts WHERE access_token != ''", &st.Accounts},
		{"SELECT COUNT(*) FROM posted_items", &st.Posted},
		{"SELECT COUNT(*) FROM run_log", &st.Runs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return st, fmt.Errorf("count: %w", err)
		}
	}
	return st, nil
}
