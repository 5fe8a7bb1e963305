package models

import "time"

// Fetch statuses recorded against a feed after each attempt.
const (
	FetchPending = "pending"
	FetchOK      = "ok"
	FetchError   = "error"
)

// Trigger sources for a pipeline run.
const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

// Feed is a syndication source the pipeline polls.
type Feed struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	Hashtags      string     `json:"hashtags"` // comma-separated, without '#'
	Active        bool       `json:"active"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
	LastStatus    string     `json:"lastStatus"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Account is a Mastodon publish target. An account with an empty
// AccessToken is unlinked and excluded from every run.
type Account struct {
	ID           int64     `json:"id"`
	InstanceURL  string    `json:"instanceUrl"`
	ClientID     string    `json:"-"`
	ClientSecret string    `json:"-"`
	AccessToken  string    `json:"-"`
	AccountName  string    `json:"accountName"`
	AccountURL   string    `json:"accountUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Item is a normalized feed entry. Items live for one run pass and are
// never persisted.
type Item struct {
	GUID    string `json:"guid"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
}

// RunOutcome aggregates one full pass over all feeds and accounts.
type RunOutcome struct {
	Posted  int      `json:"posted"`
	Skipped int      `json:"skipped"`
	Errors  int      `json:"errors"`
	Lines   []string `json:"lines"`
}

// RunRecord is an immutable run-log row.
type RunRecord struct {
	ID         int64     `json:"id"`
	Trigger    string    `json:"trigger"`
	Posted     int       `json:"posted"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	DurationMs int64     `json:"durationMs"`
	Summary    string    `json:"summary"`
	RanAt      time.Time `json:"ranAt"`
}

// NextRunInfo describes the scheduler's next fire time for status surfaces.
type NextRunInfo struct {
	Display          string `json:"nextRun"`
	UnixTs           int64  `json:"nextRunTs"`
	SecondsRemaining int64  `json:"secsRemaining"`
	PercentElapsed   int    `json:"pctElapsed"`
}
