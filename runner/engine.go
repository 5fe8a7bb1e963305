// Package runner orchestrates the fetch–dedup–post pipeline and its
// recurring schedule.
package runner

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rsstoot/mastodon"
	"rsstoot/metrics"
	"rsstoot/models"
)

const (
	// DefaultPostLimit caps how many items one (feed, account) pair may
	// publish per pass. Excess unseen items count as skipped.
	DefaultPostLimit = 5

	// DefaultPacing is the delay between consecutive publish calls. It
	// paces outbound traffic against instance rate limits and applies
	// even after a failed publish.
	DefaultPacing = 700 * time.Millisecond

	// titleLineLen bounds item titles quoted in detail lines.
	titleLineLen = 60

	// diagLineLen bounds diagnostics quoted in detail lines.
	diagLineLen = 70
)

// Store is the persistent state a run pass reads and writes.
type Store interface {
	ActiveFeeds(ctx context.Context) ([]models.Feed, error)
	LinkedAccounts(ctx context.Context, feedID int64) ([]models.Account, error)
	SetFetchStatus(ctx context.Context, feedID int64, status string) error
	HasPosted(ctx context.Context, feedID, accountID int64, guid string) (bool, error)
	RecordPosted(ctx context.Context, feedID, accountID int64, guid string) (bool, error)
	RecordRun(ctx context.Context, trigger string, outcome models.RunOutcome, durationMs int64) error
}

// Fetcher retrieves one feed's entries in native (newest-first) order.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.Item, error)
}

// Publisher sends one formatted status to one account.
type Publisher interface {
	PostStatus(ctx context.Context, account models.Account, status string) (string, error)
}

// Engine runs one full pass over all active feeds and their linked
// accounts. Passes are mutually exclusive: a manual trigger overlapping
// the scheduled run waits instead of racing it.
type Engine struct {
	store     Store
	fetcher   Fetcher
	publisher Publisher

	PostLimit int
	Pacing    time.Duration

	mu sync.Mutex
}

func NewEngine(store Store, fetcher Fetcher, publisher Publisher) *Engine {
	return &Engine{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		PostLimit: DefaultPostLimit,
		Pacing:    DefaultPacing,
	}
}

// RunOnce executes one pipeline pass, persists the run record, and
// returns the outcome. No failure inside the pass propagates out; each
// is converted to an error count and a detail line.
func (e *Engine) RunOnce(ctx context.Context, trigger string) models.RunOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	log.WithFields(log.Fields{"trigger": trigger}).Info("Feed run starting")
	started := time.Now()

	outcome := e.pass(ctx)

	durationMs := time.Since(started).Milliseconds()
	if err := e.store.RecordRun(ctx, trigger, outcome, durationMs); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Failed to record run")
	}

	metrics.RunsTotal.WithLabelValues(trigger).Inc()
	metrics.ItemsPosted.Add(float64(outcome.Posted))
	metrics.ItemsSkipped.Add(float64(outcome.Skipped))
	metrics.RunErrors.Add(float64(outcome.Errors))
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	log.WithFields(log.Fields{
		"trigger":    trigger,
		"posted":     outcome.Posted,
		"skipped":    outcome.Skipped,
		"errors":     outcome.Errors,
		"durationMs": durationMs,
	}).Info("Feed run done")

	return outcome
}

func (e *Engine) pass(ctx context.Context) models.RunOutcome {
	var out models.RunOutcome

	feeds, err := e.store.ActiveFeeds(ctx)
	if err != nil {
		out.Errors++
		out.Lines = append(out.Lines, "✗ Loading feeds: "+clip(err.Error(), diagLineLen))
		return out
	}
	if len(feeds) == 0 {
		out.Lines = append(out.Lines, "No active feeds.")
		return out
	}

	for _, feed := range feeds {
		e.processFeed(ctx, feed, &out)
	}
	return out
}

// processFeed runs the pipeline for one feed: load eligible accounts,
// fetch once, then publish unseen items per account. A failure here
// never aborts the pass for the remaining feeds.
func (e *Engine) processFeed(ctx context.Context, feed models.Feed, out *models.RunOutcome) {
	accounts, err := e.store.LinkedAccounts(ctx, feed.ID)
	if err != nil {
		out.Errors++
		out.Lines = append(out.Lines, "✗ Loading accounts: "+clip(err.Error(), diagLineLen))
		return
	}
	if len(accounts) == 0 {
		// Configuration gap, not an error.
		out.Lines = append(out.Lines, "⚠ No accounts linked: "+feed.Name)
		return
	}

	items, fetchErr := e.fetcher.Fetch(ctx, feed.URL)

	// Record the fetch result against the feed immediately; this
	// persists even if publishing fails later in the pass.
	status := models.FetchOK
	if fetchErr != nil || len(items) == 0 {
		status = models.FetchError
	}
	if err := e.store.SetFetchStatus(ctx, feed.ID, status); err != nil {
		log.WithFields(log.Fields{"feed": feed.URL, "error": err}).Error("Failed to record fetch status")
	}

	if status == models.FetchError {
		// One error per feed, regardless of linked account count.
		out.Errors++
		out.Lines = append(out.Lines, "✗ Fetch failed: "+feed.URL)
		return
	}

	for _, account := range accounts {
		e.publishToAccount(ctx, feed, account, items, out)
	}
}

// publishToAccount posts the oldest unseen items to one account, up to
// the per-pair cap.
func (e *Engine) publishToAccount(ctx context.Context, feed models.Feed, account models.Account, items []models.Item, out *models.RunOutcome) {
	label := mastodon.DisplayLabel(account)

	var unseen []models.Item
	for _, item := range items {
		posted, err := e.store.HasPosted(ctx, feed.ID, account.ID, item.GUID)
		if err != nil {
			out.Errors++
			out.Lines = append(out.Lines, "✗ ["+label+"] Ledger: "+clip(err.Error(), diagLineLen))
			return
		}
		if !posted {
			unseen = append(unseen, item)
		}
	}

	// Feeds yield newest-first; post oldest-first so the target
	// timeline reads chronologically.
	reverse(unseen)

	toPost := unseen
	if len(toPost) > e.PostLimit {
		toPost = toPost[:e.PostLimit]
		out.Skipped += len(unseen) - e.PostLimit
	}

	for _, item := range toPost {
		status := mastodon.FormatStatus(item, feed.Name, feed.Hashtags)

		remoteID, err := e.publisher.PostStatus(ctx, account, status)
		if err != nil {
			out.Errors++
			out.Lines = append(out.Lines, "✗ ["+label+"] "+clip(err.Error(), diagLineLen))
		} else {
			// A crash between the remote acknowledgment and this
			// insert re-publishes the item next pass: accepted
			// at-least-once tradeoff.
			if _, err := e.store.RecordPosted(ctx, feed.ID, account.ID, item.GUID); err != nil {
				log.WithFields(log.Fields{
					"feed":     feed.URL,
					"account":  label,
					"guid":     item.GUID,
					"remoteId": remoteID,
					"error":    err,
				}).Error("Published but failed to record ledger entry")
			}
			out.Posted++
			out.Lines = append(out.Lines, "✓ ["+label+"] "+clip(item.Title, titleLineLen))
		}

		// Pace outbound calls even after a failure.
		if e.Pacing > 0 {
			time.Sleep(e.Pacing)
		}
	}
}

func reverse(items []models.Item) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
