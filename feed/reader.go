// Package feed fetches syndication feeds and normalizes their entries
// into publishable candidate items.
package feed

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"rsstoot/models"
)

const (
	// FetchTimeout bounds one feed retrieval end to end.
	FetchTimeout = 15 * time.Second

	// summaryBudget is the character budget for normalized summaries.
	summaryBudget = 200

	userAgent = "rsstoot/1.0"
)

// Reader fetches and parses feeds. Safe for sequential reuse across a
// run pass.
type Reader struct {
	parser *gofeed.Parser
}

func NewReader() *Reader {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: FetchTimeout}
	return &Reader{parser: parser}
}

// Fetch retrieves one feed and returns its entries in native order
// (newest first by feed convention). Any network or parse failure is
// returned as an error with no items; nothing panics past this boundary.
func (r *Reader) Fetch(ctx context.Context, url string) ([]models.Item, error) {
	parsed, err := r.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"url":   url,
			"error": err,
		}).Error("Feed fetch failed")
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	items := make([]models.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		item, ok := normalize(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// normalize maps a parsed entry onto a candidate item. Identity prefers
// the explicit guid, falls back to the link, and drops the entry when
// neither exists.
func normalize(entry *gofeed.Item) (models.Item, bool) {
	guid := strings.TrimSpace(entry.GUID)
	if guid == "" {
		guid = strings.TrimSpace(entry.Link)
	}
	if guid == "" {
		return models.Item{}, false
	}

	title := html.UnescapeString(strings.TrimSpace(entry.Title))
	if title == "" {
		title = "Untitled"
	}

	body := entry.Description
	if body == "" {
		body = entry.Content
	}

	return models.Item{
		GUID:    guid,
		Title:   title,
		Link:    strings.TrimSpace(entry.Link),
		Summary: truncate(stripMarkup(body), summaryBudget),
	}, true
}

// stripMarkup removes HTML tags and decodes entities, leaving plain text.
func stripMarkup(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// Not parseable as HTML; fall back to entity decoding only.
		return strings.TrimSpace(html.UnescapeString(s))
	}
	return strings.TrimSpace(doc.Text())
}

func truncate(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + "…"
}
