package mastodon

import (
	"regexp"
	"strings"

	"rsstoot/models"
)

const (
	// MaxStatusLen is the hard limit Mastodon enforces on a status.
	MaxStatusLen = 500

	// statusBudget targets a little under the hard limit for safety.
	statusBudget = 490

	// minTitleLen is the smallest title the overflow policy will shrink to.
	minTitleLen = 10
)

// Hashtag tokens must be alphanumeric/underscore; everything else from
// the feed's tag list is silently dropped.
var tagToken = regexp.MustCompile(`^\w+$`)

// FormatStatus renders one candidate item into a publishable status of
// at most statusBudget characters. Deterministic and side-effect free.
//
// Layout: source label, title, link (when present) and hashtags, each
// separated by a blank line. When the naive composition overflows, only
// the title shrinks; link and tags are never dropped.
func FormatStatus(item models.Item, feedName, hashtags string) string {
	src := feedName
	if src == "" {
		src = "RSS Feed"
	}
	tags := buildTags(hashtags)

	body := compose(src, item.Title, item.Link, tags)
	if len([]rune(body)) <= statusBudget {
		return body
	}

	// Recompute the non-title portion first, then give the title
	// whatever budget remains.
	base := compose(src, "", item.Link, tags)
	budget := statusBudget - len([]rune(base))
	if budget < minTitleLen {
		budget = minTitleLen
	}
	title := item.Title
	if runes := []rune(title); len(runes) > budget {
		title = string(runes[:budget])
	}
	return compose(src, title+"…", item.Link, tags)
}

func compose(src, title, link, tags string) string {
	var b strings.Builder
	b.WriteString("📰 ")
	b.WriteString(src)
	b.WriteString("\n\n")
	b.WriteString(title)
	if link != "" {
		b.WriteString("\n\n")
		b.WriteString(link)
	}
	b.WriteString("\n\n")
	b.WriteString(tags)
	return b.String()
}

// buildTags assembles the fixed tags plus every valid token from the
// feed's comma-separated tag list.
func buildTags(hashtags string) string {
	parts := []string{"#RSS", "#rsstoot"}
	for _, t := range strings.Split(hashtags, ",") {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" && tagToken.MatchString(t) {
			parts = append(parts, "#"+t)
		}
	}
	return strings.Join(parts, " ")
}
