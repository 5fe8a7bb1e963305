package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsstoot/feed"
)

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchNormalizesEntries(t *testing.T) {
	server := serveFeed(t, `<?xml version="1.0"?>
<rss version="2.0"><channel>
	<title>Example</title>
	<item>
		<title>First &amp; foremost</title>
		<link>https://example.com/1</link>
		<guid>guid-1</guid>
		<description>&lt;p&gt;Some &lt;b&gt;bold&lt;/b&gt; text&lt;/p&gt;</description>
	</item>
	<item>
		<link>https://example.com/2</link>
		<description>No guid and no title</description>
	</item>
	<item>
		<title>Orphan without identity</title>
		<description>Dropped entirely</description>
	</item>
</channel></rss>`)

	items, err := feed.NewReader().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "guid-1", items[0].GUID)
	assert.Equal(t, "First & foremost", items[0].Title)
	assert.Equal(t, "https://example.com/1", items[0].Link)
	assert.Equal(t, "Some bold text", items[0].Summary)

	// Missing guid falls back to the link; missing title gets a default.
	assert.Equal(t, "https://example.com/2", items[1].GUID)
	assert.Equal(t, "Untitled", items[1].Title)
}

func TestFetchTruncatesLongSummaries(t *testing.T) {
	long := strings.Repeat("word ", 100)
	server := serveFeed(t, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
	<item>
		<title>Long one</title>
		<guid>g</guid>
		<description>`+long+`</description>
	</item>
</channel></rss>`)

	items, err := feed.NewReader().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)

	runes := []rune(items[0].Summary)
	assert.Len(t, runes, 201)
	assert.Equal(t, "…", string(runes[200:]))
}

func TestFetchAtomFeed(t *testing.T) {
	server := serveFeed(t, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Atom Example</title>
	<entry>
		<title>Atom entry</title>
		<id>urn:uuid:1</id>
		<link href="https://example.com/atom/1"/>
		<summary>Plain summary</summary>
	</entry>
</feed>`)

	items, err := feed.NewReader().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "urn:uuid:1", items[0].GUID)
	assert.Equal(t, "Atom entry", items[0].Title)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not a feed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html><body>hi</body></html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			items, err := feed.NewReader().Fetch(context.Background(), server.URL)
			assert.Error(t, err)
			assert.Nil(t, items)
		})
	}
}
