package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const rssDoc = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <item>
      <title>First story</title>
      <link>https://example.com/1</link>
      <pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate>
      <description>Something happened</description>
    </item>
    <item>
      <title>Second story</title>
      <link>https://example.com/2</link>
    </item>
  </channel>
</rss>`

const atomDoc = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Blog</title>
  <entry>
    <title>Atom entry</title>
    <link rel="alternate" href="https://example.com/atom/1"/>
    <updated>2026-08-24T10:00:00Z</updated>
    <summary>An atom summary</summary>
  </entry>
</feed>`

func serveBody(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSSFetchToolRSS(t *testing.T) {
	srv := serveBody(t, rssDoc)
	fn, md := NewRSSFetchTool(RSSConfig{}, zap.NewNop())
	assert.Equal(t, "rss_fetch", md.Schema.Name)

	out, err := fn(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	require.NoError(t, err)

	var resp rssResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "Example News", resp.FeedTitle)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "First story", resp.Items[0].Title)
	assert.Equal(t, "https://example.com/1", resp.Items[0].Link)
}

func TestRSSFetchToolAtom(t *testing.T) {
	srv := serveBody(t, atomDoc)
	fn, _ := NewRSSFetchTool(RSSConfig{}, zap.NewNop())

	out, err := fn(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	require.NoError(t, err)

	var resp rssResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "Example Blog", resp.FeedTitle)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "https://example.com/atom/1", resp.Items[0].Link)
}

func TestRSSFetchToolMaxItems(t *testing.T) {
	srv := serveBody(t, rssDoc)
	fn, _ := NewRSSFetchTool(RSSConfig{}, zap.NewNop())

	out, err := fn(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`","max_items":1}`))
	require.NoError(t, err)

	var resp rssResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Len(t, resp.Items, 1)
}

func TestRSSFetchToolBadFormat(t *testing.T) {
	srv := serveBody(t, `<html><body>not a feed</body></html>`)
	fn, _ := NewRSSFetchTool(RSSConfig{}, zap.NewNop())

	_, err := fn(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	assert.ErrorContains(t, err, "unrecognized feed format")
}
