package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/types"
)

// RSSConfig configures the rss_fetch tool.
type RSSConfig struct {
	MaxItems int
	MaxBody  int64
	Client   ClientConfig
}

type rssArgs struct {
	URL      string `json:"url"`
	MaxItems int    `json:"max_items,omitempty"`
}

// FeedItem is one entry of an RSS or Atom feed.
type FeedItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Published   string `json:"published,omitempty"`
	Description string `json:"description,omitempty"`
}

type rssResponse struct {
	URL       string     `json:"url"`
	FeedTitle string     `json:"feed_title"`
	Items     []FeedItem `json:"items"`
}

// rssFeed covers RSS 2.0.
type rssFeed struct {
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			PubDate     string `xml:"pubDate"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

// atomFeed covers Atom 1.0.
type atomFeed struct {
	Title   string `xml:"title"`
	Entries []struct {
		Title   string `xml:"title"`
		Links   []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Updated string `xml:"updated"`
		Summary string `xml:"summary"`
	} `xml:"entry"`
}

// NewRSSFetchTool creates the rss_fetch tool. Both RSS 2.0 and Atom
// documents are accepted; the root element decides which decoder runs.
func NewRSSFetchTool(cfg RSSConfig, logger *zap.Logger) (Func, Metadata) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 20
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 2 << 20
	}
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params rssArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid rss_fetch arguments: %w", err)
		}
		if params.URL == "" {
			return nil, fmt.Errorf("url is required")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if cfg.Client.UserAgent != "" {
			req.Header.Set("User-Agent", cfg.Client.UserAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, types.NewError(types.ErrUpstreamError, "fetch feed").WithRetryable(true).WithCause(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			e := types.Newf(types.ErrUpstreamError, "fetch %s: status %d", params.URL, resp.StatusCode)
			e.Retryable = resp.StatusCode >= 500
			return nil, e
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxBody))
		if err != nil {
			return nil, fmt.Errorf("read feed: %w", err)
		}

		max := params.MaxItems
		if max <= 0 || max > cfg.MaxItems {
			max = cfg.MaxItems
		}

		out, err := parseFeed(data, max)
		if err != nil {
			return nil, err
		}
		out.URL = params.URL

		logger.Debug("feed fetched",
			zap.String("url", params.URL),
			zap.Int("items", len(out.Items)),
		)
		return json.Marshal(out)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "rss_fetch",
			Description: "Fetch an RSS or Atom feed and return its latest entries.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The feed URL"},
					"max_items": {"type": "integer", "description": "Maximum entries to return"}
				},
				"required": ["url"]
			}`),
		},
	}
	return fn, md
}

func parseFeed(data []byte, max int) (*rssResponse, error) {
	root := rootElement(data)
	out := &rssResponse{}

	switch root {
	case "rss", "rdf":
		var feed rssFeed
		if err := xml.Unmarshal(data, &feed); err != nil {
			return nil, fmt.Errorf("parse rss feed: %w", err)
		}
		out.FeedTitle = feed.Channel.Title
		for _, it := range feed.Channel.Items {
			if len(out.Items) >= max {
				break
			}
			out.Items = append(out.Items, FeedItem{
				Title:       strings.TrimSpace(it.Title),
				Link:        strings.TrimSpace(it.Link),
				Published:   it.PubDate,
				Description: strings.TrimSpace(it.Description),
			})
		}

	case "feed":
		var feed atomFeed
		if err := xml.Unmarshal(data, &feed); err != nil {
			return nil, fmt.Errorf("parse atom feed: %w", err)
		}
		out.FeedTitle = strings.TrimSpace(feed.Title)
		for _, e := range feed.Entries {
			if len(out.Items) >= max {
				break
			}
			item := FeedItem{
				Title:       strings.TrimSpace(e.Title),
				Published:   e.Updated,
				Description: strings.TrimSpace(e.Summary),
			}
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					item.Link = l.Href
					break
				}
			}
			out.Items = append(out.Items, item)
		}

	default:
		return nil, fmt.Errorf("unrecognized feed format (root element %q)", root)
	}

	return out, nil
}

// rootElement returns the local name of the document's first element.
func rootElement(data []byte) string {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			return strings.ToLower(se.Name.Local)
		}
	}
}
