package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/types"
)

// WebScrapeConfig configures the web_scrape tool.
type WebScrapeConfig struct {
	MaxLength int // maximum extracted characters (default 50000)
	MaxBody   int64
	Client    ClientConfig
}

type webScrapeArgs struct {
	URL          string `json:"url"`
	IncludeLinks bool   `json:"include_links,omitempty"`
	MaxLength    int    `json:"max_length,omitempty"`
}

// ScrapedLink is a hyperlink found on the page.
type ScrapedLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type webScrapeResponse struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	Links     []ScrapedLink `json:"links,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// NewWebScrapeTool creates the web_scrape tool. It fetches a page and
// extracts readable text by walking the HTML tree, skipping script, style,
// nav, and footer subtrees.
func NewWebScrapeTool(cfg WebScrapeConfig, logger *zap.Logger) (Func, Metadata) {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 50000
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 4 << 20
	}
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webScrapeArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid web_scrape arguments: %w", err)
		}
		if params.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
			return nil, fmt.Errorf("url must be http or https")
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
			return nil, types.NewError(types.ErrUpstreamError, "fetch page").WithRetryable(true).WithCause(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			e := types.Newf(types.ErrUpstreamError, "fetch %s: status %d", params.URL, resp.StatusCode)
			e.Retryable = resp.StatusCode >= 500
			return nil, e
		}

		doc, err := html.Parse(io.LimitReader(resp.Body, cfg.MaxBody))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}

		maxLen := params.MaxLength
		if maxLen <= 0 || maxLen > cfg.MaxLength {
			maxLen = cfg.MaxLength
		}

		out := webScrapeResponse{URL: params.URL, Title: pageTitle(doc)}
		text := extractText(doc)
		if len(text) > maxLen {
			text = text[:maxLen]
			out.Truncated = true
		}
		out.Content = text
		out.WordCount = len(strings.Fields(text))
		if params.IncludeLinks {
			out.Links = extractLinks(doc, 50)
		}

		logger.Debug("page scraped",
			zap.String("url", params.URL),
			zap.Int("words", out.WordCount),
		)
		return json.Marshal(out)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "web_scrape",
			Description: "Fetch a web page and extract its readable text content.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The page URL to fetch"},
					"include_links": {"type": "boolean", "description": "Also return hyperlinks found on the page"},
					"max_length": {"type": "integer", "description": "Maximum content length in characters"}
				},
				"required": ["url"]
			}`),
		},
	}
	return fn, md
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "footer": true, "header": true, "aside": true,
	"svg": true, "iframe": true, "form": true,
}

// extractText walks the tree collecting text nodes, separating blocks
// with newlines and collapsing runs of whitespace.
func extractText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func pageTitle(doc *html.Node) string {
	var title string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}

func extractLinks(doc *html.Node, max int) []ScrapedLink {
	var links []ScrapedLink
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(links) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, a := range n.Attr {
				if a.Key == "href" {
					href = a.Val
					break
				}
			}
			if strings.HasPrefix(href, "http") {
				text := strings.TrimSpace(extractText(n))
				if len(text) > 120 {
					text = text[:120]
				}
				links = append(links, ScrapedLink{Text: text, URL: href})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}
