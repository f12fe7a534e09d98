package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet"`
	PublishedAt string  `json:"published_at,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// WebSearchConfig configures the web_search tool.
type WebSearchConfig struct {
	APIKey     string
	BaseURL    string // search API endpoint, e.g. a SerpAPI-compatible service
	MaxResults int
	Client     ClientConfig
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	TimeRange  string `json:"time_range,omitempty"` // day, week, month, year
}

type webSearchResponse struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// upstream shape of the search service
type searchAPIResponse struct {
	Organic []struct {
		Title   string  `json:"title"`
		Link    string  `json:"link"`
		Snippet string  `json:"snippet"`
		Date    string  `json:"date,omitempty"`
		Score   float64 `json:"score,omitempty"`
	} `json:"organic_results"`
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(cfg WebSearchConfig, logger *zap.Logger) (Func, Metadata) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webSearchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid web_search arguments: %w", err)
		}
		if params.Query == "" {
			return nil, fmt.Errorf("query is required")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("web search is not configured: missing API key")
		}

		max := params.MaxResults
		if max <= 0 || max > cfg.MaxResults {
			max = cfg.MaxResults
		}

		qv := url.Values{}
		qv.Set("q", params.Query)
		qv.Set("api_key", cfg.APIKey)
		qv.Set("num", strconv.Itoa(max))
		if params.TimeRange != "" {
			qv.Set("time_range", params.TimeRange)
		}

		start := time.Now()
		var upstream searchAPIResponse
		if err := getJSON(ctx, client, cfg.Client.UserAgent, cfg.BaseURL, qv, &upstream); err != nil {
			return nil, fmt.Errorf("web search failed: %w", err)
		}

		resp := webSearchResponse{Query: params.Query}
		for _, r := range upstream.Organic {
			if len(resp.Results) >= max {
				break
			}
			resp.Results = append(resp.Results, SearchResult{
				Title:       r.Title,
				URL:         r.Link,
				Snippet:     r.Snippet,
				PublishedAt: r.Date,
				Score:       r.Score,
			})
		}
		resp.TotalCount = len(resp.Results)

		logger.Debug("web search completed",
			zap.String("query", params.Query),
			zap.Int("results", resp.TotalCount),
			zap.Duration("duration", time.Since(start)),
		)
		return json.Marshal(resp)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "web_search",
			Description: "Search the web. Returns relevant results with titles, URLs, and snippets.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query"},
					"max_results": {"type": "integer", "description": "Maximum results to return"},
					"time_range": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Restrict results to a recency window"}
				},
				"required": ["query"]
			}`),
		},
	}
	return fn, md
}
