package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
)

// WikiConfig configures the wiki_summary tool.
type WikiConfig struct {
	BaseURL string // REST summary endpoint root
	Client  ClientConfig
}

type wikiArgs struct {
	Topic string `json:"topic"`
}

type wikiAPIResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// NewWikiSummaryTool creates the wiki_summary tool using the Wikipedia
// REST page-summary endpoint.
func NewWikiSummaryTool(cfg WikiConfig, logger *zap.Logger) (Func, Metadata) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://en.wikipedia.org/api/rest_v1/page/summary"
	}
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params wikiArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid wiki_summary arguments: %w", err)
		}
		if params.Topic == "" {
			return nil, fmt.Errorf("topic is required")
		}

		topic := strings.ReplaceAll(strings.TrimSpace(params.Topic), " ", "_")
		endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/" + url.PathEscape(topic)

		var upstream wikiAPIResponse
		if err := getJSON(ctx, client, cfg.Client.UserAgent, endpoint, nil, &upstream); err != nil {
			return nil, fmt.Errorf("wiki summary failed: %w", err)
		}

		out := map[string]string{
			"title":       upstream.Title,
			"description": upstream.Description,
			"summary":     upstream.Extract,
			"url":         upstream.ContentURLs.Desktop.Page,
		}
		logger.Debug("wiki summary fetched", zap.String("topic", params.Topic))
		return json.Marshal(out)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "wiki_summary",
			Description: "Get an encyclopedia summary for a topic.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"topic": {"type": "string", "description": "The topic or article title"}
				},
				"required": ["topic"]
			}`),
		},
	}
	return fn, md
}
