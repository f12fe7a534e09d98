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

// FinanceConfig configures the finance_quote and crypto_price tools.
type FinanceConfig struct {
	APIKey  string
	BaseURL string // quote API endpoint
	Client  ClientConfig
}

type quoteArgs struct {
	Symbol string `json:"symbol"`
}

// Quote is a normalized market quote.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Volume        int64   `json:"volume,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	AsOf          string  `json:"as_of,omitempty"`
}

type quoteAPIResponse struct {
	Quote struct {
		Symbol        string  `json:"symbol"`
		Price         float64 `json:"price"`
		Change        float64 `json:"change"`
		ChangePercent float64 `json:"change_percent"`
		DayHigh       float64 `json:"day_high"`
		DayLow        float64 `json:"day_low"`
		Volume        int64   `json:"volume"`
		Currency      string  `json:"currency"`
		Timestamp     string  `json:"timestamp"`
	} `json:"quote"`
}

// NewFinanceQuoteTool creates the finance_quote tool for equity symbols.
func NewFinanceQuoteTool(cfg FinanceConfig, logger *zap.Logger) (Func, Metadata) {
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params quoteArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid finance_quote arguments: %w", err)
		}
		if params.Symbol == "" {
			return nil, fmt.Errorf("symbol is required")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("finance quotes are not configured: missing API key")
		}

		symbol := strings.ToUpper(strings.TrimSpace(params.Symbol))
		qv := url.Values{}
		qv.Set("symbol", symbol)
		qv.Set("api_key", cfg.APIKey)

		var upstream quoteAPIResponse
		if err := getJSON(ctx, client, cfg.Client.UserAgent, strings.TrimRight(cfg.BaseURL, "/")+"/quote", qv, &upstream); err != nil {
			return nil, fmt.Errorf("quote lookup failed: %w", err)
		}

		q := Quote{
			Symbol:        symbol,
			Price:         upstream.Quote.Price,
			Change:        upstream.Quote.Change,
			ChangePercent: upstream.Quote.ChangePercent,
			High:          upstream.Quote.DayHigh,
			Low:           upstream.Quote.DayLow,
			Volume:        upstream.Quote.Volume,
			Currency:      upstream.Quote.Currency,
			AsOf:          upstream.Quote.Timestamp,
		}
		logger.Debug("quote fetched", zap.String("symbol", symbol), zap.Float64("price", q.Price))
		return json.Marshal(q)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "finance_quote",
			Description: "Get the latest market quote for a stock ticker symbol.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"symbol": {"type": "string", "description": "Ticker symbol, e.g. AAPL"}
				},
				"required": ["symbol"]
			}`),
		},
	}
	return fn, md
}

type cryptoArgs struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency,omitempty"`
}

type cryptoAPIResponse struct {
	Data struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Change24h float64 `json:"change_24h"`
		MarketCap float64 `json:"market_cap"`
		Volume24h float64 `json:"volume_24h"`
	} `json:"data"`
}

// NewCryptoPriceTool creates the crypto_price tool. It shares the finance
// API credentials but hits the crypto endpoint.
func NewCryptoPriceTool(cfg FinanceConfig, logger *zap.Logger) (Func, Metadata) {
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params cryptoArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid crypto_price arguments: %w", err)
		}
		if params.Symbol == "" {
			return nil, fmt.Errorf("symbol is required")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("crypto prices are not configured: missing API key")
		}
		currency := params.Currency
		if currency == "" {
			currency = "USD"
		}

		qv := url.Values{}
		qv.Set("symbol", strings.ToUpper(strings.TrimSpace(params.Symbol)))
		qv.Set("convert", strings.ToUpper(currency))
		qv.Set("api_key", cfg.APIKey)

		var upstream cryptoAPIResponse
		if err := getJSON(ctx, client, cfg.Client.UserAgent, strings.TrimRight(cfg.BaseURL, "/")+"/crypto", qv, &upstream); err != nil {
			return nil, fmt.Errorf("crypto price lookup failed: %w", err)
		}

		out := map[string]any{
			"symbol":     upstream.Data.Symbol,
			"currency":   strings.ToUpper(currency),
			"price":      upstream.Data.Price,
			"change_24h": upstream.Data.Change24h,
			"market_cap": upstream.Data.MarketCap,
			"volume_24h": upstream.Data.Volume24h,
		}
		logger.Debug("crypto price fetched", zap.String("symbol", params.Symbol))
		return json.Marshal(out)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "crypto_price",
			Description: "Get the current price and 24h change for a cryptocurrency.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"symbol": {"type": "string", "description": "Coin symbol, e.g. BTC"},
					"currency": {"type": "string", "description": "Fiat currency for the price (default USD)"}
				},
				"required": ["symbol"]
			}`),
		},
	}
	return fn, md
}
