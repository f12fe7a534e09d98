package tools

import (
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
)

// RegisterDefaults registers every built-in tool against the registry
// using the service configuration. Tools whose API keys are missing are
// still registered; they return a configuration error when called, which
// the executor surfaces to the agent as a JSON error payload.
func RegisterDefaults(reg *Registry, cfg config.ToolsConfig, logger *zap.Logger) {
	client := ClientConfig{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent}

	fn, md := NewWebSearchTool(WebSearchConfig{
		APIKey:  cfg.SearchAPIKey,
		BaseURL: cfg.SearchBaseURL,
		Client:  client,
	}, logger)
	reg.Register(fn, md)

	fn, md = NewWebScrapeTool(WebScrapeConfig{Client: client}, logger)
	reg.Register(fn, md)

	fn, md = NewRSSFetchTool(RSSConfig{Client: client}, logger)
	reg.Register(fn, md)

	finance := FinanceConfig{
		APIKey:  cfg.FinanceAPIKey,
		BaseURL: cfg.FinanceBaseURL,
		Client:  client,
	}
	fn, md = NewFinanceQuoteTool(finance, logger)
	reg.Register(fn, md)
	fn, md = NewCryptoPriceTool(finance, logger)
	reg.Register(fn, md)

	geo := GeoConfig{
		GeocodeBaseURL: cfg.GeocodeBaseURL,
		WeatherBaseURL: cfg.WeatherBaseURL,
		Client:         client,
	}
	fn, md = NewGeocodeTool(geo, logger)
	reg.Register(fn, md)
	fn, md = NewWeatherTool(geo, logger)
	reg.Register(fn, md)

	fn, md = NewWikiSummaryTool(WikiConfig{Client: client}, logger)
	reg.Register(fn, md)
}
