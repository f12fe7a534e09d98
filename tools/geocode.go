package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
)

// GeoConfig configures the geocode and weather tools.
type GeoConfig struct {
	GeocodeBaseURL string // nominatim-style search endpoint
	WeatherBaseURL string // open-meteo-style forecast endpoint
	Client         ClientConfig
}

type geocodeArgs struct {
	Place string `json:"place"`
}

// Location is a resolved place.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
}

type geocodeAPIResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		Country string `json:"country"`
	} `json:"address"`
}

// NewGeocodeTool creates the geocode tool.
func NewGeocodeTool(cfg GeoConfig, logger *zap.Logger) (Func, Metadata) {
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params geocodeArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid geocode arguments: %w", err)
		}
		if params.Place == "" {
			return nil, fmt.Errorf("place is required")
		}

		qv := url.Values{}
		qv.Set("q", params.Place)
		qv.Set("format", "json")
		qv.Set("limit", "1")
		qv.Set("addressdetails", "1")

		var results []geocodeAPIResult
		if err := getJSON(ctx, client, cfg.Client.UserAgent, cfg.GeocodeBaseURL, qv, &results); err != nil {
			return nil, fmt.Errorf("geocode failed: %w", err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("no location found for %q", params.Place)
		}

		lat, _ := strconv.ParseFloat(results[0].Lat, 64)
		lon, _ := strconv.ParseFloat(results[0].Lon, 64)
		loc := Location{
			Name:      results[0].DisplayName,
			Latitude:  lat,
			Longitude: lon,
			Country:   results[0].Address.Country,
		}
		logger.Debug("place geocoded", zap.String("place", params.Place))
		return json.Marshal(loc)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "geocode",
			Description: "Resolve a place name to coordinates and country.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"place": {"type": "string", "description": "City, address, or landmark"}
				},
				"required": ["place"]
			}`),
		},
	}
	return fn, md
}

type weatherArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Days      int     `json:"days,omitempty"`
}

type weatherAPIResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time        []string  `json:"time"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		Precip      []float64 `json:"precipitation_sum"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"daily"`
}

// NewWeatherTool creates the weather tool. Takes coordinates, so agents
// usually call geocode first.
func NewWeatherTool(cfg GeoConfig, logger *zap.Logger) (Func, Metadata) {
	client := cfg.Client.httpClient()

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params weatherArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid weather arguments: %w", err)
		}
		days := params.Days
		if days <= 0 || days > 7 {
			days = 3
		}

		qv := url.Values{}
		qv.Set("latitude", strconv.FormatFloat(params.Latitude, 'f', 4, 64))
		qv.Set("longitude", strconv.FormatFloat(params.Longitude, 'f', 4, 64))
		qv.Set("current", "temperature_2m,wind_speed_10m,weather_code")
		qv.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code")
		qv.Set("forecast_days", strconv.Itoa(days))

		var upstream weatherAPIResponse
		if err := getJSON(ctx, client, cfg.Client.UserAgent, cfg.WeatherBaseURL, qv, &upstream); err != nil {
			return nil, fmt.Errorf("weather lookup failed: %w", err)
		}

		type day struct {
			Date    string  `json:"date"`
			TempMax float64 `json:"temp_max"`
			TempMin float64 `json:"temp_min"`
			Precip  float64 `json:"precipitation_mm"`
		}
		out := struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"wind_speed"`
			Forecast    []day   `json:"forecast"`
		}{
			Temperature: upstream.Current.Temperature,
			WindSpeed:   upstream.Current.WindSpeed,
		}
		for i, date := range upstream.Daily.Time {
			d := day{Date: date}
			if i < len(upstream.Daily.TempMax) {
				d.TempMax = upstream.Daily.TempMax[i]
			}
			if i < len(upstream.Daily.TempMin) {
				d.TempMin = upstream.Daily.TempMin[i]
			}
			if i < len(upstream.Daily.Precip) {
				d.Precip = upstream.Daily.Precip[i]
			}
			out.Forecast = append(out.Forecast, d)
		}

		logger.Debug("weather fetched",
			zap.Float64("lat", params.Latitude),
			zap.Float64("lon", params.Longitude),
		)
		return json.Marshal(out)
	}

	md := Metadata{
		Schema: llm.ToolSchema{
			Name:        "weather",
			Description: "Get current conditions and a short forecast for coordinates.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"latitude": {"type": "number"},
					"longitude": {"type": "number"},
					"days": {"type": "integer", "description": "Forecast days (1-7, default 3)"}
				},
				"required": ["latitude", "longitude"]
			}`),
		},
	}
	return fn, md
}
